package dsp

import (
	"math"
	"sort"
)

const (
	// BurstFactor is how far above the median block energy a block must rise to count as a burst.
	BurstFactor = 4.0
	// BurstBlockSeconds is the block length used by TransientScore.
	BurstBlockSeconds = 0.1
	snrFrameSeconds   = 0.02
	silenceFloorDB    = -120.0
)

// FrameEnergies returns the mean square of consecutive frames of frameLen samples.
func FrameEnergies(x []float64, frameLen int) []float64 {
	if frameLen < 1 {
		frameLen = 1
	}
	n := len(x) / frameLen
	if n == 0 && len(x) > 0 {
		n = 1
		frameLen = len(x)
	}
	out := make([]float64, n)
	for f := 0; f < n; f++ {
		var sum float64
		for _, v := range x[f*frameLen : (f+1)*frameLen] {
			sum += v * v
		}
		out[f] = sum / float64(frameLen)
	}
	return out
}

// LevelDBFS is the RMS level of x relative to full scale.
func LevelDBFS(x []float64) float64 {
	if len(x) == 0 {
		return silenceFloorDB
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(x)))
	if rms <= 0 {
		return silenceFloorDB
	}
	return math.Max(20*math.Log10(rms), silenceFloorDB)
}

// EstimateSNR compares loud frames (90th percentile energy) against the noise
// floor (10th percentile) and returns the ratio in dB.
func EstimateSNR(x []float64, sampleRate int) float64 {
	if sampleRate <= 0 || len(x) == 0 {
		return 0
	}
	frameLen := int(math.Round(snrFrameSeconds * float64(sampleRate)))
	energies := FrameEnergies(x, frameLen)
	if len(energies) < 2 {
		return 0
	}
	loud := Percentile(energies, 0.9)
	floor := Percentile(energies, 0.1)
	if loud <= 0 {
		return 0
	}
	if floor <= 0 {
		floor = loud * 1e-6
	}
	return 10 * math.Log10(loud/floor)
}

// TransientScore is the fraction of 100 ms blocks whose energy exceeds
// BurstFactor times the median block energy. Silence and steady noise score
// near zero; claps, speech onsets and music hits raise it.
func TransientScore(env []float64, rate float64) float64 {
	if len(env) == 0 || rate <= 0 {
		return 0
	}
	block := int(math.Round(BurstBlockSeconds * rate))
	energies := FrameEnergies(env, block)
	if len(energies) == 0 {
		return 0
	}
	med := Median(energies)
	if med <= 0 {
		// Mostly silent with a few bursts still counts as transient-rich.
		var nonzero int
		for _, e := range energies {
			if e > 0 {
				nonzero++
			}
		}
		return float64(nonzero) / float64(len(energies))
	}
	var bursts int
	for _, e := range energies {
		if e > BurstFactor*med {
			bursts++
		}
	}
	return float64(bursts) / float64(len(energies))
}

// Median of values; 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cp := append([]float64(nil), values...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return (cp[mid-1] + cp[mid]) / 2
}

// Percentile uses nearest-rank on a sorted copy; p is in [0,1].
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cp := append([]float64(nil), values...)
	sort.Float64s(cp)
	idx := int(math.Round(p * float64(len(cp)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cp) {
		idx = len(cp) - 1
	}
	return cp[idx]
}
