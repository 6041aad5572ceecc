package dsp

import "math"

// FeatureRate is the target envelope frame rate in frames per second.
const FeatureRate = 100

// OnsetEnvelope computes a half-wave rectified log spectral flux curve. Sharp
// transients (claps, slates, consonants) dominate it while steady hum and room
// tone cancel out, which keeps correlation peaks narrow.
func OnsetEnvelope(samples []float64, sampleRate int) ([]float64, float64, error) {
	if sampleRate <= 0 {
		return nil, 0, ErrBadRate
	}
	hop := sampleRate / FeatureRate
	if hop < 1 {
		hop = 1
	}
	ws := WindowSize
	for ws < 2*hop {
		ws *= 2
	}

	spec, err := STFT(samples, ws, hop)
	if err != nil {
		return nil, 0, err
	}

	env := make([]float64, len(spec))
	prev := make([]float64, len(spec[0]))
	for t, frame := range spec {
		var flux float64
		for k, mag := range frame {
			v := math.Log1p(mag)
			if t > 0 {
				if d := v - prev[k]; d > 0 {
					flux += d
				}
			}
			prev[k] = v
		}
		env[t] = flux
	}
	return env, float64(sampleRate) / float64(hop), nil
}
