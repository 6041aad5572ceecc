package dsp

import (
	"errors"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// MinOverlap is the fewest overlapping frames a lag needs to be scored.
const MinOverlap = 8

var (
	// ErrEmptyWindow is returned when no lag inside the window has enough overlap.
	ErrEmptyWindow = errors.New("dsp: correlation window has no valid lags")
	// ErrBadRate is returned for non-positive sample or feature rates.
	ErrBadRate = errors.New("dsp: rate must be positive")
)

// CrossCorrelate searches lags k in [minLag, maxLag] where b[i] lines up with
// a[i+k] and returns the lag with the highest normalised correlation. Only
// the part of a reachable from the window is transformed.
func CrossCorrelate(a, b []float64, minLag, maxLag int) (int, float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, ErrEmptyWindow
	}
	if minLag > maxLag {
		minLag, maxLag = maxLag, minLag
	}
	// Clamp to lags that leave at least MinOverlap frames in common.
	lowest := -(len(b) - MinOverlap)
	highest := len(a) - MinOverlap
	if minLag < lowest {
		minLag = lowest
	}
	if maxLag > highest {
		maxLag = highest
	}
	if minLag > maxLag {
		return 0, 0, ErrEmptyWindow
	}

	lo := maxInt(0, minLag)
	hi := minInt(len(a), maxLag+len(b))
	sub := demean(a[lo:hi])
	bb := demean(b)

	n := nextPow2(len(sub) + len(bb))
	pa := make([]float64, n)
	pb := make([]float64, n)
	copy(pa, sub)
	copy(pb, bb)
	fa := fft.FFTReal(pa)
	fb := fft.FFTReal(pb)
	for i := range fa {
		fa[i] *= complex(real(fb[i]), -imag(fb[i]))
	}
	raw := fft.IFFT(fa)

	sa := prefixSquares(sub)
	sb := prefixSquares(bb)

	bestLag := 0
	best := math.Inf(-1)
	for k := minLag; k <= maxLag; k++ {
		rel := k - lo
		i0 := maxInt(0, -rel)
		i1 := minInt(len(bb), len(sub)-rel)
		if i1-i0 < MinOverlap {
			continue
		}
		eb := sb[i1] - sb[i0]
		ea := sa[i1+rel] - sa[i0+rel]
		if ea <= 0 || eb <= 0 {
			continue
		}
		idx := rel
		if idx < 0 {
			idx += n
		}
		r := real(raw[idx]) / math.Sqrt(ea*eb)
		if r > best {
			best = r
			bestLag = k
		}
	}
	if math.IsInf(best, -1) {
		return 0, 0, ErrEmptyWindow
	}
	if best > 1 {
		best = 1
	}
	return bestLag, best, nil
}

func demean(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	for i, v := range x {
		out[i] = v - mean
	}
	return out
}

func prefixSquares(x []float64) []float64 {
	out := make([]float64, len(x)+1)
	for i, v := range x {
		out[i+1] = out[i] + v*v
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
