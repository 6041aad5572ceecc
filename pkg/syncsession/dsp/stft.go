package dsp

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	WindowSize = 1024
	HopSize    = 160
)

// ErrInputTooShort is returned when a signal cannot fill a single analysis window.
var ErrInputTooShort = errors.New("dsp: input shorter than window size")

// MagnitudeSpectrum keeps the non-negative frequency half of an FFT.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT returns one magnitude spectrum per hop, Hamming-windowed.
func STFT(samples []float64, windowSize, hopSize int) ([][]float64, error) {
	if windowSize <= 0 || hopSize <= 0 {
		return nil, errors.New("dsp: window and hop must be positive")
	}
	if len(samples) < windowSize {
		return nil, ErrInputTooShort
	}

	win := window.Hamming(windowSize)
	frames := 1 + (len(samples)-windowSize)/hopSize
	spectrogram := make([][]float64, 0, frames)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * win[i]
		}
		spectrogram = append(spectrogram, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}
