package dsp

import (
	"errors"
	"math"
	"testing"
)

func TestSTFTShape(t *testing.T) {
	samples := make([]float64, 4096)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 16000)
	}

	spec, err := STFT(samples, WindowSize, HopSize)
	if err != nil {
		t.Fatalf("STFT failed: %v", err)
	}
	expectedFrames := 1 + (len(samples)-WindowSize)/HopSize
	if len(spec) != expectedFrames {
		t.Errorf("got %d frames, expected %d", len(spec), expectedFrames)
	}
	if len(spec[0]) != WindowSize/2 {
		t.Errorf("got %d bins, expected %d", len(spec[0]), WindowSize/2)
	}
}

func TestSTFTTooShort(t *testing.T) {
	_, err := STFT(make([]float64, 10), WindowSize, HopSize)
	if !errors.Is(err, ErrInputTooShort) {
		t.Errorf("expected ErrInputTooShort, got %v", err)
	}
}

func TestOnsetEnvelopeRate(t *testing.T) {
	samples := make([]float64, 16000)
	for i := 4000; i < 4100; i++ {
		samples[i] = 0.9
	}

	env, rate, err := OnsetEnvelope(samples, 16000)
	if err != nil {
		t.Fatalf("OnsetEnvelope failed: %v", err)
	}
	if rate != 100 {
		t.Errorf("rate = %v, expected 100", rate)
	}

	peak := 0
	for i, v := range env {
		if v > env[peak] {
			peak = i
		}
	}
	// The click at 0.25 s lands within a window length of frame 25.
	if peak < 18 || peak > 26 {
		t.Errorf("onset peak at frame %d, expected near 25", peak)
	}
}

func TestOnsetEnvelopeBadRate(t *testing.T) {
	if _, _, err := OnsetEnvelope(make([]float64, 2048), 0); !errors.Is(err, ErrBadRate) {
		t.Errorf("expected ErrBadRate, got %v", err)
	}
}
