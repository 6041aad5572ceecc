package dsp

import (
	"math"
	"testing"
)

func TestMedianAndPercentile(t *testing.T) {
	tests := []struct {
		values []float64
		median float64
		p90    float64
	}{
		{[]float64{3, 1, 2}, 2, 3},
		{[]float64{4, 1, 3, 2}, 2.5, 4},
		{nil, 0, 0},
	}

	for _, tt := range tests {
		if got := Median(tt.values); got != tt.median {
			t.Errorf("Median(%v) = %v, expected %v", tt.values, got, tt.median)
		}
		if got := Percentile(tt.values, 0.9); got != tt.p90 {
			t.Errorf("Percentile(%v, 0.9) = %v, expected %v", tt.values, got, tt.p90)
		}
	}
}

func TestTransientScore(t *testing.T) {
	silent := make([]float64, 1000)
	if s := TransientScore(silent, 100); s != 0 {
		t.Errorf("silence scored %v, expected 0", s)
	}

	steady := make([]float64, 1000)
	for i := range steady {
		steady[i] = 0.2
	}
	if s := TransientScore(steady, 100); s != 0 {
		t.Errorf("steady signal scored %v, expected 0", s)
	}

	bursty := burstSignal(1000, 5)
	if s := TransientScore(bursty, 100); s < 0.05 {
		t.Errorf("bursty signal scored %v, expected transient-rich", s)
	}
}

func TestEstimateSNR(t *testing.T) {
	bursty := burstSignal(2000, 9)
	if snr := EstimateSNR(bursty, 100); snr < 10 {
		t.Errorf("bursty SNR = %.1f dB, expected > 10", snr)
	}

	steady := make([]float64, 2000)
	for i := range steady {
		steady[i] = 0.3
	}
	if snr := EstimateSNR(steady, 100); math.Abs(snr) > 1e-9 {
		t.Errorf("steady SNR = %.3f dB, expected 0", snr)
	}
}

func TestLevelDBFS(t *testing.T) {
	full := []float64{1, -1, 1, -1}
	if lvl := LevelDBFS(full); math.Abs(lvl) > 1e-9 {
		t.Errorf("full-scale level = %v, expected 0", lvl)
	}
	if lvl := LevelDBFS(make([]float64, 10)); lvl != silenceFloorDB {
		t.Errorf("silence level = %v, expected floor", lvl)
	}
}
