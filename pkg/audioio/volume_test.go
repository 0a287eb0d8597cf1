package audioio

import (
	"math"
	"testing"
)

func sineSamples(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*float64(i)/48))
	}
	return out
}

func TestEstimateActivity_Silence(t *testing.T) {
	if got := EstimateActivity(make([]int16, 480)); got != 0 {
		t.Errorf("Expected exactly 0 for silence, got %f", got)
	}
}

func TestEstimateActivity_Empty(t *testing.T) {
	if got := EstimateActivity(nil); got != 0 {
		t.Errorf("Expected 0 for empty input, got %f", got)
	}
}

func TestEstimateActivity_FullScale(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
	}{
		{"positive", []int16{32767, 32767, 32767, 32767}},
		{"square", []int16{32767, -32767, 32767, -32767}},
		{"negative rail", []int16{-32768, -32768}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateActivity(tt.samples)
			if math.Abs(got-1) > 1e-9 {
				t.Errorf("Expected 1.0 for full scale, got %f", got)
			}
		})
	}
}

func TestEstimateActivity_Monotonic(t *testing.T) {
	prev := -1.0
	for _, amp := range []float64{0, 0.1, 0.25, 0.5, 0.75, 1} {
		got := EstimateActivity(sineSamples(480, amp))
		if got < prev {
			t.Errorf("Activity decreased at amplitude %.2f: %f < %f", amp, got, prev)
		}
		if got < 0 || got > 1 {
			t.Errorf("Activity out of range at amplitude %.2f: %f", amp, got)
		}
		prev = got
	}

	// A full-scale sine has RMS 1/sqrt(2)
	if got := EstimateActivity(sineSamples(480, 1)); math.Abs(got-1/math.Sqrt2) > 0.01 {
		t.Errorf("Expected ~0.707 for full-scale sine, got %f", got)
	}
}

func TestCalculateRMS(t *testing.T) {
	// Silence
	rms := CalculateRMS([]int16{0, 0, 0})
	if rms != 0 {
		t.Errorf("Expected RMS 0 for silence, got %f", rms)
	}

	// Full scale
	samples := []int16{32767, 32767, 32767}
	rms = CalculateRMS(samples)
	if rms < 0.99 || rms > 1.01 {
		t.Errorf("Expected RMS ~1.0 for full scale, got %f", rms)
	}

	// Empty
	rms = CalculateRMS(nil)
	if rms != 0 {
		t.Errorf("Expected RMS 0 for empty, got %f", rms)
	}
}

func TestFrameLevel(t *testing.T) {
	if got := FrameLevel(nil); got != 0 {
		t.Errorf("Expected 0 for empty frame, got %f", got)
	}
	if got := FrameLevel([]float32{0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected 0.5, got %f", got)
	}
	if got := FrameLevel([]float32{4, -4}); got != 1 {
		t.Errorf("Expected out-of-range samples to clamp to 1, got %f", got)
	}
}
