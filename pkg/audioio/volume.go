package audioio

import "math"

// EstimateActivity returns the RMS level of samples normalized to [0, 1],
// where 1 is a full-scale square wave. Empty input yields 0.
func EstimateActivity(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		f := ToNormalizedFloat(s)
		sum += f * f
	}

	level := math.Sqrt(sum / float64(len(samples)))
	if level > 1 {
		return 1
	}
	return level
}

// CalculateRMS calculates the mean power of samples.
// Returns a value between 0.0 and 1.0.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	rms := sum / float64(len(samples))
	// Normalize to 0-1 range (32767^2 = max possible)
	return math.Min(rms/(32767*32767), 1)
}

// FrameLevel returns the RMS level of a float capture frame in [0, 1].
func FrameLevel(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		f := math.Max(-1, math.Min(1, float64(s)))
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
