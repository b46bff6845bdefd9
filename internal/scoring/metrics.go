// Package scoring computes per-repetition metrics and folds them into a
// bounded score. It is a heuristic proxy for movement quality, not a
// clinical measurement.
package scoring

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Epsilon keeps the inverse statistics finite when the spread is zero.
const Epsilon = 1e-6

// ROM is the peak value of a rep trace. An empty trace has ROM 0.
func ROM(trace []float64) float64 {
	if len(trace) == 0 {
		return 0
	}
	return floats.Max(trace)
}

// Smoothness is the inverse population variance of the frame-to-frame
// differences of trace. Fewer than two samples define no velocity and give 0.
func Smoothness(trace []float64) float64 {
	if len(trace) < 2 {
		return 0
	}
	velocities := make([]float64, len(trace)-1)
	for i := 1; i < len(trace); i++ {
		velocities[i-1] = trace[i] - trace[i-1]
	}
	return 1 / (stat.PopVariance(velocities, nil) + Epsilon)
}

// Consistency is the inverse population standard deviation of the ROM of
// every completed rep. With fewer than two reps it is 1.
func Consistency(roms []float64) float64 {
	if len(roms) < 2 {
		return 1.0
	}
	return 1 / (stat.PopStdDev(roms, nil) + Epsilon)
}
