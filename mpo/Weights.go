package mpo

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Weights computes the E-step reweighting of sampled actions: for each
// batch element (row), a softmax over the N sampled actions' Q-values
// scaled by the current temperature. Each returned row is a
// distribution over the N samples summing to 1.
func Weights(q [][]float64, temperature float64) [][]float64 {
	out := make([][]float64, len(q))
	for b, row := range q {
		scaled := make([]float64, len(row))
		for n, value := range row {
			scaled[n] = value / temperature
		}
		max := floats.Max(scaled)

		var sum float64
		for n := range scaled {
			scaled[n] = math.Exp(scaled[n] - max)
			sum += scaled[n]
		}
		for n := range scaled {
			scaled[n] /= sum
		}
		out[b] = scaled
	}
	return out
}
