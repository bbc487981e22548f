// Package distributional implements the categorical return distribution
// used by the distributional critic: a fixed support of atoms with
// logits, log-sum-exp mixtures over action samples, and the projected
// Bellman update.
package distributional

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Support returns atoms evenly spaced atoms spanning [vmin, vmax].
func Support(vmin, vmax float64, atoms int) ([]float64, error) {
	if atoms < 2 {
		return nil, fmt.Errorf("support: need at least 2 atoms \n\thave(%v)",
			atoms)
	}
	if vmax <= vmin {
		return nil, fmt.Errorf("support: vmax must exceed vmin "+
			"\n\thave([%v, %v])", vmin, vmax)
	}
	values := make([]float64, atoms)
	step := (vmax - vmin) / float64(atoms-1)
	for i := range values {
		values[i] = vmin + float64(i)*step
	}
	return values, nil
}

// LogSoftmax converts logits to log-probabilities over the atoms.
func LogSoftmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	copy(out, logits)
	max := floats.Max(out)

	var sum float64
	for i := range out {
		out[i] -= max
		sum += math.Exp(out[i])
	}
	logSum := math.Log(sum)
	for i := range out {
		out[i] -= logSum
	}
	return out
}

// Probs converts logits to probabilities over the atoms.
func Probs(logits []float64) []float64 {
	out := LogSoftmax(logits)
	for i := range out {
		out[i] = math.Exp(out[i])
	}
	return out
}

// Mean returns the expected value of a categorical distribution.
func Mean(values, probs []float64) float64 {
	return floats.Dot(values, probs)
}

// logSumExp reduces a slice to log(sum(exp(x))).
func logSumExp(x []float64) float64 {
	max := floats.Max(x)
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

// Mixture combines N per-sample log-probability rows into one mixture
// distribution by log-sum-exp across the sample axis. This averages
// probabilities, not logits: the result is the distribution of a uniform
// mixture over the N samples. Returns normalized log-probabilities.
func Mixture(logProbs [][]float64) ([]float64, error) {
	if len(logProbs) == 0 {
		return nil, fmt.Errorf("mixture: no components")
	}
	atoms := len(logProbs[0])
	column := make([]float64, len(logProbs))
	out := make([]float64, atoms)
	for a := 0; a < atoms; a++ {
		for n, row := range logProbs {
			if len(row) != atoms {
				return nil, fmt.Errorf("mixture: ragged components "+
					"\n\twant(%v)\n\thave(%v)", atoms, len(row))
			}
			column[n] = row[a]
		}
		out[a] = logSumExp(column)
	}

	// Normalize: subtracting log N here is equivalent to dividing the
	// mixture probabilities by the number of components.
	norm := logSumExp(out)
	for a := range out {
		out[a] -= norm
	}
	return out, nil
}

// Project computes the categorical Bellman target: the distribution with
// probabilities probs over atoms values, shifted to reward + discount *
// values and projected back onto the same support.
func Project(values []float64, reward, discount float64,
	probs []float64) []float64 {
	atoms := len(values)
	vmin := values[0]
	vmax := values[atoms-1]
	dz := (vmax - vmin) / float64(atoms-1)

	out := make([]float64, atoms)
	for j := 0; j < atoms; j++ {
		tz := reward + discount*values[j]
		if tz < vmin {
			tz = vmin
		} else if tz > vmax {
			tz = vmax
		}
		b := (tz - vmin) / dz
		l := int(math.Floor(b))
		u := int(math.Ceil(b))
		if l == u {
			out[l] += probs[j]
		} else {
			out[l] += probs[j] * (float64(u) - b)
			out[u] += probs[j] * (b - float64(l))
		}
	}
	return out
}
