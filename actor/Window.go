package actor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// window holds the last size episode results for rolling statistics.
// Statistics are meaningful only once the window has filled, so stats
// must not be called before full reports true.
type window struct {
	size    int
	returns []float64
	lengths []float64
	count   int
	next    int
}

func newWindow(size int) *window {
	return &window{
		size:    size,
		returns: make([]float64, size),
		lengths: make([]float64, size),
	}
}

func (w *window) add(result Result) {
	w.returns[w.next] = result.Return
	w.lengths[w.next] = float64(result.Steps)
	w.next = (w.next + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

func (w *window) full() bool { return w.count == w.size }

func (w *window) stats() map[string]float64 {
	return map[string]float64{
		"eval_return_mean":   stat.Mean(w.returns, nil),
		"eval_return_stddev": stat.StdDev(w.returns, nil),
		"eval_return_min":    floats.Min(w.returns),
		"eval_return_max":    floats.Max(w.returns),
		"eval_length_mean":   stat.Mean(w.lengths, nil),
	}
}
