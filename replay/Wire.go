package replay

import (
	"gonum.org/v1/gonum/mat"

	"github.com/gaitlab/dmpo/timestep"
)

// wireTransition is the JSON form of a transition.
type wireTransition struct {
	Observation     []float64 `json:"observation"`
	Action          []float64 `json:"action"`
	Reward          float64   `json:"reward"`
	Discount        float64   `json:"discount"`
	NextObservation []float64 `json:"next_observation"`
}

// InsertRequest carries one or more transitions to the table.
type InsertRequest struct {
	Transitions []wireTransition `json:"transitions"`
}

// SampleResponse carries a sampled batch back to the learner.
type SampleResponse struct {
	Transitions []wireTransition `json:"transitions"`
}

func toWire(t timestep.Transition) wireTransition {
	return wireTransition{
		Observation:     vectorData(t.Observation),
		Action:          vectorData(t.Action),
		Reward:          t.Reward,
		Discount:        t.Discount,
		NextObservation: vectorData(t.NextObservation),
	}
}

func fromWire(w wireTransition) timestep.Transition {
	return timestep.Transition{
		Observation:     mat.NewVecDense(len(w.Observation), w.Observation),
		Action:          mat.NewVecDense(len(w.Action), w.Action),
		Reward:          w.Reward,
		Discount:        w.Discount,
		NextObservation: mat.NewVecDense(len(w.NextObservation),
			w.NextObservation),
	}
}

func vectorData(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
