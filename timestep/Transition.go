package timestep

import "gonum.org/v1/gonum/mat"

// Transition is a single training example: an n-step-aggregated record of
// acting in an environment. Reward holds the discounted n-step return of
// the aggregated window and Discount holds the bootstrap discount for
// NextObservation. A Transition is immutable once constructed.
type Transition struct {
	Observation     mat.Vector
	Action          mat.Vector
	Reward          float64
	Discount        float64
	NextObservation mat.Vector
}

// NewTransition packages two timesteps and the intervening action into a
// Transition.
func NewTransition(step TimeStep, action mat.Vector,
	next TimeStep) Transition {
	return Transition{
		Observation:     step.Observation,
		Action:          action,
		Reward:          next.Reward,
		Discount:        next.Discount,
		NextObservation: next.Observation,
	}
}
