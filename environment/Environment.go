// Package environment outlines the interfaces needed to implement concrete
// environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/gaitlab/dmpo/timestep"
)

// Cardinality indicates whether the associated type is continuous or discrete
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Spec implements a specification, which tells the type, shape, and bounds of
// an action, observation, discount, or reward
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// Environment implements a simulated environment. Reset starts a new
// episode and returns its first timestep. Step takes one action in the
// environment and returns the resulting timestep and whether the episode
// ended with it. A discount of 0 on the returned timestep signals that
// bootstrapping must be cut off at this state.
//
// Environments are driven by a single goroutine; they need not be safe for
// concurrent use.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}
