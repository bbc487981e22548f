// Package adder converts sequences of environment timesteps into the
// n-step transitions consumed by replay.
package adder

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/gaitlab/dmpo/timestep"
)

// Inserter accepts finished transitions. It is implemented by the replay
// table and by its network client.
type Inserter interface {
	Insert(timestep.Transition) error
}

// record is one environment step held in the sliding window.
type record struct {
	observation mat.Vector
	action      mat.Vector
	reward      float64
	discount    float64
	next        mat.Vector
}

// NStep accumulates consecutive environment steps and emits one transition
// per step once n steps are buffered. The emitted reward is the
// geometrically discounted sum over the window and the emitted discount is
// the product of the per-step discounts times the configured discount, so
// a terminal step (environment discount 0) zeroes the bootstrap.
//
// When an episode ends with a partially filled window, exactly one
// shortened transition is flushed from the oldest buffered step.
type NStep struct {
	inserter Inserter
	n        int
	discount float64

	window  []record
	current timestep.TimeStep
	started bool
}

// NewNStep returns an adder emitting n-step transitions with the given
// additional discount per step.
func NewNStep(inserter Inserter, n int, discount float64) (*NStep, error) {
	if n < 1 {
		return nil, fmt.Errorf("newnstep: n must be positive \n\thave(%v)", n)
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newnstep: discount must be in [0, 1] "+
			"\n\thave(%v)", discount)
	}
	return &NStep{
		inserter: inserter,
		n:        n,
		discount: discount,
		window:   make([]record, 0, n),
	}, nil
}

// ObserveFirst records the first timestep of an episode.
func (a *NStep) ObserveFirst(t timestep.TimeStep) {
	a.window = a.window[:0]
	a.current = t
	a.started = true
}

// Observe records an action and the timestep that resulted from it,
// emitting transitions as windows complete. The episode's final timestep
// triggers a flush of the remaining partial window.
func (a *NStep) Observe(action mat.Vector, next timestep.TimeStep) error {
	if !a.started {
		return fmt.Errorf("observe: ObserveFirst must be called before " +
			"Observe")
	}

	a.window = append(a.window, record{
		observation: a.current.Observation,
		action:      action,
		reward:      next.Reward,
		discount:    next.Discount,
		next:        next.Observation,
	})
	a.current = next

	if len(a.window) == a.n {
		if err := a.emit(); err != nil {
			return err
		}
		a.window = a.window[1:]
	}

	if next.Last() {
		if len(a.window) > 0 {
			if err := a.emit(); err != nil {
				return err
			}
		}
		a.window = a.window[:0]
		a.started = false
	}
	return nil
}

// emit inserts one transition spanning the current window.
func (a *NStep) emit() error {
	var reward float64
	cumulative := 1.0
	for _, rec := range a.window {
		reward += cumulative * rec.reward
		cumulative *= a.discount * rec.discount
	}

	first := a.window[0]
	last := a.window[len(a.window)-1]
	return a.inserter.Insert(timestep.Transition{
		Observation:     first.observation,
		Action:          first.action,
		Reward:          reward,
		Discount:        cumulative,
		NextObservation: last.next,
	})
}
