package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64

	// ClipNorm rescales each update's gradients so their joint global
	// norm never exceeds this ceiling. 0 disables clipping.
	ClipNorm float64
}

// Create returns a new Adam solver as described by the AdamConfig
func (a AdamConfig) Create() Solver {
	return &adam{config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// NewDefaultAdam returns a new Adam solver with default hyperparameters
// and gradient clipping at clipNorm.
func NewDefaultAdam(stepSize, clipNorm float64) Solver {
	return NewAdam(AdamConfig{
		StepSize: stepSize,
		Epsilon:  1e-8,
		Beta1:    0.9,
		Beta2:    0.999,
		ClipNorm: clipNorm,
	})
}

// NewAdam returns a new Adam solver
func NewAdam(config AdamConfig) Solver {
	return config.Create()
}

// adam implements the Adam update rule with bias-corrected moment
// estimates. Moments are allocated lazily on the first Step so the
// solver can be constructed before the model exists.
type adam struct {
	config AdamConfig
	state  State
}

// Step applies one Adam update to the model in place.
func (a *adam) Step(model []G.ValueGrad) error {
	values := make([][]float64, len(model))
	grads := make([][]float64, len(model))
	for i, vg := range model {
		value, err := floatData(vg.Value())
		if err != nil {
			return fmt.Errorf("step: parameter %v: %v", i, err)
		}
		gradValue, err := vg.Grad()
		if err != nil {
			return fmt.Errorf("step: parameter %v has no gradient: %v", i, err)
		}
		grad, err := floatData(gradValue)
		if err != nil {
			return fmt.Errorf("step: gradient %v: %v", i, err)
		}
		if len(grad) != len(value) {
			return fmt.Errorf("step: gradient %v size \n\twant(%v)"+
				"\n\thave(%v)", i, len(value), len(grad))
		}
		values[i] = value
		grads[i] = grad
	}

	if err := a.ensureState(values); err != nil {
		return fmt.Errorf("step: %v", err)
	}

	scale := 1.0
	if a.config.ClipNorm > 0 {
		if norm := globalNorm(grads); norm > a.config.ClipNorm {
			scale = a.config.ClipNorm / norm
		}
	}

	a.state.Step++
	correction1 := 1.0 - math.Pow(a.config.Beta1, float64(a.state.Step))
	correction2 := 1.0 - math.Pow(a.config.Beta2, float64(a.state.Step))

	for i := range values {
		m := a.state.FirstMoments[i]
		v := a.state.SecondMoments[i]
		for j, g := range grads[i] {
			g *= scale
			m[j] = a.config.Beta1*m[j] + (1.0-a.config.Beta1)*g
			v[j] = a.config.Beta2*v[j] + (1.0-a.config.Beta2)*g*g

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			values[i][j] -= a.config.StepSize * mHat /
				(math.Sqrt(vHat) + a.config.Epsilon)
		}
	}
	return nil
}

// State returns the serializable optimizer state.
func (a *adam) State() *State {
	return &a.state
}

// SetState restores previously captured optimizer state.
func (a *adam) SetState(state *State) error {
	if state == nil {
		return fmt.Errorf("setstate: no state")
	}
	if len(state.FirstMoments) != len(state.SecondMoments) {
		return fmt.Errorf("setstate: mismatched moment groups \n\twant(%v)"+
			"\n\thave(%v)", len(state.FirstMoments),
			len(state.SecondMoments))
	}
	a.state = *state
	return nil
}

// ensureState allocates or validates the moment estimates against the
// model's parameter sizes.
func (a *adam) ensureState(values [][]float64) error {
	if a.state.FirstMoments == nil {
		a.state.FirstMoments = make([][]float64, len(values))
		a.state.SecondMoments = make([][]float64, len(values))
		for i := range values {
			a.state.FirstMoments[i] = make([]float64, len(values[i]))
			a.state.SecondMoments[i] = make([]float64, len(values[i]))
		}
		return nil
	}

	if len(a.state.FirstMoments) != len(values) {
		return fmt.Errorf("optimizer state tracks %v parameters, model "+
			"has %v", len(a.state.FirstMoments), len(values))
	}
	for i := range values {
		if len(a.state.FirstMoments[i]) != len(values[i]) {
			return fmt.Errorf("optimizer state parameter %v size "+
				"\n\twant(%v)\n\thave(%v)", i, len(values[i]),
				len(a.state.FirstMoments[i]))
		}
	}
	return nil
}

// globalNorm computes the L2 norm over all gradient groups jointly.
func globalNorm(grads [][]float64) float64 {
	var sum float64
	for _, group := range grads {
		for _, g := range group {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

// floatData extracts the float64 backing slice of a gorgonia value.
func floatData(value G.Value) ([]float64, error) {
	if value == nil {
		return nil, fmt.Errorf("no value")
	}
	data, ok := value.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("value is not float64-backed: %T",
			value.Data())
	}
	return data, nil
}
