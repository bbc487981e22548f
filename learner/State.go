package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/gaitlab/dmpo/mpo"
	"github.com/gaitlab/dmpo/solver"
)

// State is the full serializable learner state: the step counter, all
// six networks' parameters in learnable order, the MPO duals, and the
// three optimizer states. Saving and restoring a checkpoint is pure
// (de)serialization of this object.
type State struct {
	Steps             int64
	GetVariablesCalls int64
	Networks          map[string][][]float64
	Duals             *mpo.State
	Solvers           map[string]*solver.State
}

// State captures the learner's current state.
func (l *Learner) State() *State {
	l.mu.Lock()
	defer l.mu.Unlock()

	networks := make(map[string][][]float64)
	for name, learnables := range l.networksByName() {
		values := make([][]float64, len(learnables))
		for i, node := range learnables {
			values[i] = append([]float64{},
				node.Value().Data().([]float64)...)
		}
		networks[name] = values
	}

	return &State{
		Steps:             l.steps,
		GetVariablesCalls: l.getVariablesCalls,
		Networks:          networks,
		Duals:             l.duals.State(),
		Solvers: map[string]*solver.State{
			"critic": l.criticSolver.State(),
			"policy": l.policySolver.State(),
			"duals":  l.dualsSolver.State(),
		},
	}
}

// SetState restores a previously captured state. The learner must have
// been built with the same configuration and builder.
func (l *Learner) SetState(state *State) error {
	if state == nil {
		return fmt.Errorf("setstate: no state")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, learnables := range l.networksByName() {
		values, ok := state.Networks[name]
		if !ok {
			return fmt.Errorf("setstate: state has no network %v", name)
		}
		if len(values) != len(learnables) {
			return fmt.Errorf("setstate: network %v learnables "+
				"\n\twant(%v)\n\thave(%v)", name, len(learnables),
				len(values))
		}
		for i, node := range learnables {
			if len(values[i]) != node.Shape().TotalSize() {
				return fmt.Errorf("setstate: network %v learnable %v size "+
					"\n\twant(%v)\n\thave(%v)", name, i,
					node.Shape().TotalSize(), len(values[i]))
			}
			t := tensor.New(
				tensor.WithBacking(append([]float64{}, values[i]...)),
				tensor.WithShape(node.Shape()...))
			if err := G.Let(node, t); err != nil {
				return fmt.Errorf("setstate: could not set %v: %v",
					node.Name(), err)
			}
		}
	}

	if err := l.duals.SetState(state.Duals); err != nil {
		return fmt.Errorf("setstate: %v", err)
	}
	for name, sol := range map[string]solver.Solver{
		"critic": l.criticSolver,
		"policy": l.policySolver,
		"duals":  l.dualsSolver,
	} {
		solState, ok := state.Solvers[name]
		if !ok {
			return fmt.Errorf("setstate: state has no %v solver", name)
		}
		if err := sol.SetState(solState); err != nil {
			return fmt.Errorf("setstate: %v solver: %v", name, err)
		}
	}

	l.steps = state.Steps
	l.getVariablesCalls = state.GetVariablesCalls
	return nil
}

func (l *Learner) networksByName() map[string]G.Nodes {
	return map[string]G.Nodes{
		"online_observation": l.onlineObs.Learnables(),
		"online_critic":      l.onlineCritic.Learnables(),
		"online_policy":      l.onlinePolicy.Learnables(),
		"target_observation": l.targetObs.Learnables(),
		"target_policy":      l.targetPolicy.Learnables(),
		"target_critic":      l.targetCritic.Learnables(),
	}
}
