// Package varsync implements the pull protocol that distributes the
// learner's target-network parameters to actors and evaluators. A
// Source serves independent copies of named variable collections; a
// Client fetches them on a step cadence and applies them to local
// networks.
package varsync

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Variable is one network parameter: a named, shaped float64 tensor.
// Values are always an independent copy, never a live reference into
// the serving process.
type Variable struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// Source serves the current values of named variable collections.
type Source interface {
	// GetVariables returns a copy of each requested collection. An
	// unknown name is an error.
	GetVariables(names []string) (map[string][]Variable, error)
}

// FromLearnables snapshots the values of a set of learnable nodes.
func FromLearnables(learnables G.Nodes) []Variable {
	out := make([]Variable, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		out[i] = Variable{
			Name:   node.Name(),
			Shape:  append([]int{}, node.Shape()...),
			Values: append([]float64{}, data...),
		}
	}
	return out
}

// Apply sets a network's learnable nodes from fetched variables, in
// order. The destination node shapes must match the variable sizes
// element for element.
func Apply(learnables G.Nodes, variables []Variable) error {
	if len(learnables) != len(variables) {
		return fmt.Errorf("apply: variable count \n\twant(%v)\n\thave(%v)",
			len(learnables), len(variables))
	}
	for i, node := range learnables {
		want := node.Shape().TotalSize()
		if len(variables[i].Values) != want {
			return fmt.Errorf("apply: variable %v (%v) size \n\twant(%v)"+
				"\n\thave(%v)", i, variables[i].Name, want,
				len(variables[i].Values))
		}
		backing := append([]float64{}, variables[i].Values...)
		t := tensor.New(tensor.WithBacking(backing),
			tensor.WithShape(node.Shape()...))
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("apply: could not set %v: %v", node.Name(), err)
		}
	}
	return nil
}
