// Package solver implements the optimizers used by the learner. Unlike
// the stock gorgonia solvers, these keep their moment estimates in
// exported state so a checkpoint can capture and restore the optimizer
// exactly.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam Type = "Adam"
)

// Solver updates a group of learnables from their accumulated
// gradients. One solver owns one disjoint variable group.
type Solver interface {
	// Step applies one update to the model from its current gradients.
	Step(model []G.ValueGrad) error

	// State returns the serializable optimizer state.
	State() *State

	// SetState restores previously captured optimizer state.
	SetState(*State) error
}

// State is the full serializable state of a solver: the update count
// and the per-parameter moment estimates, in model order.
type State struct {
	Step          int
	FirstMoments  [][]float64
	SecondMoments [][]float64
}

// Config describes a solver and can create it. Configs are JSON
// round-trippable so experiment configurations can be persisted.
type Config interface {
	Create() Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// TypedConfig pairs a Config with its Type for JSON round trips.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig validates that c can build a solver of type t.
func NewTypedConfig(t Type, c Config) (*TypedConfig, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newtypedconfig: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	return &TypedConfig{Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *TypedConfig) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Adam): reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalconfig: missing solver type")
	}
	var value Config
	if ty, found := customTypes[typeName]; found {
		value = reflect.New(ty).Interface().(Config)
	} else {
		return nil, "", fmt.Errorf("unmarshalconfig: unknown solver type %v",
			typeName)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}

	return value, Type(typeName), nil
}
