// Package network provides the gorgonia neural networks used by the
// learner and the actors: a plain multi-layer perceptron, a Gaussian
// policy head, and a categorical critic head over a fixed return
// support. Networks are built once per computational graph; parameter
// exchange between graphs goes through Set or through named value
// copies of Learnables.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a feedforward network living on one computational graph
// with a fixed batch size.
type NeuralNet interface {
	// Graph returns the computational graph the network was built on.
	Graph() *G.ExprGraph

	// BatchSize returns the number of rows the input node expects.
	BatchSize() int

	// Features returns the number of features in one input row.
	Features() int

	// SetInput sets the value of the network's input node. The input
	// is row-major with BatchSize() rows of Features() columns.
	// Networks built from another node's output have no input node of
	// their own and return an error.
	SetInput([]float64) error

	// Set copies the learnable values of source onto this network.
	// Both networks must have structurally identical learnables.
	Set(source NeuralNet) error

	// Learnables returns the trainable nodes in a fixed order.
	Learnables() G.Nodes

	// Model returns the learnables as value-gradient pairs for a
	// solver.
	Model() []G.ValueGrad

	// Output returns the values read from the prediction nodes after
	// the last run of a machine on the graph.
	Output() []G.Value

	// Prediction returns the graph nodes holding the network outputs.
	Prediction() []*G.Node
}
