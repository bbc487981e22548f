package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron with a single output head.
// It backs both the observation embedding network and the categorical
// critic head.
type mlp struct {
	g      *G.ExprGraph
	layers []*fcLayer

	// input is nil when the network was built on top of other nodes'
	// outputs, in which case the owner of those nodes feeds them.
	input *G.Node

	numOutputs int
	numInputs  int
	batchSize  int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// newMLPFromInputs returns an MLP computing on existing graph nodes. If
// multiple input nodes are given, they are first concatenated along the
// feature (column) dimension. A final linear layer of size outputs with
// a bias and no activation is always appended.
func newMLPFromInputs(inputs []*G.Node, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn, prefix string) (*mlp, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newmlp: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(1, inputs...))
	} else {
		input = inputs[0]
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newmlp: input must be a matrix")
	}
	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Final linear layer so the output head has size outputs
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	withBias := append(append([]bool{}, biases...), true)
	acts := append(append([]*Activation{}, activations...), Identity())

	network := &mlp{
		g:          g,
		layers:     addfcLayers(g, sizes, withBias, acts, init, features, prefix),
		numOutputs: outputs,
		numInputs:  features,
		batchSize:  batch,
	}
	if err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("newmlp: could not compute forward pass: %v",
			err)
	}
	return network, nil
}

// NewMLP creates an MLP on graph g with its own input node of shape
// (batch, features). See newMLPFromInputs for the layer layout.
func NewMLP(features, batch, outputs int, g *G.ExprGraph, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn,
	prefix string) (NeuralNet, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"Input"), G.WithInit(G.Zeroes()))

	network, err := newMLPFromInputs([]*G.Node{input}, outputs, g, hiddenSizes,
		biases, activations, init, prefix)
	if err != nil {
		return nil, err
	}
	network.input = input
	return network, nil
}

// fwd performs the forward pass of the mlp on the input node
func (e *mlp) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}
	e.prediction = pred
	G.Read(e.prediction, &e.predVal)
	return nil
}

// Graph returns the computational graph of the mlp.
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input row.
func (e *mlp) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *mlp) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *mlp) SetInput(input []float64) error {
	if e.input == nil {
		return fmt.Errorf("setinput: network computes on external nodes")
	}
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of the mlp to be equal to the weights of another
// network with the same structure.
func (e *mlp) Set(source NeuralNet) error {
	return setLearnables(e.Learnables(), source.Learnables())
}

// Learnables returns the learnable nodes in the mlp
func (e *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = layerLearnables(e.layers)
	}
	return e.learnables
}

// Model returns the learnables nodes with their gradients.
func (e *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = learnablesModel(e.Learnables())
	}
	return e.model
}

// Output returns the output of the mlp.
func (e *mlp) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the node of the computational graph that stores
// the output of the mlp
func (e *mlp) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// layerLearnables collects the weight and bias nodes of a layer stack.
func layerLearnables(layers []*fcLayer) G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(layers))
	for i := range layers {
		learnables = append(learnables, layers[i].Weights())
		if bias := layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// learnablesModel wraps learnables as value-gradient pairs.
func learnablesModel(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}

// setLearnables copies source values onto dest node by node. The copies
// are independent: mutating the source afterwards does not affect dest.
func setLearnables(dest, source G.Nodes) error {
	if len(dest) != len(source) {
		return fmt.Errorf("set: mismatched learnables\n\twant(%v)"+
			"\n\thave(%v)", len(dest), len(source))
	}
	for i, destLearnable := range dest {
		sourceLearnable := source[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return fmt.Errorf("set: could not set learnable %v: %v",
				destLearnable.Name(), err)
		}
	}
	return nil
}
