package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// stdOffset is added to the exponentiated log-standard-deviation head
// so the policy's standard deviation is offset from 0.
const stdOffset float64 = 1e-3

// GaussianPolicy is a diagonal-Gaussian policy head: a fully connected
// trunk followed by separate linear mean and log-standard-deviation
// heads over the action dimensions. Prediction()[0] is the mean and
// Prediction()[1] the standard deviation, each of shape
// (batch, actionDims).
type GaussianPolicy struct {
	g       *G.ExprGraph
	trunk   []*fcLayer
	meanFC  *fcLayer
	stdFC   *fcLayer
	input   *G.Node
	ownsIn  bool
	actDims int

	numInputs int
	batchSize int

	learnables G.Nodes
	model      []G.ValueGrad

	mean    *G.Node
	std     *G.Node
	meanVal G.Value
	stdVal  G.Value
}

// NewGaussianPolicyFromInput returns a Gaussian policy computing on an
// existing graph node, e.g. an observation embedding produced upstream
// on the same graph.
func NewGaussianPolicyFromInput(input *G.Node, actionDims int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn,
	prefix string) (*GaussianPolicy, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newgaussianpolicy: invalid number of "+
			"activations\n\twant(%d)\n\thave(%d)", len(hiddenSizes),
			len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newgaussianpolicy: invalid number of "+
			"biases\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newgaussianpolicy: input must be a matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	trunk := addfcLayers(g, hiddenSizes, biases, activations, init, features,
		prefix)
	trunkOut := features
	if len(hiddenSizes) > 0 {
		trunkOut = hiddenSizes[len(hiddenSizes)-1]
	}

	// Linear heads, one for the mean and one for the log standard
	// deviation.
	meanFC := addfcLayers(g, []int{actionDims}, []bool{true},
		[]*Activation{Identity()}, init, trunkOut, prefix+"Mean")[0]
	stdFC := addfcLayers(g, []int{actionDims}, []bool{true},
		[]*Activation{Identity()}, init, trunkOut, prefix+"LogStd")[0]

	pol := &GaussianPolicy{
		g:         g,
		trunk:     trunk,
		meanFC:    meanFC,
		stdFC:     stdFC,
		input:     input,
		actDims:   actionDims,
		numInputs: features,
		batchSize: batch,
	}
	if err := pol.fwd(input); err != nil {
		return nil, fmt.Errorf("newgaussianpolicy: could not compute "+
			"forward pass: %v", err)
	}
	return pol, nil
}

// NewGaussianPolicy creates a Gaussian policy on graph g with its own
// input node of shape (batch, features).
func NewGaussianPolicy(features, batch, actionDims int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn, prefix string) (*GaussianPolicy, error) {
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName(prefix+"Input"), G.WithInit(G.Zeroes()))

	pol, err := NewGaussianPolicyFromInput(input, actionDims, g, hiddenSizes,
		biases, activations, init, prefix)
	if err != nil {
		return nil, err
	}
	pol.ownsIn = true
	return pol, nil
}

// fwd adds the trunk and head forward passes to the graph.
func (p *GaussianPolicy) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range p.trunk {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	mean, err := p.meanFC.fwd(pred)
	if err != nil {
		return fmt.Errorf("fwd: could not compute mean head: %v", err)
	}
	logStd, err := p.stdFC.fwd(pred)
	if err != nil {
		return fmt.Errorf("fwd: could not compute log-std head: %v", err)
	}

	// Calculate the standard deviation and offset it for numerical
	// stability
	offset := G.NewConstant(stdOffset)
	std := G.Must(G.Exp(logStd))
	std = G.Must(G.Add(offset, std))

	p.mean = mean
	p.std = std
	G.Read(p.mean, &p.meanVal)
	G.Read(p.std, &p.stdVal)
	return nil
}

// Graph returns the computational graph of the policy.
func (p *GaussianPolicy) Graph() *G.ExprGraph {
	return p.g
}

// BatchSize returns the batch size of inputs to the policy
func (p *GaussianPolicy) BatchSize() int {
	return p.batchSize
}

// Features returns the number of features in a single input row.
func (p *GaussianPolicy) Features() int {
	return p.numInputs
}

// ActionDims returns the dimensionality of the action space.
func (p *GaussianPolicy) ActionDims() int {
	return p.actDims
}

// SetInput sets the value of the input node before running the forward
// pass.
func (p *GaussianPolicy) SetInput(input []float64) error {
	if !p.ownsIn {
		return fmt.Errorf("setinput: network computes on external nodes")
	}
	if len(input) != p.numInputs*p.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", p.numInputs*p.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(p.input.Shape()...),
	)
	return G.Let(p.input, inputTensor)
}

// Set sets the weights of the policy to be equal to the weights of
// another policy with the same structure.
func (p *GaussianPolicy) Set(source NeuralNet) error {
	return setLearnables(p.Learnables(), source.Learnables())
}

// Learnables returns the learnable nodes: trunk layers in order, then
// the mean head, then the log-std head.
func (p *GaussianPolicy) Learnables() G.Nodes {
	// Lazy instantiation
	if p.learnables == nil {
		layers := append(append([]*fcLayer{}, p.trunk...), p.meanFC, p.stdFC)
		p.learnables = layerLearnables(layers)
	}
	return p.learnables
}

// Model returns the learnables nodes with their gradients.
func (p *GaussianPolicy) Model() []G.ValueGrad {
	// Lazy instantiation
	if p.model == nil {
		p.model = learnablesModel(p.Learnables())
	}
	return p.model
}

// Output returns the mean and standard deviation values after the last
// run of a machine on the graph.
func (p *GaussianPolicy) Output() []G.Value {
	return []G.Value{p.meanVal, p.stdVal}
}

// Prediction returns the mean and standard deviation nodes.
func (p *GaussianPolicy) Prediction() []*G.Node {
	return []*G.Node{p.mean, p.std}
}

// Mean returns the node holding the policy mean.
func (p *GaussianPolicy) Mean() *G.Node {
	return p.mean
}

// Stddev returns the node holding the policy standard deviation.
func (p *GaussianPolicy) Stddev() *G.Node {
	return p.std
}
