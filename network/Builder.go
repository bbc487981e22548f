package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Builder constructs the three logical networks of the agent on a given
// computational graph: the observation embedding, the Gaussian policy,
// and the categorical critic over Atoms fixed support atoms. One
// builder is created per process at startup and reused for every graph
// (online, target, actor) so all copies are structurally identical.
type Builder struct {
	ObservationHidden []int
	PolicyHidden      []int
	CriticHidden      []int
	EmbedDim          int
	Atoms             int
	Init              G.InitWFn
}

// NewBuilder returns a builder with the default architecture.
func NewBuilder(embedDim, atoms int) Builder {
	return Builder{
		ObservationHidden: []int{256},
		PolicyHidden:      []int{256, 256},
		CriticHidden:      []int{512, 512},
		EmbedDim:          embedDim,
		Atoms:             atoms,
		Init:              G.GlorotN(1.0),
	}
}

// Validate checks the builder describes a constructible architecture.
func (b Builder) Validate() error {
	if b.EmbedDim < 1 {
		return fmt.Errorf("builder: embedding dimension must be positive"+
			"\n\thave(%v)", b.EmbedDim)
	}
	if b.Atoms < 2 {
		return fmt.Errorf("builder: critic needs at least 2 support atoms"+
			"\n\thave(%v)", b.Atoms)
	}
	if b.Init == nil {
		return fmt.Errorf("builder: no weight initializer")
	}
	return nil
}

// Observation builds the observation embedding network with its own
// input node of shape (batch, obsDim).
func (b Builder) Observation(g *G.ExprGraph, batch, obsDim int) (NeuralNet,
	error) {
	n := len(b.ObservationHidden)
	return NewMLP(obsDim, batch, b.EmbedDim, g, b.ObservationHidden,
		trueBiases(n), tanhStack(n), b.Init, "Obs")
}

// Policy builds the Gaussian policy with its own input node of shape
// (batch, EmbedDim).
func (b Builder) Policy(g *G.ExprGraph, batch, actionDims int) (
	*GaussianPolicy, error) {
	n := len(b.PolicyHidden)
	return NewGaussianPolicy(b.EmbedDim, batch, actionDims, g, b.PolicyHidden,
		trueBiases(n), tanhStack(n), b.Init, "Policy")
}

// PolicyFromInput builds the Gaussian policy on top of an existing
// embedding node, e.g. the observation network's prediction on the same
// graph.
func (b Builder) PolicyFromInput(input *G.Node, actionDims int) (
	*GaussianPolicy, error) {
	if actionDims < 1 {
		return nil, fmt.Errorf("builder: action dimensions must be positive"+
			"\n\thave(%v)", actionDims)
	}
	n := len(b.PolicyHidden)
	return NewGaussianPolicyFromInput(input, actionDims, input.Graph(),
		b.PolicyHidden, trueBiases(n), tanhStack(n), b.Init, "Policy")
}

// Critic builds the categorical critic on top of existing embedding and
// action nodes on the same graph. The two are concatenated along the
// feature dimension and mapped to Atoms logits.
func (b Builder) Critic(embed, action *G.Node) (NeuralNet, error) {
	if embed.Graph() != action.Graph() {
		return nil, fmt.Errorf("builder: embedding and action nodes are " +
			"on different graphs")
	}
	n := len(b.CriticHidden)
	return newMLPFromInputs([]*G.Node{embed, action}, b.Atoms,
		embed.Graph(), b.CriticHidden, trueBiases(n), tanhStack(n), b.Init,
		"Critic")
}

func trueBiases(n int) []bool {
	biases := make([]bool, n)
	for i := range biases {
		biases[i] = true
	}
	return biases
}

func tanhStack(n int) []*Activation {
	acts := make([]*Activation, n)
	for i := range acts {
		acts[i] = TanH()
	}
	return acts
}
