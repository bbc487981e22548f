// Package actor implements the rollout drivers: actors that feed
// replay with a stochastic behavior policy, and evaluators that run the
// deterministic policy, aggregate rolling statistics, and render
// published snapshots.
package actor

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/varsync"
)

// policy is the actor-local observation∘policy composition at batch
// size 1. Its parameters are whatever the last variable fetch or
// snapshot load installed.
type policy struct {
	g   *G.ExprGraph
	obs network.NeuralNet
	pol *network.GaussianPolicy
	vm  G.VM

	obsDim     int
	actionDims int
	rng        *rand.Rand
}

func newPolicy(builder network.Builder, obsDim, actionDims int,
	seed uint64) (*policy, error) {
	if err := builder.Validate(); err != nil {
		return nil, fmt.Errorf("newpolicy: %v", err)
	}

	g := G.NewGraph()
	obs, err := builder.Observation(g, 1, obsDim)
	if err != nil {
		return nil, fmt.Errorf("newpolicy: could not build observation "+
			"network: %v", err)
	}
	pol, err := builder.PolicyFromInput(obs.Prediction()[0], actionDims)
	if err != nil {
		return nil, fmt.Errorf("newpolicy: could not build policy "+
			"network: %v", err)
	}

	return &policy{
		g:          g,
		obs:        obs,
		pol:        pol,
		vm:         G.NewTapeMachine(g),
		obsDim:     obsDim,
		actionDims: actionDims,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// SelectAction runs the forward pass at one observation and returns
// either a sample from the policy (stochastic) or its mean.
func (p *policy) SelectAction(observation mat.Vector, stochastic bool) (
	*mat.VecDense, error) {
	if observation.Len() != p.obsDim {
		return nil, fmt.Errorf("selectaction: observation size "+
			"\n\twant(%v)\n\thave(%v)", p.obsDim, observation.Len())
	}

	input := make([]float64, p.obsDim)
	for d := range input {
		input[d] = observation.AtVec(d)
	}
	if err := p.obs.SetInput(input); err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("selectaction: could not run policy: %v", err)
	}
	mean := p.pol.Output()[0].Data().([]float64)
	std := p.pol.Output()[1].Data().([]float64)

	action := make([]float64, p.actionDims)
	for d := range action {
		action[d] = mean[d]
		if stochastic {
			action[d] += std[d] * p.rng.NormFloat64()
		}
	}
	p.vm.Reset()
	return mat.NewVecDense(p.actionDims, action), nil
}

// learnables returns the parameter nodes in the order the learner's
// "policy" collection serves them: observation network first, then the
// policy head.
func (p *policy) learnables() G.Nodes {
	return append(append(G.Nodes{}, p.obs.Learnables()...),
		p.pol.Learnables()...)
}

// apply installs a fetched "policy" variable collection.
func (p *policy) apply(variables []varsync.Variable) error {
	return varsync.Apply(p.learnables(), variables)
}
