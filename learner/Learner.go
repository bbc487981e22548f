// Package learner implements the distributional-MPO optimization core:
// it drains batches from replay, trains the observation, critic, and
// policy networks with three independent optimizers, synchronizes
// target networks on two independent periods, and serves parameter
// copies to actors.
package learner

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/gaitlab/dmpo/distributional"
	"github.com/gaitlab/dmpo/mpo"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/replay"
	"github.com/gaitlab/dmpo/solver"
	"github.com/gaitlab/dmpo/timestep"
	"github.com/gaitlab/dmpo/tracker"
	"github.com/gaitlab/dmpo/varsync"
)

// Variable collection names served to actors and evaluators.
const (
	PolicyCollection = "policy"
	CriticCollection = "critic"
)

// Learner runs the distributional-MPO gradient step. All mutable
// optimization state is owned here; actors only ever receive copies.
type Learner struct {
	mu sync.Mutex

	config     Config
	builder    network.Builder
	obsDim     int
	actionDims int
	support    []float64

	sampler replay.Sampler
	rng     *rand.Rand

	// Critic loss graph: online observation net and critic, trained
	// jointly by the projected categorical Bellman loss.
	gCritic       *G.ExprGraph
	onlineObs     network.NeuralNet
	onlineCritic  network.NeuralNet
	criticAction  *G.Node
	criticTarget  *G.Node
	criticLossVal G.Value
	criticModel   []G.ValueGrad
	criticVM      G.VM

	// Policy loss graph: the online policy at batch numSamples*batch,
	// fed tiled target embeddings. Everything else enters as inputs so
	// the policy is the only trained group.
	gPolicy           *G.ExprGraph
	onlinePolicy      *network.GaussianPolicy
	policyActions     *G.Node
	policyWeights     *G.Node
	policyTargetMean  *G.Node
	policyTargetStd   *G.Node
	policyAlphaMean   *G.Node
	policyAlphaStddev *G.Node
	policyLossVal     G.Value
	klMeanVal         G.Value
	klStddevVal       G.Value
	policyModel       []G.ValueGrad
	policyVM          G.VM

	// Target forward graph: target observation net composed with the
	// target policy, evaluated at the next observations.
	gTarget      *G.ExprGraph
	targetObs    network.NeuralNet
	targetPolicy *network.GaussianPolicy
	targetVM     G.VM

	// Target critic graph, evaluated at the sampled actions.
	gTargetCritic      *G.ExprGraph
	targetCriticEmbed  *G.Node
	targetCriticAction *G.Node
	targetCritic       network.NeuralNet
	targetCriticVM     G.VM

	duals        *mpo.Duals
	criticSolver solver.Solver
	policySolver solver.Solver
	dualsSolver  solver.Solver

	steps             int64
	getVariablesCalls int64
	lastStepTime      time.Time
	timing            bool
}

// NewLearner builds the learner's graphs and optimizers. The builder
// must construct a critic with config.Atoms support atoms.
func NewLearner(config Config, builder network.Builder, obsDim,
	actionDims int, sampler replay.Sampler, seed uint64) (*Learner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}
	if err := builder.Validate(); err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}
	if builder.Atoms != config.Atoms {
		return nil, fmt.Errorf("newlearner: builder atoms \n\twant(%v)"+
			"\n\thave(%v)", config.Atoms, builder.Atoms)
	}
	if obsDim < 1 || actionDims < 1 {
		return nil, fmt.Errorf("newlearner: dimensions must be positive "+
			"\n\thave(obs %v, action %v)", obsDim, actionDims)
	}
	if sampler == nil {
		return nil, fmt.Errorf("newlearner: no replay sampler")
	}

	support, err := distributional.Support(config.VMin, config.VMax,
		config.Atoms)
	if err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}

	l := &Learner{
		config:     config,
		builder:    builder,
		obsDim:     obsDim,
		actionDims: actionDims,
		support:    support,
		sampler:    sampler,
		rng:        rand.New(rand.NewSource(seed)),
	}

	if err := l.buildCriticGraph(); err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}
	if err := l.buildPolicyGraph(); err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}
	if err := l.buildTargetGraphs(); err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}

	l.duals, err = mpo.NewDuals(config.Duals, config.BatchSize,
		config.NumSamples, actionDims)
	if err != nil {
		return nil, fmt.Errorf("newlearner: %v", err)
	}

	l.criticSolver = solver.NewDefaultAdam(config.CriticLearningRate,
		config.ClipGradientNorm)
	l.policySolver = solver.NewDefaultAdam(config.PolicyLearningRate,
		config.ClipGradientNorm)
	l.dualsSolver = solver.NewDefaultAdam(config.DualsLearningRate,
		config.ClipGradientNorm)
	return l, nil
}

func (l *Learner) buildCriticGraph() error {
	batch := l.config.BatchSize
	g := G.NewGraph()

	onlineObs, err := l.builder.Observation(g, batch, l.obsDim)
	if err != nil {
		return fmt.Errorf("could not build observation network: %v", err)
	}
	action := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, l.actionDims), G.WithName("ActionTaken"),
		G.WithInit(G.Zeroes()))
	onlineCritic, err := l.builder.Critic(onlineObs.Prediction()[0], action)
	if err != nil {
		return fmt.Errorf("could not build critic network: %v", err)
	}
	target := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, l.config.Atoms), G.WithName("TargetProbs"),
		G.WithInit(G.Zeroes()))

	// Cross entropy between the projected bootstrap distribution and
	// the online critic's log-softmax over atoms, mean over the batch.
	logits := onlineCritic.Prediction()[0]
	logSoftmax := G.Must(G.BroadcastSub(logits, mpo.LogSumExp(logits), nil,
		[]byte{1}))
	crossEntropy := G.Must(G.Sum(G.Must(G.HadamardProd(target, logSoftmax)),
		1))
	loss := G.Must(G.Neg(G.Must(G.Mean(crossEntropy))))
	G.Read(loss, &l.criticLossVal)

	learnables := append(append(G.Nodes{}, onlineObs.Learnables()...),
		onlineCritic.Learnables()...)
	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("could not compute critic gradient: %v", err)
	}

	l.gCritic = g
	l.onlineObs = onlineObs
	l.onlineCritic = onlineCritic
	l.criticAction = action
	l.criticTarget = target
	l.criticModel = append(append([]G.ValueGrad{}, onlineObs.Model()...),
		onlineCritic.Model()...)
	l.criticVM = G.NewTapeMachine(g, G.BindDualValues(learnables...))
	return nil
}

func (l *Learner) buildPolicyGraph() error {
	rows := l.config.NumSamples * l.config.BatchSize
	g := G.NewGraph()

	onlinePolicy, err := l.builder.Policy(g, rows, l.actionDims)
	if err != nil {
		return fmt.Errorf("could not build policy network: %v", err)
	}

	actions := G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, l.actionDims), G.WithName("SampledActions"),
		G.WithInit(G.Zeroes()))
	weights := G.NewVector(g, tensor.Float64, G.WithShape(rows),
		G.WithName("EStepWeights"), G.WithInit(G.Zeroes()))
	targetMean := G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, l.actionDims), G.WithName("TargetMean"),
		G.WithInit(G.Zeroes()))
	targetStd := G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, l.actionDims), G.WithName("TargetStddev"),
		G.WithInit(G.Ones()))
	alphaMean := G.NewVector(g, tensor.Float64, G.WithShape(l.actionDims),
		G.WithName("AlphaMean"), G.WithInit(G.Ones()))
	alphaStddev := G.NewVector(g, tensor.Float64,
		G.WithShape(l.actionDims), G.WithName("AlphaStddev"),
		G.WithInit(G.Ones()))

	// M-step: fit the policy to the reweighted action samples, with
	// per-dimension KL penalties held at the current alphas.
	logProb := mpo.GaussianLogPdf(onlinePolicy.Mean(),
		onlinePolicy.Stddev(), actions)
	weighted := G.Must(G.HadamardProd(weights, logProb))
	perBatch := G.NewConstant(1.0 / float64(l.config.BatchSize))
	fit := G.Must(G.Neg(G.Must(G.Mul(G.Must(G.Sum(weighted)), perBatch))))

	klMean := mpo.GaussianKLMean(onlinePolicy.Mean(), targetMean, targetStd)
	klStddev := mpo.GaussianKLStddev(onlinePolicy.Stddev(), targetStd)
	penalty := G.Must(G.Add(
		G.Must(G.Sum(G.Must(G.HadamardProd(alphaMean, klMean)))),
		G.Must(G.Sum(G.Must(G.HadamardProd(alphaStddev, klStddev)))),
	))

	loss := G.Must(G.Add(fit, penalty))
	G.Read(loss, &l.policyLossVal)
	G.Read(klMean, &l.klMeanVal)
	G.Read(klStddev, &l.klStddevVal)

	if _, err := G.Grad(loss, onlinePolicy.Learnables()...); err != nil {
		return fmt.Errorf("could not compute policy gradient: %v", err)
	}

	l.gPolicy = g
	l.onlinePolicy = onlinePolicy
	l.policyActions = actions
	l.policyWeights = weights
	l.policyTargetMean = targetMean
	l.policyTargetStd = targetStd
	l.policyAlphaMean = alphaMean
	l.policyAlphaStddev = alphaStddev
	l.policyModel = onlinePolicy.Model()
	l.policyVM = G.NewTapeMachine(g,
		G.BindDualValues(onlinePolicy.Learnables()...))
	return nil
}

func (l *Learner) buildTargetGraphs() error {
	batch := l.config.BatchSize
	rows := l.config.NumSamples * batch

	gTarget := G.NewGraph()
	targetObs, err := l.builder.Observation(gTarget, batch, l.obsDim)
	if err != nil {
		return fmt.Errorf("could not build target observation network: %v",
			err)
	}
	targetPolicy, err := l.builder.PolicyFromInput(
		targetObs.Prediction()[0], l.actionDims)
	if err != nil {
		return fmt.Errorf("could not build target policy network: %v", err)
	}

	gTargetCritic := G.NewGraph()
	embed := G.NewMatrix(gTargetCritic, tensor.Float64,
		G.WithShape(rows, l.builder.EmbedDim), G.WithName("TargetEmbed"),
		G.WithInit(G.Zeroes()))
	action := G.NewMatrix(gTargetCritic, tensor.Float64,
		G.WithShape(rows, l.actionDims), G.WithName("TargetAction"),
		G.WithInit(G.Zeroes()))
	targetCritic, err := l.builder.Critic(embed, action)
	if err != nil {
		return fmt.Errorf("could not build target critic network: %v", err)
	}

	l.gTarget = gTarget
	l.targetObs = targetObs
	l.targetPolicy = targetPolicy
	l.targetVM = G.NewTapeMachine(gTarget)
	l.gTargetCritic = gTargetCritic
	l.targetCriticEmbed = embed
	l.targetCriticAction = action
	l.targetCritic = targetCritic
	l.targetCriticVM = G.NewTapeMachine(gTargetCritic)
	return nil
}

// Steps returns the number of completed gradient steps.
func (l *Learner) Steps() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// Seed reseeds the action-sampling stream.
func (l *Learner) Seed(seed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng = rand.New(rand.NewSource(seed))
}

// Step runs one atomic distributional-MPO gradient step and returns
// scalar diagnostics. Target synchronization happens before the step
// counter is incremented, so step 0 always starts from synchronized
// targets.
func (l *Learner) Step() (map[string]float64, error) {
	batch, err := l.sampler.Sample(l.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("step: could not sample batch: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.steps%l.config.TargetPolicyUpdatePeriod == 0 {
		if err := l.syncPolicyTargets(); err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
	}
	if l.steps%l.config.TargetCriticUpdatePeriod == 0 {
		if err := l.syncCriticTargets(); err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
	}

	obs, actions, nextObs, rewards, discounts, err := l.flatten(batch)
	if err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}

	// Target forward pass at the next observations.
	if err := l.targetObs.SetInput(nextObs); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	if err := l.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("step: could not run target networks: %v",
			err)
	}
	embed := copyFloats(l.targetObs.Output()[0])
	targetMean := copyFloats(l.targetPolicy.Output()[0])
	targetStd := copyFloats(l.targetPolicy.Output()[1])
	l.targetVM.Reset()

	// N action samples per batch element from the target policy,
	// stored sample-major: row n*B+b holds sample n for element b.
	B := l.config.BatchSize
	N := l.config.NumSamples
	dA := l.actionDims
	sampled := make([]float64, N*B*dA)
	for n := 0; n < N; n++ {
		for b := 0; b < B; b++ {
			for d := 0; d < dA; d++ {
				mu := targetMean[b*dA+d]
				sigma := targetStd[b*dA+d]
				sampled[(n*B+b)*dA+d] = mu + sigma*l.rng.NormFloat64()
			}
		}
	}

	// Target critic at every sampled action.
	tiledEmbed := tileRows(embed, B, l.builder.EmbedDim, N)
	err = G.Let(l.targetCriticEmbed, tensor.New(
		tensor.WithBacking(tiledEmbed),
		tensor.WithShape(N*B, l.builder.EmbedDim)))
	if err != nil {
		return nil, fmt.Errorf("step: could not set target embedding: %v",
			err)
	}
	err = G.Let(l.targetCriticAction, tensor.New(
		tensor.WithBacking(append([]float64{}, sampled...)),
		tensor.WithShape(N*B, dA)))
	if err != nil {
		return nil, fmt.Errorf("step: could not set target actions: %v", err)
	}
	if err := l.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("step: could not run target critic: %v", err)
	}
	logits := copyFloats(l.targetCritic.Output()[0])
	l.targetCriticVM.Reset()

	// Per-row log-probabilities over atoms and scalar Q means.
	atoms := l.config.Atoms
	logProbs := make([][]float64, N*B)
	q := make([][]float64, B)
	for b := range q {
		q[b] = make([]float64, N)
	}
	for r := 0; r < N*B; r++ {
		row := logits[r*atoms : (r+1)*atoms]
		logProbs[r] = distributional.LogSoftmax(row)
		q[r%B][r/B] = distributional.Mean(l.support,
			distributional.Probs(row))
	}

	// Bootstrap target: mix the N per-sample distributions, then apply
	// the categorical Bellman projection with the transition's n-step
	// reward and discount.
	targetProbs := make([]float64, B*atoms)
	components := make([][]float64, N)
	for b := 0; b < B; b++ {
		for n := 0; n < N; n++ {
			components[n] = logProbs[n*B+b]
		}
		mixLog, err := distributional.Mixture(components)
		if err != nil {
			return nil, fmt.Errorf("step: %v", err)
		}
		mix := expAll(mixLog)
		projected := distributional.Project(l.support, rewards[b],
			discounts[b], mix)
		copy(targetProbs[b*atoms:(b+1)*atoms], projected)
	}

	// Critic update: trains the observation embedding and the critic.
	if err := l.onlineObs.SetInput(obs); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	err = G.Let(l.criticAction, tensor.New(tensor.WithBacking(actions),
		tensor.WithShape(B, dA)))
	if err != nil {
		return nil, fmt.Errorf("step: could not set actions: %v", err)
	}
	err = G.Let(l.criticTarget, tensor.New(tensor.WithBacking(targetProbs),
		tensor.WithShape(B, atoms)))
	if err != nil {
		return nil, fmt.Errorf("step: could not set critic target: %v", err)
	}
	if err := l.criticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("step: could not run critic loss: %v", err)
	}
	criticLoss := l.criticLossVal.Data().(float64)
	if err := l.criticSolver.Step(l.criticModel); err != nil {
		return nil, fmt.Errorf("step: could not update critic: %v", err)
	}
	l.criticVM.Reset()

	// Policy update: E-step weights under the current temperature,
	// then the M-step fit with KL penalties at the current alphas.
	weights := mpo.Weights(q, l.duals.Temperature())
	flatWeights := make([]float64, N*B)
	for b := 0; b < B; b++ {
		for n := 0; n < N; n++ {
			flatWeights[n*B+b] = weights[b][n]
		}
	}

	if err := l.onlinePolicy.SetInput(tileRows(embed, B,
		l.builder.EmbedDim, N)); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	inputs := map[*G.Node]tensor.Tensor{
		l.policyActions: tensor.New(tensor.WithBacking(sampled),
			tensor.WithShape(N*B, dA)),
		l.policyWeights: tensor.New(tensor.WithBacking(flatWeights),
			tensor.WithShape(N * B)),
		l.policyTargetMean: tensor.New(
			tensor.WithBacking(tileRows(targetMean, B, dA, N)),
			tensor.WithShape(N*B, dA)),
		l.policyTargetStd: tensor.New(
			tensor.WithBacking(tileRows(targetStd, B, dA, N)),
			tensor.WithShape(N*B, dA)),
		l.policyAlphaMean: tensor.New(
			tensor.WithBacking(l.duals.AlphaMean()),
			tensor.WithShape(dA)),
		l.policyAlphaStddev: tensor.New(
			tensor.WithBacking(l.duals.AlphaStddev()),
			tensor.WithShape(dA)),
	}
	for node, value := range inputs {
		if err := G.Let(node, value); err != nil {
			return nil, fmt.Errorf("step: could not set %v: %v", node.Name(),
				err)
		}
	}
	if err := l.policyVM.RunAll(); err != nil {
		return nil, fmt.Errorf("step: could not run policy loss: %v", err)
	}
	policyLoss := l.policyLossVal.Data().(float64)
	klMean := copyFloats(l.klMeanVal)
	klStddev := copyFloats(l.klStddevVal)
	if err := l.policySolver.Step(l.policyModel); err != nil {
		return nil, fmt.Errorf("step: could not update policy: %v", err)
	}
	l.policyVM.Reset()

	// Duals update from the same batch statistics.
	if err := l.duals.Step(l.dualsSolver, q, klMean, klStddev); err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}

	l.steps++
	return map[string]float64{
		"critic_loss":  criticLoss,
		"policy_loss":  policyLoss,
		"duals_loss":   l.duals.Loss(),
		"temperature":  l.duals.Temperature(),
		"alpha_mean":   meanOf(l.duals.AlphaMean()),
		"alpha_stddev": meanOf(l.duals.AlphaStddev()),
		"kl_mean":      meanOf(klMean),
		"kl_stddev":    meanOf(klStddev),
		"steps":        float64(l.steps),
	}, nil
}

// Run performs a fixed-size burst of gradient steps, writing
// diagnostics after each. Wall-clock throughput is measured only from
// the second step onward so actor warm-up and graph compilation do not
// pollute it.
func (l *Learner) Run(burst int, log tracker.Logger) error {
	for i := 0; i < burst; i++ {
		diag, err := l.Step()
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		now := time.Now()
		if l.timing {
			if elapsed := now.Sub(l.lastStepTime).Seconds(); elapsed > 0 {
				diag["steps_per_second"] = 1.0 / elapsed
			}
		}
		l.timing = true
		l.lastStepTime = now

		if log != nil {
			if err := log.Write(diag); err != nil {
				return fmt.Errorf("run: could not write diagnostics: %v",
					err)
			}
		}
	}
	return nil
}

// GetVariables returns independent copies of the named variable
// collections. Actors pull "policy" (target observation plus target
// policy); "critic" serves the target critic.
func (l *Learner) GetVariables(names []string) (
	map[string][]varsync.Variable, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getVariablesCalls++

	out := make(map[string][]varsync.Variable, len(names))
	for _, name := range names {
		switch name {
		case PolicyCollection:
			out[name] = append(
				varsync.FromLearnables(l.targetObs.Learnables()),
				varsync.FromLearnables(l.targetPolicy.Learnables())...)
		case CriticCollection:
			out[name] = varsync.FromLearnables(l.targetCritic.Learnables())
		default:
			return nil, fmt.Errorf("getvariables: unknown collection %v",
				name)
		}
	}
	return out, nil
}

// syncPolicyTargets hard-copies the online policy and observation
// parameters onto their targets.
func (l *Learner) syncPolicyTargets() error {
	if err := l.targetPolicy.Set(l.onlinePolicy); err != nil {
		return fmt.Errorf("could not sync target policy: %v", err)
	}
	if err := l.targetObs.Set(l.onlineObs); err != nil {
		return fmt.Errorf("could not sync target observation: %v", err)
	}
	return nil
}

// syncCriticTargets hard-copies the online critic and observation
// parameters onto their targets.
func (l *Learner) syncCriticTargets() error {
	if err := l.targetCritic.Set(l.onlineCritic); err != nil {
		return fmt.Errorf("could not sync target critic: %v", err)
	}
	if err := l.targetObs.Set(l.onlineObs); err != nil {
		return fmt.Errorf("could not sync target observation: %v", err)
	}
	return nil
}

// flatten unpacks a batch into row-major input slices, validating every
// transition against the configured signature. A mismatch is a fatal
// configuration error.
func (l *Learner) flatten(batch []timestep.Transition) (obs, actions,
	nextObs, rewards, discounts []float64, err error) {
	B := l.config.BatchSize
	if len(batch) != B {
		return nil, nil, nil, nil, nil, fmt.Errorf("batch size "+
			"\n\twant(%v)\n\thave(%v)", B, len(batch))
	}

	obs = make([]float64, B*l.obsDim)
	nextObs = make([]float64, B*l.obsDim)
	actions = make([]float64, B*l.actionDims)
	rewards = make([]float64, B)
	discounts = make([]float64, B)

	for i, t := range batch {
		if t.Observation.Len() != l.obsDim ||
			t.NextObservation.Len() != l.obsDim {
			return nil, nil, nil, nil, nil, fmt.Errorf("transition %v "+
				"observation size \n\twant(%v)\n\thave(%v, %v)", i, l.obsDim,
				t.Observation.Len(), t.NextObservation.Len())
		}
		if t.Action.Len() != l.actionDims {
			return nil, nil, nil, nil, nil, fmt.Errorf("transition %v "+
				"action size \n\twant(%v)\n\thave(%v)", i, l.actionDims,
				t.Action.Len())
		}
		for d := 0; d < l.obsDim; d++ {
			obs[i*l.obsDim+d] = t.Observation.AtVec(d)
			nextObs[i*l.obsDim+d] = t.NextObservation.AtVec(d)
		}
		for d := 0; d < l.actionDims; d++ {
			actions[i*l.actionDims+d] = t.Action.AtVec(d)
		}
		rewards[i] = t.Reward
		discounts[i] = t.Discount
	}
	return obs, actions, nextObs, rewards, discounts, nil
}

// tileRows repeats a (rows, cols) row-major block n times along the row
// axis.
func tileRows(data []float64, rows, cols, n int) []float64 {
	out := make([]float64, n*rows*cols)
	for i := 0; i < n; i++ {
		copy(out[i*rows*cols:(i+1)*rows*cols], data)
	}
	return out
}

func copyFloats(value G.Value) []float64 {
	return append([]float64{}, value.Data().([]float64)...)
}

func expAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Exp(v)
	}
	return out
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
