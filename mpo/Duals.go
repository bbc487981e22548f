package mpo

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/gaitlab/dmpo/solver"
)

// Default constraint epsilons and log-space initial values for the dual
// variables.
const (
	EpsilonTemperature float64 = 1e-1
	EpsilonMean        float64 = 1e-3
	EpsilonStddev      float64 = 1e-6

	InitLogTemperature float64 = 1.0
	InitLogAlphaMean   float64 = 1.0
	InitLogAlphaStddev float64 = 10.0
)

// DualsConfig holds the constraint epsilons and initial log values of
// the three dual variables.
type DualsConfig struct {
	EpsilonTemperature float64
	EpsilonMean        float64
	EpsilonStddev      float64

	InitLogTemperature float64
	InitLogAlphaMean   float64
	InitLogAlphaStddev float64
}

// DefaultDualsConfig returns the default dual-variable configuration.
func DefaultDualsConfig() DualsConfig {
	return DualsConfig{
		EpsilonTemperature: EpsilonTemperature,
		EpsilonMean:        EpsilonMean,
		EpsilonStddev:      EpsilonStddev,
		InitLogTemperature: InitLogTemperature,
		InitLogAlphaMean:   InitLogAlphaMean,
		InitLogAlphaStddev: InitLogAlphaStddev,
	}
}

// Duals owns the three MPO dual variables (temperature, alpha-mean,
// alpha-stddev), each kept in log-space so the exponentiated value
// stays strictly positive, together with the loss graph that trains
// them:
//
//	L = t·(ε_t + mean_B(logsumexp_N(q/t)) - log N)
//	  + Σ_d α_mean[d]·(ε_mean - klMean[d])
//	  + Σ_d α_std[d]·(ε_std - klStddev[d])
//
// The Q-values and KL estimates enter as inputs, so gradients reach
// only the duals.
type Duals struct {
	config     DualsConfig
	batch      int
	samples    int
	actionDims int

	g  *G.ExprGraph
	vm G.VM

	logTemperature *G.Node
	logAlphaMean   *G.Node
	logAlphaStddev *G.Node
	model          []G.ValueGrad

	qValues  *G.Node // (batch, samples)
	klMean   *G.Node // (actionDims)
	klStddev *G.Node // (actionDims)

	lossVal G.Value
}

// NewDuals builds the dual variables and their loss graph for a fixed
// batch size, sample count, and action dimensionality.
func NewDuals(config DualsConfig, batch, samples, actionDims int) (*Duals,
	error) {
	if batch < 1 || samples < 1 || actionDims < 1 {
		return nil, fmt.Errorf("newduals: sizes must be positive "+
			"\n\thave(batch %v, samples %v, actionDims %v)", batch, samples,
			actionDims)
	}

	g := G.NewGraph()
	d := &Duals{
		config:     config,
		batch:      batch,
		samples:    samples,
		actionDims: actionDims,
		g:          g,
	}

	d.logTemperature = G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("LogTemperature"),
		G.WithInit(G.ValuesOf(config.InitLogTemperature)))
	d.logAlphaMean = G.NewVector(g, tensor.Float64, G.WithShape(actionDims),
		G.WithName("LogAlphaMean"),
		G.WithInit(G.ValuesOf(config.InitLogAlphaMean)))
	d.logAlphaStddev = G.NewVector(g, tensor.Float64,
		G.WithShape(actionDims), G.WithName("LogAlphaStddev"),
		G.WithInit(G.ValuesOf(config.InitLogAlphaStddev)))

	d.qValues = G.NewMatrix(g, tensor.Float64, G.WithShape(batch, samples),
		G.WithName("QValues"), G.WithInit(G.Zeroes()))
	d.klMean = G.NewVector(g, tensor.Float64, G.WithShape(actionDims),
		G.WithName("KLMean"), G.WithInit(G.Zeroes()))
	d.klStddev = G.NewVector(g, tensor.Float64, G.WithShape(actionDims),
		G.WithName("KLStddev"), G.WithInit(G.Zeroes()))

	// Temperature loss. The inverse temperature scales the Q-values so
	// the gradient flows into the log-temperature through both factors.
	temperature := G.Must(G.Sum(G.Must(G.Exp(d.logTemperature))))
	invTemperature := G.Must(G.Sum(G.Must(G.Exp(
		G.Must(G.Neg(d.logTemperature))))))
	scaledQ := G.Must(G.Mul(d.qValues, invTemperature))
	lse := LogSumExp(scaledQ)
	meanLse := G.Must(G.Mean(lse))

	epsTemp := G.NewConstant(config.EpsilonTemperature)
	logN := G.NewConstant(math.Log(float64(samples)))
	bracket := G.Must(G.Sub(G.Must(G.Add(epsTemp, meanLse)), logN))
	lossTemperature := G.Must(G.Mul(temperature, bracket))

	// Alpha losses. The KL estimates are inputs, so descent on the loss
	// raises an alpha while its constraint is violated and lowers it
	// once satisfied.
	alphaMean := G.Must(G.Exp(d.logAlphaMean))
	epsMean := G.NewConstant(config.EpsilonMean)
	slackMean := G.Must(G.Sub(epsMean, d.klMean))
	lossAlphaMean := G.Must(G.Sum(G.Must(G.HadamardProd(alphaMean,
		slackMean))))

	alphaStddev := G.Must(G.Exp(d.logAlphaStddev))
	epsStddev := G.NewConstant(config.EpsilonStddev)
	slackStddev := G.Must(G.Sub(epsStddev, d.klStddev))
	lossAlphaStddev := G.Must(G.Sum(G.Must(G.HadamardProd(alphaStddev,
		slackStddev))))

	loss := G.Must(G.Add(lossTemperature,
		G.Must(G.Add(lossAlphaMean, lossAlphaStddev))))
	G.Read(loss, &d.lossVal)

	learnables := G.Nodes{d.logTemperature, d.logAlphaMean, d.logAlphaStddev}
	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("newduals: could not compute gradient: %v",
			err)
	}
	d.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	d.model = make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		d.model[i] = node
	}
	return d, nil
}

// Step runs one gradient update of the duals given the sampled
// Q-values (batch rows, sample columns) and the per-dimension KL
// estimates of the current policy update.
func (d *Duals) Step(sol solver.Solver, q [][]float64, klMean,
	klStddev []float64) error {
	if len(q) != d.batch {
		return fmt.Errorf("duals step: batch \n\twant(%v)\n\thave(%v)",
			d.batch, len(q))
	}
	backing := make([]float64, 0, d.batch*d.samples)
	for _, row := range q {
		if len(row) != d.samples {
			return fmt.Errorf("duals step: samples \n\twant(%v)"+
				"\n\thave(%v)", d.samples, len(row))
		}
		backing = append(backing, row...)
	}
	if len(klMean) != d.actionDims || len(klStddev) != d.actionDims {
		return fmt.Errorf("duals step: kl dimensions \n\twant(%v)"+
			"\n\thave(%v, %v)", d.actionDims, len(klMean), len(klStddev))
	}

	err := G.Let(d.qValues, tensor.New(tensor.WithBacking(backing),
		tensor.WithShape(d.batch, d.samples)))
	if err != nil {
		return fmt.Errorf("duals step: could not set q values: %v", err)
	}
	err = G.Let(d.klMean, tensor.New(
		tensor.WithBacking(append([]float64{}, klMean...)),
		tensor.WithShape(d.actionDims)))
	if err != nil {
		return fmt.Errorf("duals step: could not set kl mean: %v", err)
	}
	err = G.Let(d.klStddev, tensor.New(
		tensor.WithBacking(append([]float64{}, klStddev...)),
		tensor.WithShape(d.actionDims)))
	if err != nil {
		return fmt.Errorf("duals step: could not set kl stddev: %v", err)
	}

	if err := d.vm.RunAll(); err != nil {
		return fmt.Errorf("duals step: could not run loss graph: %v", err)
	}
	if err := sol.Step(d.model); err != nil {
		return fmt.Errorf("duals step: could not apply update: %v", err)
	}
	d.vm.Reset()
	return nil
}

// Loss returns the dual loss of the most recent Step.
func (d *Duals) Loss() float64 {
	if d.lossVal == nil {
		return 0
	}
	return d.lossVal.Data().(float64)
}

// Temperature returns the current (strictly positive) temperature.
func (d *Duals) Temperature() float64 {
	return math.Exp(d.logValue(d.logTemperature)[0])
}

// AlphaMean returns the current per-dimension mean-constraint duals.
func (d *Duals) AlphaMean() []float64 {
	return expAll(d.logValue(d.logAlphaMean))
}

// AlphaStddev returns the current per-dimension stddev-constraint
// duals.
func (d *Duals) AlphaStddev() []float64 {
	return expAll(d.logValue(d.logAlphaStddev))
}

// State returns the serializable log-space dual values.
func (d *Duals) State() *State {
	return &State{
		LogTemperature: append([]float64{}, d.logValue(d.logTemperature)...),
		LogAlphaMean:   append([]float64{}, d.logValue(d.logAlphaMean)...),
		LogAlphaStddev: append([]float64{}, d.logValue(d.logAlphaStddev)...),
	}
}

// SetState restores previously captured dual values.
func (d *Duals) SetState(state *State) error {
	if state == nil {
		return fmt.Errorf("setstate: no state")
	}
	if len(state.LogTemperature) != 1 ||
		len(state.LogAlphaMean) != d.actionDims ||
		len(state.LogAlphaStddev) != d.actionDims {
		return fmt.Errorf("setstate: mismatched dual sizes")
	}
	for node, values := range map[*G.Node][]float64{
		d.logTemperature: state.LogTemperature,
		d.logAlphaMean:   state.LogAlphaMean,
		d.logAlphaStddev: state.LogAlphaStddev,
	} {
		t := tensor.New(tensor.WithBacking(append([]float64{}, values...)),
			tensor.WithShape(len(values)))
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("setstate: could not set %v: %v", node.Name(),
				err)
		}
	}
	return nil
}

// State is the serializable log-space representation of the duals.
type State struct {
	LogTemperature []float64
	LogAlphaMean   []float64
	LogAlphaStddev []float64
}

func (d *Duals) logValue(node *G.Node) []float64 {
	return node.Value().Data().([]float64)
}

func expAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Exp(v)
	}
	return out
}
