package mpo

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/gaitlab/dmpo/solver"
)

func TestWeightsRowsAreDistributions(t *testing.T) {
	q := [][]float64{
		{1.0, 2.0, 3.0},
		{-5.0, 0.0, 5.0},
	}
	weights := Weights(q, 1.0)

	for b, row := range weights {
		var sum float64
		for _, w := range row {
			if w <= 0 {
				t.Errorf("row %v has non-positive weight %v", b, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-12 {
			t.Errorf("row %v sums to %v, want 1", b, sum)
		}
		// Higher Q must receive higher weight.
		for n := 1; n < len(row); n++ {
			if row[n] <= row[n-1] {
				t.Errorf("row %v weights not ordered by Q: %v", b, row)
			}
		}
	}
}

func TestWeightsHighTemperatureApproachesUniform(t *testing.T) {
	q := [][]float64{{1.0, 2.0, 3.0, 4.0}}
	weights := Weights(q, 1e9)
	for _, w := range weights[0] {
		if math.Abs(w-0.25) > 1e-6 {
			t.Errorf("high-temperature weight %v, want ~0.25", w)
		}
	}
}

func TestDualsStayPositive(t *testing.T) {
	const (
		batch      = 4
		samples    = 3
		actionDims = 2
	)
	duals, err := NewDuals(DefaultDualsConfig(), batch, samples, actionDims)
	if err != nil {
		t.Fatal(err)
	}
	sol := solver.NewDefaultAdam(1e-2, 0)

	q := make([][]float64, batch)
	for b := range q {
		q[b] = []float64{-1.0, 0.5, float64(b)}
	}
	klMean := []float64{0.2, 0.4}
	klStddev := []float64{0.05, 0.01}

	for i := 0; i < 50; i++ {
		if err := duals.Step(sol, q, klMean, klStddev); err != nil {
			t.Fatal(err)
		}
	}

	if temp := duals.Temperature(); temp <= 0 || math.IsNaN(temp) {
		t.Errorf("temperature must stay positive, got %v", temp)
	}
	for d, alpha := range duals.AlphaMean() {
		if alpha <= 0 || math.IsNaN(alpha) {
			t.Errorf("alpha mean %v must stay positive, got %v", d, alpha)
		}
	}
	for d, alpha := range duals.AlphaStddev() {
		if alpha <= 0 || math.IsNaN(alpha) {
			t.Errorf("alpha stddev %v must stay positive, got %v", d, alpha)
		}
	}
}

func TestDualsAlphaRespondsToConstraint(t *testing.T) {
	const actionDims = 1
	duals, err := NewDuals(DefaultDualsConfig(), 2, 2, actionDims)
	if err != nil {
		t.Fatal(err)
	}
	sol := solver.NewDefaultAdam(1e-2, 0)

	q := [][]float64{{0, 0}, {0, 0}}
	before := duals.AlphaMean()[0]

	// A KL far above epsilon violates the constraint, so descent on the
	// dual loss must raise alpha.
	for i := 0; i < 20; i++ {
		if err := duals.Step(sol, q, []float64{1.0}, []float64{0}); err != nil {
			t.Fatal(err)
		}
	}
	raised := duals.AlphaMean()[0]
	if raised <= before {
		t.Errorf("violated constraint should raise alpha \n\twant(> %v)"+
			"\n\thave(%v)", before, raised)
	}

	// A KL of zero satisfies the constraint, so alpha must fall back.
	for i := 0; i < 200; i++ {
		if err := duals.Step(sol, q, []float64{0}, []float64{0}); err != nil {
			t.Fatal(err)
		}
	}
	lowered := duals.AlphaMean()[0]
	if lowered >= raised {
		t.Errorf("satisfied constraint should lower alpha \n\twant(< %v)"+
			"\n\thave(%v)", raised, lowered)
	}
}

func TestDualsStateRoundTrip(t *testing.T) {
	duals, err := NewDuals(DefaultDualsConfig(), 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	sol := solver.NewDefaultAdam(1e-2, 0)
	q := [][]float64{{1, 2}, {3, 4}}
	for i := 0; i < 5; i++ {
		err := duals.Step(sol, q, []float64{0.1, 0.2, 0.3},
			[]float64{0.01, 0.02, 0.03})
		if err != nil {
			t.Fatal(err)
		}
	}

	restored, err := NewDuals(DefaultDualsConfig(), 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.SetState(duals.State()); err != nil {
		t.Fatal(err)
	}

	if restored.Temperature() != duals.Temperature() {
		t.Errorf("temperature \n\twant(%v)\n\thave(%v)", duals.Temperature(),
			restored.Temperature())
	}
	for d := range duals.AlphaMean() {
		if restored.AlphaMean()[d] != duals.AlphaMean()[d] {
			t.Errorf("alpha mean %v differs after restore", d)
		}
		if restored.AlphaStddev()[d] != duals.AlphaStddev()[d] {
			t.Errorf("alpha stddev %v differs after restore", d)
		}
	}
}

func TestGaussianLogPdfStandardNormal(t *testing.T) {
	g := G.NewGraph()
	dims := 3
	mean := G.NewMatrix(g, tensor.Float64, G.WithShape(1, dims),
		G.WithName("mean"), G.WithInit(G.Zeroes()))
	std := G.NewMatrix(g, tensor.Float64, G.WithShape(1, dims),
		G.WithName("std"), G.WithInit(G.Ones()))
	actions := G.NewMatrix(g, tensor.Float64, G.WithShape(1, dims),
		G.WithName("actions"), G.WithInit(G.Zeroes()))

	logProb := GaussianLogPdf(mean, std, actions)
	var out G.Value
	G.Read(logProb, &out)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	want := -float64(dims) / 2.0 * math.Log(2*math.Pi)
	have := out.Data().([]float64)[0]
	if math.Abs(want-have) > 1e-12 {
		t.Errorf("standard normal log density at 0 \n\twant(%v)"+
			"\n\thave(%v)", want, have)
	}
}

func TestGaussianKLZeroWhenEqual(t *testing.T) {
	g := G.NewGraph()
	mean := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("onlineMean"), G.WithInit(G.Ones()))
	targetMean := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("targetMean"), G.WithInit(G.Ones()))
	std := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("onlineStd"), G.WithInit(G.Ones()))
	targetStd := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("targetStd"), G.WithInit(G.Ones()))

	klMean := GaussianKLMean(mean, targetMean, targetStd)
	klStddev := GaussianKLStddev(std, targetStd)
	var meanOut, stdOut G.Value
	G.Read(klMean, &meanOut)
	G.Read(klStddev, &stdOut)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	for d, v := range meanOut.Data().([]float64) {
		if math.Abs(v) > 1e-12 {
			t.Errorf("identical Gaussians should have zero mean-KL at %v, "+
				"got %v", d, v)
		}
	}
	for d, v := range stdOut.Data().([]float64) {
		if math.Abs(v) > 1e-12 {
			t.Errorf("identical Gaussians should have zero stddev-KL at %v, "+
				"got %v", d, v)
		}
	}
}
