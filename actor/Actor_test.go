package actor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/gaitlab/dmpo/checkpointer"
	"github.com/gaitlab/dmpo/environment"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/timestep"
	"github.com/gaitlab/dmpo/varsync"
)

const (
	testObsDim     = 3
	testActionDims = 2
	testEpisodeLen = 6
)

// fakeEnv runs fixed-length episodes. Every step of episode e yields
// reward rewardScale*e, so returns differ across episodes.
type fakeEnv struct {
	rewardScale float64
	failStep    int // step number that errors; 0 disables

	resets int
	steps  int
}

func (e *fakeEnv) observation() mat.Vector {
	obs := make([]float64, testObsDim)
	for d := range obs {
		obs[d] = float64(e.steps+d) * 0.1
	}
	return mat.NewVecDense(testObsDim, obs)
}

func (e *fakeEnv) Reset() (timestep.TimeStep, error) {
	e.resets++
	e.steps = 0
	return timestep.New(timestep.First, 0, 1, e.observation(), 0), nil
}

func (e *fakeEnv) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	if action.Len() != testActionDims {
		return timestep.TimeStep{}, false, fmt.Errorf("action size "+
			"\n\twant(%v)\n\thave(%v)", testActionDims, action.Len())
	}
	e.steps++
	if e.failStep > 0 && e.steps == e.failStep {
		return timestep.TimeStep{}, false, fmt.Errorf("induced failure")
	}

	stepType := timestep.Mid
	last := e.steps >= testEpisodeLen
	if last {
		stepType = timestep.Last
	}
	reward := e.rewardScale * float64(e.resets)
	return timestep.New(stepType, reward, 1, e.observation(), e.steps),
		last, nil
}

func spec(dims int) environment.Spec {
	return environment.Spec{Shape: mat.NewVecDense(dims, nil)}
}

func (e *fakeEnv) ObservationSpec() environment.Spec {
	return spec(testObsDim)
}
func (e *fakeEnv) ActionSpec() environment.Spec {
	return spec(testActionDims)
}
func (e *fakeEnv) DiscountSpec() environment.Spec { return spec(1) }

type countingInserter struct {
	transitions []timestep.Transition
}

func (c *countingInserter) Insert(t timestep.Transition) error {
	c.transitions = append(c.transitions, t)
	return nil
}

// countingSource serves one fixed policy collection and counts fetches.
type countingSource struct {
	calls     int
	variables []varsync.Variable
}

func (s *countingSource) GetVariables(names []string) (
	map[string][]varsync.Variable, error) {
	s.calls++
	return map[string][]varsync.Variable{policyCollection: s.variables}, nil
}

func testBuilder() network.Builder {
	b := network.NewBuilder(4, 5)
	b.ObservationHidden = []int{6}
	b.PolicyHidden = []int{6}
	b.CriticHidden = []int{8}
	return b
}

// donorVariables builds a policy of matching shape and exports its
// parameters, so a fake source serves structurally valid collections.
func donorVariables(t *testing.T) []varsync.Variable {
	t.Helper()
	donor, err := newPolicy(testBuilder(), testObsDim, testActionDims, 7)
	if err != nil {
		t.Fatal(err)
	}
	return varsync.FromLearnables(donor.learnables())
}

func TestActorFeedsReplayOneTransitionPerStep(t *testing.T) {
	env := &fakeEnv{rewardScale: 1}
	inserter := &countingInserter{}
	source := &countingSource{variables: donorVariables(t)}

	a, err := NewActor(env, testBuilder(), inserter, source, 2, 0.95, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(1, nil); err != nil {
		t.Fatal(err)
	}

	// Each step emits one n-step transition once the window fills, and
	// the episode end flushes the remainder.
	if len(inserter.transitions) != testEpisodeLen {
		t.Errorf("inserted transitions \n\twant(%v)\n\thave(%v)",
			testEpisodeLen, len(inserter.transitions))
	}
	if a.EnvSteps() != testEpisodeLen {
		t.Errorf("environment steps \n\twant(%v)\n\thave(%v)",
			testEpisodeLen, a.EnvSteps())
	}
}

func TestActorRefreshesOnThePeriod(t *testing.T) {
	env := &fakeEnv{rewardScale: 1}
	source := &countingSource{variables: donorVariables(t)}

	a, err := NewActor(env, testBuilder(), &countingInserter{}, source, 1,
		0.95, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(2, nil); err != nil {
		t.Fatal(err)
	}

	// One startup fetch, then refreshes at environment steps 4 and 8
	// across the 12 steps of two episodes.
	if source.calls != 3 {
		t.Errorf("variable fetches \n\twant(3)\n\thave(%v)", source.calls)
	}
}

func TestEpisodeFailureIsContained(t *testing.T) {
	env := &fakeEnv{rewardScale: 1, failStep: 3}
	source := &countingSource{variables: donorVariables(t)}

	a, err := NewActor(env, testBuilder(), &countingInserter{}, source, 1,
		0.95, 100, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Sync(); err != nil {
		t.Fatal(err)
	}

	result := a.RunEpisode()
	if result.Return != 0 || result.Steps != 0 {
		t.Errorf("failed episode result \n\twant(zeroed)\n\thave(%+v)",
			result)
	}

	// The next episode runs normally.
	env.failStep = 0
	result = a.RunEpisode()
	if result.Steps != testEpisodeLen {
		t.Errorf("recovery episode length \n\twant(%v)\n\thave(%v)",
			testEpisodeLen, result.Steps)
	}
}

func TestEvaluatorReportsStatsOnlyWhenWindowFull(t *testing.T) {
	env := &fakeEnv{rewardScale: 1}
	e, err := NewEvaluator(env, testBuilder(), "", "", 3, 4)
	if err != nil {
		t.Fatal(err)
	}

	var results []Result
	for i := 0; i < 3; i++ {
		result := e.RunEpisode()
		if result.Steps != testEpisodeLen {
			t.Fatalf("episode %v length \n\twant(%v)\n\thave(%v)", i,
				testEpisodeLen, result.Steps)
		}
		results = append(results, result)

		report := e.report(result)
		_, ok := report["eval_return_mean"]
		if i < 2 && ok {
			t.Errorf("episode %v reported rolling stats before the window "+
				"filled", i)
		}
		if i == 2 && !ok {
			t.Error("full window must report rolling stats")
		}
	}

	want := (results[0].Return + results[1].Return + results[2].Return) / 3
	have := e.report(results[2])["eval_return_mean"]
	if math.Abs(want-have) > 1e-12 {
		t.Errorf("rolling return mean \n\twant(%v)\n\thave(%v)", want, have)
	}
}

func TestEvaluatorFollowsSnapshots(t *testing.T) {
	dir := t.TempDir()
	env := &fakeEnv{rewardScale: 1}
	e, err := NewEvaluator(env, testBuilder(), dir, "", 3, 5)
	if err != nil {
		t.Fatal(err)
	}

	// Nothing published yet.
	if loaded, err := e.PollSnapshot(); err != nil || loaded {
		t.Fatalf("poll on empty directory \n\twant(false, nil)"+
			"\n\thave(%v, %v)", loaded, err)
	}

	variables := donorVariables(t)
	for i := range variables {
		for j := range variables[i].Values {
			variables[i].Values[j] = 0.5
		}
	}
	s, err := checkpointer.NewSnapshotter(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Save(variables); err != nil {
		t.Fatal(err)
	}

	loaded, err := e.PollSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !loaded {
		t.Fatal("published snapshot was not loaded")
	}
	for _, node := range e.policy.learnables() {
		for _, value := range node.Value().Data().([]float64) {
			if value != 0.5 {
				t.Fatalf("parameter after snapshot load "+
					"\n\twant(0.5)\n\thave(%v)", value)
			}
		}
	}

	// The same version is not reloaded.
	if loaded, _ := e.PollSnapshot(); loaded {
		t.Error("unchanged snapshot version was reloaded")
	}

	if _, _, err := s.Save(variables); err != nil {
		t.Fatal(err)
	}
	if loaded, _ := e.PollSnapshot(); !loaded {
		t.Error("newer snapshot version was not loaded")
	}
}

func TestRenderTraceWritesImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.png")

	if err := renderTrace([]float64{0, 1, -1, 2, 0.5}, path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("rendered image is empty")
	}

	if err := renderTrace(nil, path); err == nil {
		t.Error("rendering an empty trace should error")
	}
}
