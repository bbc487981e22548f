package dmpo

import (
	"math"
	"testing"

	"github.com/gaitlab/dmpo/checkpointer"
	"github.com/gaitlab/dmpo/environment/crawler"
	"github.com/gaitlab/dmpo/learner"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/varsync"
)

func testConfig() Config {
	config := DefaultConfig()
	config.MaxReplaySize = 256
	config.MinReplaySize = 8
	config.SamplesPerInsert = 0 // size-gated only, so tests never block
	config.NStep = 2
	config.LearnerBurst = 1
	config.ActorUpdatePeriod = 5
	config.EvalAverageOver = 2
	config.Learner.BatchSize = 4
	config.Learner.NumSamples = 3
	config.Learner.Atoms = 5
	config.Learner.VMin = -10
	config.Learner.VMax = 10
	return config
}

func testNetworkBuilder() network.Builder {
	b := network.NewBuilder(4, 5)
	b.ObservationHidden = []int{6}
	b.PolicyHidden = []int{6}
	b.CriticHidden = []int{8}
	return b
}

func TestConfigValidation(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}

	broken := []func(*Config){
		func(c *Config) { c.MinReplaySize = c.MaxReplaySize + 1 },
		func(c *Config) { c.NStep = 0 },
		func(c *Config) { c.Discount = 1.5 },
		func(c *Config) { c.LearnerBurst = 0 },
		func(c *Config) { c.ActorUpdatePeriod = 0 },
		func(c *Config) { c.EvalAverageOver = 0 },
		func(c *Config) { c.Learner.BatchSize = 0 },
	}
	for i, mutate := range broken {
		config := DefaultConfig()
		mutate(&config)
		if err := config.Validate(); err == nil {
			t.Errorf("broken configuration %v should not validate", i)
		}
	}
}

func TestRateLimiterSelection(t *testing.T) {
	config := testConfig()

	// Size-gated: admits once the minimum is resident, however lopsided
	// the sample:insert ratio.
	gate := config.RateLimiter()
	if gate.CanSample(7, 0, 7, 1) {
		t.Error("limiter admitted a sample below the minimum size")
	}
	if !gate.CanSample(8, 1_000_000, 8, 1) {
		t.Error("size-gated limiter must ignore the sample count")
	}

	// Ratio-gated: the same read is held back once samples run ahead of
	// inserts times the target.
	config.SamplesPerInsert = 2.0
	ratio := config.RateLimiter()
	if !ratio.CanSample(8, 0, 8, 1) {
		t.Error("ratio limiter should admit the first sample")
	}
	if ratio.CanSample(8, 1_000_000, 8, 1) {
		t.Error("ratio limiter must hold back a runaway sampler")
	}
}

// TestEndToEndTrainingStep drives the full in-process stack: a crawler
// episode fills replay through the n-step adder, and the learner takes
// a gradient step from it.
func TestEndToEndTrainingStep(t *testing.T) {
	config := testConfig()
	builder := testNetworkBuilder()

	table, err := config.NewReplayTable(1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	env, err := crawler.New(12, 2)
	if err != nil {
		t.Fatal(err)
	}

	l, err := NewLearner(config, builder, crawler.StateObservations,
		crawler.ActionDims, table, 3)
	if err != nil {
		t.Fatal(err)
	}

	a, err := NewActor(config, builder, env, table, l, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(1, nil); err != nil {
		t.Fatal(err)
	}

	if stats := table.Stats(); stats.Size < config.MinReplaySize {
		t.Fatalf("replay size after one episode \n\twant(>=%v)\n\thave(%v)",
			config.MinReplaySize, stats.Size)
	}

	diagnostics, err := l.Step()
	if err != nil {
		t.Fatal(err)
	}
	for key, value := range diagnostics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			t.Errorf("diagnostic %v is not finite: %v", key, value)
		}
	}
	if l.Steps() != 1 {
		t.Errorf("learner steps \n\twant(1)\n\thave(%v)", l.Steps())
	}
}

func TestSnapshotPublicationFeedsEvaluators(t *testing.T) {
	config := testConfig()
	builder := testNetworkBuilder()
	dir := t.TempDir()

	table, err := config.NewReplayTable(5)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	l, err := NewLearner(config, builder, crawler.StateObservations,
		crawler.ActionDims, table, 6)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := checkpointer.NewSnapshotter(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	version, written, err := PublishSnapshot(l, snap)
	if err != nil {
		t.Fatal(err)
	}
	if !written || version != 1 {
		t.Fatalf("first snapshot \n\twant(version 1, written)"+
			"\n\thave(%v, %v)", version, written)
	}

	// The published collection round-trips into an evaluator policy.
	env, err := crawler.New(12, 7)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEvaluator(config, builder, env, dir, "", 8)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := e.PollSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !loaded {
		t.Error("evaluator did not load the published snapshot")
	}
}

func TestRestoreLatestIsBestEffort(t *testing.T) {
	config := testConfig()
	builder := testNetworkBuilder()
	dir := t.TempDir()

	table, err := config.NewReplayTable(9)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	l, err := NewLearner(config, builder, crawler.StateObservations,
		crawler.ActionDims, table, 10)
	if err != nil {
		t.Fatal(err)
	}

	// Empty directory: start fresh.
	if RestoreLatest(dir, l) {
		t.Error("restore from an empty directory should report false")
	}

	ckpt, err := checkpointer.New(dir, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ckpt.Save(l.State()); err != nil {
		t.Fatal(err)
	}

	restored, err := NewLearner(config, builder, crawler.StateObservations,
		crawler.ActionDims, table, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !RestoreLatest(dir, restored) {
		t.Error("restore from a written checkpoint should succeed")
	}

	// The evaluator's variable fetch counter travels with the state.
	if restored.State().GetVariablesCalls != l.State().GetVariablesCalls {
		t.Error("restored state differs from the checkpointed state")
	}
}

var _ varsync.Source = (*learner.Learner)(nil)
