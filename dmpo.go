// Package dmpo wires the distributed training system together: a
// rate-limited replay service, a learner running distributional MPO
// updates, actors feeding replay, and evaluators following published
// policy snapshots.
package dmpo

import (
	"fmt"
	"log"
	"time"

	"github.com/gaitlab/dmpo/actor"
	"github.com/gaitlab/dmpo/adder"
	"github.com/gaitlab/dmpo/checkpointer"
	"github.com/gaitlab/dmpo/environment"
	"github.com/gaitlab/dmpo/learner"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/replay"
	"github.com/gaitlab/dmpo/tracker"
	"github.com/gaitlab/dmpo/varsync"
)

// Config collects the knobs of the whole system. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Replay
	MaxReplaySize int
	MinReplaySize int

	// SamplesPerInsert is the target ratio the replay rate limiter
	// holds the learner to. 0 disables the ratio and gates sampling on
	// the minimum size alone.
	SamplesPerInsert float64

	// NStep and Discount shape the transitions actors insert.
	NStep    int
	Discount float64

	Learner learner.Config

	// LearnerBurst is the number of gradient steps per Run burst,
	// between which checkpoints and snapshots are considered.
	LearnerBurst int

	// ActorUpdatePeriod is the number of environment steps between
	// actor variable refreshes.
	ActorUpdatePeriod int64

	// EvalAverageOver is the evaluator's rolling statistics window, in
	// episodes.
	EvalAverageOver int

	CheckpointInterval time.Duration
	CheckpointRetain   int
	SnapshotInterval   time.Duration
}

// DefaultConfig returns the configuration used for the locomotion
// experiments.
func DefaultConfig() Config {
	return Config{
		MaxReplaySize:      4_000_000,
		MinReplaySize:      10_000,
		SamplesPerInsert:   32.0,
		NStep:              5,
		Discount:           0.95,
		Learner:            learner.DefaultConfig(),
		LearnerBurst:       100,
		ActorUpdatePeriod:  1000,
		EvalAverageOver:    200,
		CheckpointInterval: 30 * time.Minute,
		CheckpointRetain:   5,
		SnapshotInterval:   5 * time.Minute,
	}
}

// Validate checks the configuration for fatal errors.
func (c Config) Validate() error {
	if c.MaxReplaySize < 1 {
		return fmt.Errorf("config: replay capacity must be positive "+
			"\n\thave(%v)", c.MaxReplaySize)
	}
	if c.MinReplaySize < 1 || c.MinReplaySize > c.MaxReplaySize {
		return fmt.Errorf("config: minimum replay size must be in [1, %v] "+
			"\n\thave(%v)", c.MaxReplaySize, c.MinReplaySize)
	}
	if c.SamplesPerInsert < 0 {
		return fmt.Errorf("config: samples per insert must be "+
			"non-negative \n\thave(%v)", c.SamplesPerInsert)
	}
	if c.NStep < 1 {
		return fmt.Errorf("config: n-step must be positive \n\thave(%v)",
			c.NStep)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("config: discount must be in [0, 1] \n\thave(%v)",
			c.Discount)
	}
	if c.LearnerBurst < 1 {
		return fmt.Errorf("config: learner burst must be positive "+
			"\n\thave(%v)", c.LearnerBurst)
	}
	if c.ActorUpdatePeriod < 1 {
		return fmt.Errorf("config: actor update period must be positive "+
			"\n\thave(%v)", c.ActorUpdatePeriod)
	}
	if c.EvalAverageOver < 1 {
		return fmt.Errorf("config: evaluation window must be positive "+
			"\n\thave(%v)", c.EvalAverageOver)
	}
	return c.Learner.Validate()
}

// RateLimiter returns the replay admission policy the configuration
// asks for. The error buffer gives the ratio limiter ten percent of
// the warmup worth of slack, so learner and actors do not deadlock on
// exact alternation.
func (c Config) RateLimiter() replay.RateLimiter {
	if c.SamplesPerInsert <= 0 {
		return replay.NewMinSize(c.MinReplaySize)
	}
	errorBuffer := float64(c.MinReplaySize) * 0.1 * c.SamplesPerInsert
	return replay.NewSampleToInsertRatio(c.MinReplaySize,
		c.SamplesPerInsert, errorBuffer)
}

// NewReplayTable builds the experience table actors insert into and
// the learner samples from.
func (c Config) NewReplayTable(seed uint64) (*replay.Table, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return replay.NewTable("experience", c.MaxReplaySize, c.RateLimiter(),
		seed)
}

// NewLearner builds a learner for the given problem dimensions,
// sampling from sampler.
func NewLearner(c Config, b network.Builder, obsDim, actionDims int,
	sampler replay.Sampler, seed uint64) (*learner.Learner, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return learner.NewLearner(c.Learner, b, obsDim, actionDims, sampler,
		seed)
}

// NewActor builds a rollout worker that inserts n-step transitions and
// follows the variable source.
func NewActor(c Config, b network.Builder, env environment.Environment,
	inserter adder.Inserter, source varsync.Source, seed uint64) (
	*actor.Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return actor.NewActor(env, b, inserter, source, c.NStep, c.Discount,
		c.ActorUpdatePeriod, seed)
}

// NewEvaluator builds an evaluation worker reading policy snapshots
// from snapshotDir and optionally rendering return traces into
// renderDir.
func NewEvaluator(c Config, b network.Builder,
	env environment.Environment, snapshotDir, renderDir string,
	seed uint64) (*actor.Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return actor.NewEvaluator(env, b, snapshotDir, renderDir,
		c.EvalAverageOver, seed)
}

// RestoreLatest loads the newest checkpoint under dir into l. Restore
// is best effort: a missing or unreadable checkpoint means training
// starts fresh, which is logged, not fatal.
func RestoreLatest(dir string, l *learner.Learner) bool {
	path, err := checkpointer.Latest(dir)
	if err != nil {
		log.Printf("restorelatest: %v; starting fresh", err)
		return false
	}
	if path == "" {
		return false
	}

	var state learner.State
	if err := checkpointer.Restore(path, &state); err != nil {
		log.Printf("restorelatest: %v; starting fresh", err)
		return false
	}
	if err := l.SetState(&state); err != nil {
		log.Printf("restorelatest: %v; starting fresh", err)
		return false
	}
	log.Printf("restorelatest: resumed from %v at step %v", path, l.Steps())
	return true
}

// PublishSnapshot exports the learner's policy collection as a new
// snapshot version for evaluators.
func PublishSnapshot(l *learner.Learner, snap *checkpointer.Snapshotter) (
	int64, bool, error) {
	variables, err := l.GetVariables([]string{learner.PolicyCollection})
	if err != nil {
		return 0, false, fmt.Errorf("publishsnapshot: %v", err)
	}
	version, written, err := snap.Save(variables[learner.PolicyCollection])
	if err != nil {
		return 0, false, fmt.Errorf("publishsnapshot: %v", err)
	}
	return version, written, nil
}

// TrainLoop runs learner bursts forever, checkpointing full state and
// publishing policy snapshots between bursts. Persistence failures are
// logged and training continues; only learner errors stop the loop.
func TrainLoop(c Config, l *learner.Learner, logger tracker.Logger,
	ckpt *checkpointer.Checkpointer, snap *checkpointer.Snapshotter) error {
	for {
		if err := l.Run(c.LearnerBurst, logger); err != nil {
			return fmt.Errorf("trainloop: %v", err)
		}
		if ckpt != nil {
			if _, err := ckpt.Save(l.State()); err != nil {
				log.Printf("trainloop: checkpoint failed: %v", err)
			}
		}
		if snap != nil {
			if _, _, err := PublishSnapshot(l, snap); err != nil {
				log.Printf("trainloop: snapshot failed: %v", err)
			}
		}
	}
}
