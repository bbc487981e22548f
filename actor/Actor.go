package actor

import (
	"fmt"
	"log"
	"time"

	"github.com/gaitlab/dmpo/adder"
	"github.com/gaitlab/dmpo/checkpointer"
	"github.com/gaitlab/dmpo/environment"
	"github.com/gaitlab/dmpo/network"
	"github.com/gaitlab/dmpo/tracker"
	"github.com/gaitlab/dmpo/varsync"
)

// policyCollection is the variable collection the learner serves for
// acting. It carries the observation network followed by the policy
// head, matching the order of (*policy).learnables.
const policyCollection = "policy"

// Result summarizes one finished episode.
type Result struct {
	Return  float64
	Steps   int
	Seconds float64
}

// Driver runs episodes against an environment. The same type backs
// both roles of the system: actors sample from the policy and feed
// replay, evaluators run the policy mean, track rolling statistics,
// and follow published snapshots instead of the live variable server.
type Driver struct {
	env    environment.Environment
	policy *policy

	// stochastic selects sampled actions; evaluators act on the mean.
	stochastic bool

	adder  *adder.NStep    // nil when the driver does not feed replay
	client *varsync.Client // nil when parameters come from snapshots

	snapshotDir   string
	loadedVersion int64

	window    *window // nil when not aggregating statistics
	renderDir string

	envSteps int64
	episodes int64
	now      func() time.Time
}

// NewActor returns a driver that samples from the policy, inserts
// n-step transitions, and refreshes its parameters from source every
// updatePeriod environment steps.
func NewActor(env environment.Environment, builder network.Builder,
	inserter adder.Inserter, source varsync.Source, nStep int,
	discount float64, updatePeriod int64, seed uint64) (*Driver, error) {
	d, err := newDriver(env, builder, seed)
	if err != nil {
		return nil, fmt.Errorf("newactor: %v", err)
	}
	d.stochastic = true

	d.adder, err = adder.NewNStep(inserter, nStep, discount)
	if err != nil {
		return nil, fmt.Errorf("newactor: %v", err)
	}

	d.client, err = varsync.NewClient(source, []string{policyCollection},
		updatePeriod, func(variables map[string][]varsync.Variable) error {
			collection, ok := variables[policyCollection]
			if !ok {
				return fmt.Errorf("missing %v collection", policyCollection)
			}
			return d.policy.apply(collection)
		})
	if err != nil {
		return nil, fmt.Errorf("newactor: %v", err)
	}
	return d, nil
}

// NewEvaluator returns a driver that acts on the policy mean, loads
// parameters from published snapshots under snapshotDir, and reports
// statistics over the last averageOver episodes. renderDir, when
// non-empty, receives one return-trace image per episode.
func NewEvaluator(env environment.Environment, builder network.Builder,
	snapshotDir, renderDir string, averageOver int, seed uint64) (*Driver,
	error) {
	if averageOver < 1 {
		return nil, fmt.Errorf("newevaluator: averaging window must be "+
			"positive \n\thave(%v)", averageOver)
	}
	d, err := newDriver(env, builder, seed)
	if err != nil {
		return nil, fmt.Errorf("newevaluator: %v", err)
	}
	d.snapshotDir = snapshotDir
	d.renderDir = renderDir
	d.window = newWindow(averageOver)
	return d, nil
}

func newDriver(env environment.Environment, builder network.Builder,
	seed uint64) (*Driver, error) {
	if env == nil {
		return nil, fmt.Errorf("no environment")
	}
	obsDim := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	policy, err := newPolicy(builder, obsDim, actionDims, seed)
	if err != nil {
		return nil, err
	}
	return &Driver{
		env:    env,
		policy: policy,
		now:    time.Now,
	}, nil
}

// Sync blocks until the first parameter fetch succeeds. Drivers without
// a variable client return immediately.
func (d *Driver) Sync() error {
	if d.client == nil {
		return nil
	}
	return d.client.UpdateAndWait()
}

// PollSnapshot installs the newest published snapshot if it is newer
// than the one currently loaded. A snapshot that cannot be read yet is
// skipped and retried on the next poll.
func (d *Driver) PollSnapshot() (bool, error) {
	if d.snapshotDir == "" {
		return false, nil
	}
	latest, err := checkpointer.LatestVersion(d.snapshotDir)
	if err != nil {
		return false, fmt.Errorf("pollsnapshot: %v", err)
	}
	if latest == 0 || latest <= d.loadedVersion {
		return false, nil
	}

	var variables []varsync.Variable
	if err := checkpointer.LoadSnapshot(d.snapshotDir, latest,
		&variables); err != nil {
		log.Printf("pollsnapshot: snapshot %v not readable yet: %v", latest,
			err)
		return false, nil
	}
	if err := d.policy.apply(variables); err != nil {
		return false, fmt.Errorf("pollsnapshot: %v", err)
	}
	d.loadedVersion = latest
	return true, nil
}

// RunEpisode runs one episode to completion. A failure anywhere in the
// episode is contained: it is logged and a zeroed result is returned,
// so one bad rollout cannot take the worker down.
func (d *Driver) RunEpisode() Result {
	result, err := d.runEpisode()
	if err != nil {
		log.Printf("runepisode: episode %v failed: %v", d.episodes, err)
		return Result{}
	}
	d.episodes++
	if d.window != nil {
		d.window.add(result)
	}
	return result
}

func (d *Driver) runEpisode() (Result, error) {
	current, err := d.env.Reset()
	if err != nil {
		return Result{}, fmt.Errorf("could not reset environment: %v", err)
	}
	if d.adder != nil {
		d.adder.ObserveFirst(current)
	}

	var rewards []float64
	if d.renderDir != "" {
		rewards = make([]float64, 0, 128)
	}

	start := d.now()
	var episodeReturn float64
	var steps int
	for {
		if d.client != nil {
			if err := d.client.UpdateIfStale(d.envSteps); err != nil {
				return Result{}, err
			}
		}

		action, err := d.policy.SelectAction(current.Observation,
			d.stochastic)
		if err != nil {
			return Result{}, err
		}

		next, last, err := d.env.Step(action)
		if err != nil {
			return Result{}, fmt.Errorf("could not step environment: %v", err)
		}
		if d.adder != nil {
			if err := d.adder.Observe(action, next); err != nil {
				return Result{}, err
			}
		}

		episodeReturn += next.Reward
		if rewards != nil {
			rewards = append(rewards, next.Reward)
		}
		steps++
		d.envSteps++
		current = next
		if last {
			break
		}
	}

	if rewards != nil {
		if err := d.render(rewards); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Return:  episodeReturn,
		Steps:   steps,
		Seconds: d.now().Sub(start).Seconds(),
	}, nil
}

// Run executes episodes episodes, writing per-episode diagnostics to
// logger after each one. episodes <= 0 runs forever. Evaluators poll
// for a newer snapshot before each episode.
func (d *Driver) Run(episodes int, logger tracker.Logger) error {
	if d.client != nil {
		if err := d.Sync(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}
	for i := 0; episodes <= 0 || i < episodes; i++ {
		if _, err := d.PollSnapshot(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
		result := d.RunEpisode()
		if logger != nil {
			if err := logger.Write(d.report(result)); err != nil {
				return fmt.Errorf("run: could not log episode: %v", err)
			}
		}
	}
	return nil
}

// report assembles the per-episode diagnostics. Rolling statistics are
// included only once the averaging window has filled.
func (d *Driver) report(result Result) map[string]float64 {
	diagnostics := map[string]float64{
		"episode_return": result.Return,
		"episode_length": float64(result.Steps),
		"episodes":       float64(d.episodes),
		"env_steps":      float64(d.envSteps),
	}
	if result.Seconds > 0 {
		diagnostics["steps_per_second"] = float64(result.Steps) /
			result.Seconds
	}
	if d.snapshotDir != "" {
		diagnostics["snapshot_version"] = float64(d.loadedVersion)
	}
	if d.window != nil && d.window.full() {
		for key, value := range d.window.stats() {
			diagnostics[key] = value
		}
	}
	return diagnostics
}

// EnvSteps returns the total number of environment steps taken across
// all episodes, including failed ones.
func (d *Driver) EnvSteps() int64 { return d.envSteps }
