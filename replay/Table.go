// Package replay implements the rate-limited experience replay service
// shared by actor and learner processes.
package replay

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/gaitlab/dmpo/timestep"
)

// Stats is a point-in-time view of a table's counters.
type Stats struct {
	Size    int   `json:"size"`
	Inserts int64 `json:"inserts"`
	Samples int64 `json:"samples"`
}

// Table is a bounded, FIFO-evicting store of transitions. Many goroutines
// may insert concurrently; sampling blocks until the minimum size is
// reached and the rate limiter admits the read. Inserting beyond capacity
// evicts the oldest resident item and never blocks.
//
// Sampling is uniform with replacement over the currently resident items.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	name    string
	items   []timestep.Transition
	start   int
	count   int
	maxSize int

	limiter RateLimiter
	inserts int64
	samples int64

	closed bool
	rng    *rand.Rand
}

// NewTable returns a table holding at most maxSize transitions, guarded by
// the given rate limiter.
func NewTable(name string, maxSize int, limiter RateLimiter,
	seed uint64) (*Table, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("newtable: maxSize must be >= 1 \n\thave(%v)",
			maxSize)
	}
	if limiter == nil {
		return nil, fmt.Errorf("newtable: limiter must not be nil")
	}

	t := &Table{
		name:    name,
		items:   make([]timestep.Transition, maxSize),
		maxSize: maxSize,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(seed)),
	}
	t.cond = sync.NewCond(&t.mu)
	return t, nil
}

// Name returns the table name used to address it over the network.
func (t *Table) Name() string {
	return t.name
}

// Insert adds one transition, evicting the oldest resident item if the
// table is at capacity. Insert never blocks on capacity. Inserting into a
// closed table is an error.
func (t *Table) Insert(transition timestep.Transition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &TableError{Op: "insert", Err: errClosed}
	}

	if t.count == t.maxSize {
		t.start = (t.start + 1) % t.maxSize
		t.count--
	}
	t.items[(t.start+t.count)%t.maxSize] = transition
	t.count++
	t.inserts++

	t.cond.Broadcast()
	return nil
}

// Sample blocks until the table holds enough items and the rate limiter
// admits the read, then returns batch transitions drawn uniformly at
// random. If the table is closed while waiting, Sample returns an error
// for which IsClosed is true.
func (t *Table) Sample(batch int) ([]timestep.Transition, error) {
	return t.sample(batch, nil)
}

// SampleTimeout behaves like Sample but gives up once the timeout elapses,
// returning an error for which IsTimeout is true.
func (t *Table) SampleTimeout(batch int,
	timeout time.Duration) ([]timestep.Transition, error) {
	deadline := time.Now().Add(timeout)
	return t.sample(batch, &deadline)
}

func (t *Table) sample(batch int,
	deadline *time.Time) ([]timestep.Transition, error) {
	if batch < 1 {
		return nil, fmt.Errorf("sample: batch must be >= 1 \n\thave(%v)",
			batch)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline != nil {
		// sync.Cond has no timed wait, so schedule a wakeup at the
		// deadline to re-check it.
		timer := time.AfterFunc(time.Until(*deadline), t.cond.Broadcast)
		defer timer.Stop()
	}

	for {
		if t.closed {
			return nil, &TableError{Op: "sample", Err: errClosed}
		}
		if t.limiter.CanSample(t.inserts, t.samples, t.count, batch) {
			break
		}
		if deadline != nil && !time.Now().Before(*deadline) {
			return nil, &TableError{Op: "sample", Err: errTimeout}
		}
		t.cond.Wait()
	}

	out := make([]timestep.Transition, batch)
	for i := range out {
		out[i] = t.items[(t.start+t.rng.Intn(t.count))%t.maxSize]
	}
	t.samples += int64(batch)

	// Draining samples can unblock nothing, but inserts waiting on
	// nothing is harmless; waiters re-check their own condition.
	t.cond.Broadcast()
	return out, nil
}

// Stats returns the current counters.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Size: t.count, Inserts: t.inserts, Samples: t.samples}
}

// Close tears the table down, releasing every blocked sampler with a
// terminal error.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
}
