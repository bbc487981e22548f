package replay

import (
	"math"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	ts "github.com/gaitlab/dmpo/timestep"
)

func transitionWith(v float64) ts.Transition {
	return ts.Transition{
		Observation:     mat.NewVecDense(1, []float64{v}),
		Action:          mat.NewVecDense(1, []float64{0}),
		Reward:          v,
		Discount:        1.0,
		NextObservation: mat.NewVecDense(1, []float64{v + 1}),
	}
}

func TestMinSizeGate(t *testing.T) {
	table, err := NewTable("test", 10, NewMinSize(3), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	table.Insert(transitionWith(0))
	table.Insert(transitionWith(1))

	if _, err := table.SampleTimeout(1, 20*time.Millisecond); !IsTimeout(err) {
		t.Fatalf("sampling below minimum size should time out, got %v", err)
	}

	table.Insert(transitionWith(2))
	batch, err := table.Sample(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Errorf("want batch of 2 \n\thave(%v)", len(batch))
	}
}

func TestFifoEviction(t *testing.T) {
	table, err := NewTable("test", 3, NewMinSize(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	for i := 0; i < 5; i++ {
		table.Insert(transitionWith(float64(i)))
	}

	// Items 0 and 1 must have been evicted; only 2, 3, 4 remain.
	seen := map[float64]bool{}
	for i := 0; i < 200; i++ {
		batch, err := table.Sample(1)
		if err != nil {
			t.Fatal(err)
		}
		seen[batch[0].Reward] = true
	}
	for _, old := range []float64{0, 1} {
		if seen[old] {
			t.Errorf("evicted item %v was sampled", old)
		}
	}
	if len(seen) == 0 {
		t.Fatal("nothing sampled")
	}
}

func TestSampleToInsertRatioConverges(t *testing.T) {
	const (
		minSize = 10
		target  = 2.0
	)
	errorBuffer := float64(minSize) * 0.1 * target
	table, err := NewTable("test", 1000,
		NewSampleToInsertRatio(minSize, target, errorBuffer), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			table.Insert(transitionWith(float64(i)))
		}
	}()

	sampled := int64(0)
	for sampled < 900 {
		batch, err := table.SampleTimeout(10, time.Second)
		if IsTimeout(err) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sampled += int64(len(batch))
	}
	wg.Wait()

	stats := table.Stats()
	ratio := float64(stats.Samples) / float64(stats.Inserts)
	if ratio > target+0.5 {
		t.Errorf("samples:inserts ratio %v exceeds target %v beyond "+
			"tolerance", ratio, target)
	}
	// The limiter must never have admitted more than the running budget.
	budget := float64(stats.Inserts)*target + errorBuffer
	if float64(stats.Samples) > budget {
		t.Errorf("served %v samples against a budget of %v",
			stats.Samples, budget)
	}
}

func TestCloseReleasesBlockedSampler(t *testing.T) {
	table, err := NewTable("test", 10, NewMinSize(5), 1)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := table.Sample(1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	table.Close()

	select {
	case err := <-done:
		if !IsClosed(err) {
			t.Errorf("blocked sampler should see a closed error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked sampler was not released by Close")
	}
}

func TestInsertNeverBlocksAtCapacity(t *testing.T) {
	table, err := NewTable("test", 2, NewMinSize(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			if err := table.Insert(transitionWith(float64(i))); err != nil {
				t.Errorf("insert: %v", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("insert blocked on a full table")
	}

	if size := table.Stats().Size; size != 2 {
		t.Errorf("size should be capped at capacity \n\twant(2)\n\thave(%v)",
			size)
	}
}

func TestUniformishSampling(t *testing.T) {
	table, err := NewTable("test", 4, NewMinSize(4), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	for i := 0; i < 4; i++ {
		table.Insert(transitionWith(float64(i)))
	}

	counts := map[float64]int{}
	const draws = 4000
	for i := 0; i < draws; i++ {
		batch, err := table.Sample(1)
		if err != nil {
			t.Fatal(err)
		}
		counts[batch[0].Reward]++
	}

	for v, n := range counts {
		frac := float64(n) / draws
		if math.Abs(frac-0.25) > 0.05 {
			t.Errorf("item %v sampled with frequency %v, want ~0.25", v, frac)
		}
	}
}
