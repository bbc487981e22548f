package tracker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Console logs aggregated diagnostics to a writer at most once per
// interval. Values written between flushes are averaged, so callers can
// write on every gradient step or episode without flooding the output.
type Console struct {
	mu sync.Mutex

	label    string
	interval time.Duration
	out      io.Writer
	now      func() time.Time

	lastFlush time.Time
	sums      map[string]float64
	counts    map[string]float64
}

// NewConsole returns a console logger writing to stderr under the given
// label at most once per interval.
func NewConsole(label string, interval time.Duration) *Console {
	return newConsole(label, interval, os.Stderr, time.Now)
}

func newConsole(label string, interval time.Duration, out io.Writer,
	now func() time.Time) *Console {
	return &Console{
		label:    label,
		interval: interval,
		out:      out,
		now:      now,
		sums:     map[string]float64{},
		counts:   map[string]float64{},
	}
}

// Write accumulates the diagnostics and flushes their running means if
// the interval has elapsed. The first write always flushes.
func (c *Console) Write(data map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range data {
		c.sums[key] += value
		c.counts[key]++
	}

	now := c.now()
	if !c.lastFlush.IsZero() && now.Sub(c.lastFlush) < c.interval {
		return nil
	}
	c.lastFlush = now

	keys := make([]string, 0, len(c.sums))
	for key := range c.sums {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, len(keys))
	for i, key := range keys {
		fields[i] = fmt.Sprintf("%v = %.6g", key, c.sums[key]/c.counts[key])
	}
	_, err := fmt.Fprintf(c.out, "[%v] %v\n", c.label,
		strings.Join(fields, ", "))

	c.sums = map[string]float64{}
	c.counts = map[string]float64{}
	if err != nil {
		return fmt.Errorf("write: could not flush diagnostics: %v", err)
	}
	return nil
}
