// Package checkpointer persists learner state: full training
// checkpoints for exact resumption and lighter versioned inference
// snapshots for evaluators. Both paths are time-gated so a tight
// learner loop cannot flood the disk.
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Checkpointer writes gob-encoded full-state checkpoints at most once
// per interval, pruning the oldest beyond the retention count.
type Checkpointer struct {
	dir      string
	interval time.Duration
	retain   int // 0 keeps everything

	next     int
	lastSave time.Time
	now      func() time.Time
}

// New returns a checkpointer writing into dir, which is created if
// missing. retain is the number of checkpoints kept; 0 is unbounded.
func New(dir string, interval time.Duration, retain int) (*Checkpointer,
	error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new: could not create checkpoint "+
			"directory: %v", err)
	}
	if retain < 0 {
		return nil, fmt.Errorf("new: retention must be non-negative "+
			"\n\thave(%v)", retain)
	}

	// Resume numbering after any existing checkpoints.
	existing, err := list(dir)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	next := 0
	if len(existing) > 0 {
		next = existing[len(existing)-1].index + 1
	}

	return &Checkpointer{
		dir:      dir,
		interval: interval,
		retain:   retain,
		next:     next,
		now:      time.Now,
	}, nil
}

// Save writes state if the interval has elapsed since the last write.
// The first call always writes. It reports whether a checkpoint was
// written.
func (c *Checkpointer) Save(state interface{}) (bool, error) {
	now := c.now()
	if !c.lastSave.IsZero() && now.Sub(c.lastSave) < c.interval {
		return false, nil
	}

	path := filepath.Join(c.dir, fmt.Sprintf("checkpoint-%06d.bin", c.next))
	if err := writeGob(path, state); err != nil {
		return false, fmt.Errorf("save: %v", err)
	}
	c.next++
	c.lastSave = now

	if err := c.prune(); err != nil {
		return true, fmt.Errorf("save: %v", err)
	}
	return true, nil
}

// prune removes the oldest checkpoints beyond the retention count.
func (c *Checkpointer) prune() error {
	if c.retain == 0 {
		return nil
	}
	entries, err := list(c.dir)
	if err != nil {
		return err
	}
	for len(entries) > c.retain {
		if err := os.Remove(entries[0].path); err != nil {
			return fmt.Errorf("could not prune %v: %v", entries[0].path, err)
		}
		entries = entries[1:]
	}
	return nil
}

// Latest returns the path of the newest checkpoint in dir, or an empty
// string if none exists.
func Latest(dir string) (string, error) {
	entries, err := list(dir)
	if err != nil {
		return "", fmt.Errorf("latest: %v", err)
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].path, nil
}

// Restore gob-decodes a checkpoint into state.
func Restore(path string, state interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("restore: could not open checkpoint: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(state); err != nil {
		return fmt.Errorf("restore: could not decode checkpoint: %v", err)
	}
	return nil
}

type checkpointEntry struct {
	index int
	path  string
}

func list(dir string) ([]checkpointEntry, error) {
	names, err := filepath.Glob(filepath.Join(dir, "checkpoint-*.bin"))
	if err != nil {
		return nil, fmt.Errorf("could not list checkpoints: %v", err)
	}

	entries := make([]checkpointEntry, 0, len(names))
	for _, path := range names {
		base := filepath.Base(path)
		var index int
		_, err := fmt.Sscanf(strings.TrimSuffix(base, ".bin"),
			"checkpoint-%d", &index)
		if err != nil {
			continue
		}
		entries = append(entries, checkpointEntry{index: index, path: path})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].index < entries[j].index
	})
	return entries, nil
}

// writeGob encodes state into a temporary file and renames it into
// place, so readers never observe a half-written checkpoint.
func writeGob(path string, state interface{}) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create %v: %v", tmp, err)
	}
	if err := gob.NewEncoder(file).Encode(state); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not encode state: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not flush %v: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not publish %v: %v", path, err)
	}
	return nil
}
