package checkpointer

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ledgerName is the append-only version ledger: one "version filename"
// line per published snapshot, appended only after the snapshot file is
// fully written. Readers take the highest version from the ledger, so
// they never race a snapshot that is still being written. The ledger
// has a single writer (the learner process).
const ledgerName = "versions.ledger"

// Snapshotter publishes versioned, inference-only snapshots. Versions
// are monotonically increasing integers starting at 1.
type Snapshotter struct {
	dir      string
	interval time.Duration

	version  int64
	lastSave time.Time
	now      func() time.Time
}

// NewSnapshotter returns a snapshotter writing into dir, resuming the
// version sequence from an existing ledger if present.
func NewSnapshotter(dir string, interval time.Duration) (*Snapshotter,
	error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newsnapshotter: could not create snapshot "+
			"directory: %v", err)
	}

	versions, err := Versions(dir)
	if err != nil {
		return nil, fmt.Errorf("newsnapshotter: %v", err)
	}
	var version int64
	if len(versions) > 0 {
		version = versions[len(versions)-1].Version
	}

	return &Snapshotter{
		dir:      dir,
		interval: interval,
		version:  version,
		now:      time.Now,
	}, nil
}

// Save publishes a snapshot if the interval has elapsed since the last
// one. The first call always publishes. It returns the version written
// and whether a write happened.
func (s *Snapshotter) Save(snapshot interface{}) (int64, bool, error) {
	now := s.now()
	if !s.lastSave.IsZero() && now.Sub(s.lastSave) < s.interval {
		return s.version, false, nil
	}

	version := s.version + 1
	name := fmt.Sprintf("snapshot-%06d.bin", version)
	if err := writeGob(filepath.Join(s.dir, name), snapshot); err != nil {
		return s.version, false, fmt.Errorf("save: %v", err)
	}

	// The snapshot is durable; now publish it in the ledger.
	ledger, err := os.OpenFile(filepath.Join(s.dir, ledgerName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return s.version, false, fmt.Errorf("save: could not open "+
			"ledger: %v", err)
	}
	_, err = fmt.Fprintf(ledger, "%d %s\n", version, name)
	if closeErr := ledger.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return s.version, false, fmt.Errorf("save: could not append to "+
			"ledger: %v", err)
	}

	s.version = version
	s.lastSave = now
	return version, true, nil
}

// SnapshotEntry is one published snapshot in the version ledger.
type SnapshotEntry struct {
	Version int64
	Path    string
}

// Versions reads the ledger in order. A torn final line (a write in
// progress) is skipped rather than reported as an error.
func Versions(dir string) ([]SnapshotEntry, error) {
	file, err := os.Open(filepath.Join(dir, ledgerName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("versions: could not open ledger: %v", err)
	}
	defer file.Close()

	var entries []SnapshotEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var version int64
		var name string
		if _, err := fmt.Sscanf(scanner.Text(), "%d %s", &version,
			&name); err != nil {
			continue
		}
		entries = append(entries, SnapshotEntry{
			Version: version,
			Path:    filepath.Join(dir, name),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("versions: could not read ledger: %v", err)
	}
	return entries, nil
}

// LatestVersion returns the highest published version, or 0 when no
// snapshot exists yet.
func LatestVersion(dir string) (int64, error) {
	entries, err := Versions(dir)
	if err != nil {
		return 0, fmt.Errorf("latestversion: %v", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Version, nil
}

// LoadSnapshot decodes the snapshot with the given version into out.
// A missing or partially written snapshot surfaces as an error the
// caller should treat as transient: skip this round and retry the same
// version on the next poll.
func LoadSnapshot(dir string, version int64, out interface{}) error {
	entries, err := Versions(dir)
	if err != nil {
		return fmt.Errorf("loadsnapshot: %v", err)
	}
	for _, entry := range entries {
		if entry.Version != version {
			continue
		}
		file, err := os.Open(entry.Path)
		if err != nil {
			return fmt.Errorf("loadsnapshot: could not open snapshot: %v",
				err)
		}
		defer file.Close()
		if err := gob.NewDecoder(file).Decode(out); err != nil {
			return fmt.Errorf("loadsnapshot: could not decode snapshot: %v",
				err)
		}
		return nil
	}
	return fmt.Errorf("loadsnapshot: no snapshot with version %v", version)
}
