package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/skilletai/skillet/internal/execcontext"
)

// FileStore persists one JSON file per execution under a directory.
// In-process callers serialize through keyed mutexes; a file lock next
// to each snapshot guards against other processes sharing the directory.
type FileStore struct {
	dir string
	ids keyedMutex
}

// NewFileStore creates the directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save persists the snapshot, replacing any existing file.
func (s *FileStore) Save(snapshot *execcontext.Snapshot) error {
	if err := checkID(snapshot.ExecutionID); err != nil {
		return err
	}
	defer s.ids.lock(snapshot.ExecutionID)()

	fl := flock.New(s.lockPath(snapshot.ExecutionID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("locking snapshot %s: %w", snapshot.ExecutionID, err)
	}
	defer func() { _ = fl.Unlock() }()

	return s.write(snapshot)
}

// FindByID reads the snapshot file for the id.
func (s *FileStore) FindByID(id string) (*execcontext.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	defer s.ids.lock(id)()

	fl := flock.New(s.lockPath(id))
	if err := fl.RLock(); err != nil {
		return nil, fmt.Errorf("locking snapshot %s: %w", id, err)
	}
	defer func() { _ = fl.Unlock() }()

	return s.read(id)
}

// Remove deletes the snapshot file and its lock file.
func (s *FileStore) Remove(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	defer s.ids.lock(id)()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot %s: %w", id, err)
	}
	_ = os.Remove(s.lockPath(id))
	return nil
}

// FindExpired scans the directory for active snapshots created before
// the given time.
func (s *FileStore) FindExpired(before time.Time) ([]*execcontext.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory %s: %w", s.dir, err)
	}

	var expired []*execcontext.Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		snapshot, err := s.FindByID(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Raced with a Remove; nothing to sweep.
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}

		if snapshot.Status == execcontext.SnapshotActive && snapshot.CreatedAt.Before(before) {
			expired = append(expired, snapshot)
		}
	}
	return expired, nil
}

// UpdateStatus applies the status when the lifecycle allows it.
func (s *FileStore) UpdateStatus(id string, status execcontext.SnapshotStatus) (bool, error) {
	return s.transition(id, func(current execcontext.SnapshotStatus) bool {
		return current.CanTransition(status)
	}, status)
}

// CompareAndSetStatus transitions from expected to next atomically.
func (s *FileStore) CompareAndSetStatus(id string, expected, next execcontext.SnapshotStatus) (bool, error) {
	return s.transition(id, func(current execcontext.SnapshotStatus) bool {
		return current == expected && expected.CanTransition(next)
	}, next)
}

// transition performs a read-modify-write of the status under both the
// in-process keyed mutex and the cross-process file lock.
func (s *FileStore) transition(id string, allowed func(execcontext.SnapshotStatus) bool, next execcontext.SnapshotStatus) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	defer s.ids.lock(id)()

	fl := flock.New(s.lockPath(id))
	if err := fl.Lock(); err != nil {
		return false, fmt.Errorf("locking snapshot %s: %w", id, err)
	}
	defer func() { _ = fl.Unlock() }()

	snapshot, err := s.read(id)
	if err != nil {
		return false, err
	}
	if !allowed(snapshot.Status) {
		return false, nil
	}

	snapshot.Status = next
	if err := s.write(snapshot); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) read(id string) (*execcontext.Snapshot, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	var snapshot execcontext.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return &snapshot, nil
}

// write goes through a temp file and rename so readers never observe a
// half-written snapshot.
func (s *FileStore) write(snapshot *execcontext.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", snapshot.ExecutionID, err)
	}

	tmp := s.path(snapshot.ExecutionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", snapshot.ExecutionID, err)
	}
	if err := os.Rename(tmp, s.path(snapshot.ExecutionID)); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", snapshot.ExecutionID, err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) lockPath(id string) string {
	return filepath.Join(s.dir, id+".lock")
}

// checkID rejects ids that would escape the snapshot directory.
func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("snapshot has no execution id")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid execution id %q", id)
	}
	return nil
}
