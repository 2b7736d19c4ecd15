package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/skilletai/skillet/internal/execcontext"
)

// MemoryStore keeps snapshots in process memory. It is the default store
// and the one single-process deployments use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*execcontext.Snapshot
	ids       keyedMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*execcontext.Snapshot),
	}
}

// Save stores a detached copy of the snapshot so later mutations by the
// caller do not leak into the store.
func (s *MemoryStore) Save(snapshot *execcontext.Snapshot) error {
	if snapshot.ExecutionID == "" {
		return fmt.Errorf("snapshot has no execution id")
	}

	clone, err := snapshot.Clone()
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", snapshot.ExecutionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.ExecutionID] = clone
	return nil
}

// FindByID returns a detached copy of the stored snapshot.
func (s *MemoryStore) FindByID(id string) (*execcontext.Snapshot, error) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return snapshot.Clone()
}

// Remove deletes the snapshot for the id.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, id)
	return nil
}

// FindExpired returns active snapshots created before the given time.
func (s *MemoryStore) FindExpired(before time.Time) ([]*execcontext.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*execcontext.Snapshot
	for _, snapshot := range s.snapshots {
		if snapshot.Status != execcontext.SnapshotActive || !snapshot.CreatedAt.Before(before) {
			continue
		}

		clone, err := snapshot.Clone()
		if err != nil {
			return nil, fmt.Errorf("encoding snapshot %s: %w", snapshot.ExecutionID, err)
		}
		expired = append(expired, clone)
	}
	return expired, nil
}

// UpdateStatus applies the status when the lifecycle allows it.
func (s *MemoryStore) UpdateStatus(id string, status execcontext.SnapshotStatus) (bool, error) {
	defer s.ids.lock(id)()

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return false, ErrNotFound
	}
	if !snapshot.Status.CanTransition(status) {
		return false, nil
	}

	snapshot.Status = status
	return true, nil
}

// CompareAndSetStatus transitions from expected to next atomically.
func (s *MemoryStore) CompareAndSetStatus(id string, expected, next execcontext.SnapshotStatus) (bool, error) {
	defer s.ids.lock(id)()

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return false, ErrNotFound
	}
	if snapshot.Status != expected || !expected.CanTransition(next) {
		return false, nil
	}

	snapshot.Status = next
	return true, nil
}
