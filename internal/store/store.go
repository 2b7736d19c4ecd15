// Package store persists paused execution snapshots keyed by execution id.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/skilletai/skillet/internal/execcontext"
)

// ErrNotFound is returned when no snapshot exists for an execution id.
var ErrNotFound = errors.New("execution not found")

// ExecutionStore is the snapshot persistence contract. Status changes go
// through UpdateStatus or CompareAndSetStatus so the lifecycle rules are
// enforced in one place; Save is a plain put-by-id.
type ExecutionStore interface {
	// Save persists the snapshot, replacing any previous one for the
	// same execution id.
	Save(snapshot *execcontext.Snapshot) error

	// FindByID returns the snapshot for the id or ErrNotFound.
	FindByID(id string) (*execcontext.Snapshot, error)

	// Remove deletes the snapshot. Removing an unknown id is a no-op.
	Remove(id string) error

	// FindExpired returns the still-active snapshots created before the
	// given time.
	FindExpired(before time.Time) ([]*execcontext.Snapshot, error)

	// UpdateStatus applies the status if the lifecycle allows the
	// transition and reports whether anything changed.
	UpdateStatus(id string, status execcontext.SnapshotStatus) (bool, error)

	// CompareAndSetStatus transitions from expected to next atomically.
	// It returns false without error when the stored status does not
	// match expected, which is how a second resume attempt loses.
	CompareAndSetStatus(id string, expected, next execcontext.SnapshotStatus) (bool, error)
}

// keyedMutex hands out one mutex per execution id so status transitions
// serialize per execution without a global write lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for the id and returns its unlock func.
func (km *keyedMutex) lock(id string) func() {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*sync.Mutex)
	}
	l, ok := km.locks[id]
	if !ok {
		l = &sync.Mutex{}
		km.locks[id] = l
	}
	km.mu.Unlock()

	l.Lock()
	return l.Unlock
}
