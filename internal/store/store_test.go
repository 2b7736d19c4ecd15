package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/execcontext"
	_ "github.com/skilletai/skillet/internal/testhelper"
)

func storesUnderTest(t *testing.T) map[string]ExecutionStore {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]ExecutionStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func activeSnapshot(id string, createdAt time.Time) *execcontext.Snapshot {
	return &execcontext.Snapshot{
		ExecutionID:      id,
		SkillID:          "summarize",
		SkillVersion:     "1.0.0",
		CurrentStepIndex: 1,
		CreatedAt:        createdAt,
		Status:           execcontext.SnapshotActive,
		AwaitRequest: &execcontext.AwaitRequest{
			StepName: "confirm",
			Message:  "Proceed?",
		},
		Context: &execcontext.ContextState{
			Input: map[string]interface{}{"topic": "espresso"},
		},
	}
}

func TestSaveAndFindByID(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			snap := activeSnapshot("exec-1", time.Now().UTC())
			require.NoError(t, s.Save(snap))

			found, err := s.FindByID("exec-1")
			require.NoError(t, err)
			assert.Equal(t, "exec-1", found.ExecutionID)
			assert.Equal(t, "summarize", found.SkillID)
			assert.Equal(t, 1, found.CurrentStepIndex)
			assert.Equal(t, execcontext.SnapshotActive, found.Status)
			require.NotNil(t, found.AwaitRequest)
			assert.Equal(t, "confirm", found.AwaitRequest.StepName)
			assert.Equal(t, "espresso", found.Context.Input["topic"])

			// the stored snapshot is detached from the caller's copy
			snap.SkillID = "mutated"
			found, err = s.FindByID("exec-1")
			require.NoError(t, err)
			assert.Equal(t, "summarize", found.SkillID)
		})
	}
}

func TestFindByIDNotFound(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindByID("exec-missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveReplaces(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			snap := activeSnapshot("exec-1", time.Now().UTC())
			require.NoError(t, s.Save(snap))

			snap.CurrentStepIndex = 4
			require.NoError(t, s.Save(snap))

			found, err := s.FindByID("exec-1")
			require.NoError(t, err)
			assert.Equal(t, 4, found.CurrentStepIndex)
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(activeSnapshot("exec-1", time.Now().UTC())))
			require.NoError(t, s.Remove("exec-1"))

			_, err := s.FindByID("exec-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Remove("exec-1"))
		})
	}
}

func TestFindExpired(t *testing.T) {
	cutoff := time.Now().UTC()

	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			old := activeSnapshot("exec-old", cutoff.Add(-time.Hour))
			fresh := activeSnapshot("exec-fresh", cutoff.Add(time.Hour))
			done := activeSnapshot("exec-done", cutoff.Add(-time.Hour))
			done.Status = execcontext.SnapshotResumed

			require.NoError(t, s.Save(old))
			require.NoError(t, s.Save(fresh))
			require.NoError(t, s.Save(done))

			expired, err := s.FindExpired(cutoff)
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "exec-old", expired[0].ExecutionID)
		})
	}
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(activeSnapshot("exec-1", time.Now().UTC())))

			changed, err := s.UpdateStatus("exec-1", execcontext.SnapshotExpired)
			require.NoError(t, err)
			assert.True(t, changed)

			// expired is terminal
			changed, err = s.UpdateStatus("exec-1", execcontext.SnapshotResumed)
			require.NoError(t, err)
			assert.False(t, changed)

			found, err := s.FindByID("exec-1")
			require.NoError(t, err)
			assert.Equal(t, execcontext.SnapshotExpired, found.Status)

			_, err = s.UpdateStatus("exec-missing", execcontext.SnapshotExpired)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(activeSnapshot("exec-1", time.Now().UTC())))

			ok, err := s.CompareAndSetStatus("exec-1", execcontext.SnapshotActive, execcontext.SnapshotResumed)
			require.NoError(t, err)
			assert.True(t, ok)

			// second resume observes the stale expected status and loses
			ok, err = s.CompareAndSetStatus("exec-1", execcontext.SnapshotActive, execcontext.SnapshotResumed)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.CompareAndSetStatus("exec-missing", execcontext.SnapshotActive, execcontext.SnapshotResumed)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCompareAndSetStatusSingleWinner(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(activeSnapshot("exec-1", time.Now().UTC())))

			const attempts = 16
			var wg sync.WaitGroup
			wins := make(chan bool, attempts)

			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.CompareAndSetStatus("exec-1", execcontext.SnapshotActive, execcontext.SnapshotResumed)
					require.NoError(t, err)
					wins <- ok
				}()
			}

			wg.Wait()
			close(wins)

			winners := 0
			for ok := range wins {
				if ok {
					winners++
				}
			}
			assert.Equal(t, 1, winners)
		})
	}
}

func TestFileStoreRejectsPathEscapes(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := activeSnapshot("../escape", time.Now().UTC())
	assert.Error(t, s.Save(snap))

	_, err = s.FindByID("a/b")
	assert.Error(t, err)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(activeSnapshot("exec-1", time.Now().UTC())))

	second, err := NewFileStore(dir)
	require.NoError(t, err)

	found, err := second.FindByID("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "summarize", found.SkillID)
}
