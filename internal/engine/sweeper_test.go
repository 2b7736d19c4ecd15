package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/execcontext"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func awaitingSkill() *ast.Skill {
	return createTestSkill(
		&ast.Step{
			Name:    "ask",
			Type:    ast.StepAwait,
			Message: "Still there?",
			AwaitInputs: map[string]*ast.FieldSpec{
				"confirm": {Type: "boolean", Required: true},
			},
		},
		&ast.Step{Name: "done", Type: ast.StepTemplate, VarName: "msg", Template: "done"},
	)
}

func TestSweeper_ExpiresTimedOutExecutions(t *testing.T) {
	clock := newFakeClock()
	eng := NewEngine(WithClock(clock.Now), WithAwaitTimeout(time.Hour))
	skill := awaitingSkill()

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	sweeper := NewSweeper(eng, time.Minute)

	// still inside the timeout window
	assert.Equal(t, 0, sweeper.Sweep())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, sweeper.Sweep())

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotExpired, snapshot.Status)

	// expiry is terminal
	resumed := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"confirm": true})
	require.NotNil(t, resumed.Error)
	assert.Equal(t, execcontext.ErrExecutionCompleted, resumed.Error.Code)
	assert.Contains(t, resumed.Error.Message, "expired")

	// a second pass finds nothing left to do
	assert.Equal(t, 0, sweeper.Sweep())
}

func TestSweeper_SkipsFreshAndTerminalSnapshots(t *testing.T) {
	clock := newFakeClock()
	eng := NewEngine(WithClock(clock.Now), WithAwaitTimeout(time.Hour))
	skill := awaitingSkill()

	stale := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, stale.Awaiting)

	cancelled := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, cancelled.Awaiting)
	require.NoError(t, eng.Cancel(cancelled.ExecutionID))

	clock.Advance(2 * time.Hour)

	fresh := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, fresh.Awaiting)

	sweeper := NewSweeper(eng, time.Minute)
	assert.Equal(t, 1, sweeper.Sweep())

	staleSnap, err := eng.Store().FindByID(stale.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotExpired, staleSnap.Status)

	freshSnap, err := eng.Store().FindByID(fresh.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotActive, freshSnap.Status)

	cancelledSnap, err := eng.Store().FindByID(cancelled.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotCancelled, cancelledSnap.Status)
}

func TestSweeper_RunLoop(t *testing.T) {
	clock := newFakeClock()
	eng := NewEngine(WithClock(clock.Now), WithAwaitTimeout(time.Hour))
	skill := awaitingSkill()

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sweeper := NewSweeper(eng, 5*time.Millisecond)
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		snapshot, err := eng.Store().FindByID(paused.ExecutionID)
		return err == nil && snapshot.Status == execcontext.SnapshotExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	sweeper := NewSweeper(NewEngine(), 0)
	assert.Equal(t, time.Minute, sweeper.interval)
}
