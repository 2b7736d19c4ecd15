package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/pkg/events"
)

// Sweeper retires paused executions that outlive the engine's await
// timeout. Sweeping is idempotent; concurrent sweepers only race on the
// status CAS and the loser skips the snapshot.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper creates a sweeper that runs a pass every interval.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs a single pass and reports how many executions it expired.
// Store errors are logged and suppressed; the next pass retries.
func (s *Sweeper) Sweep() int {
	cutoff := s.engine.now().Add(-s.engine.awaitTimeout)

	snapshots, err := s.engine.store.FindExpired(cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Sweeper could not list expired executions")
		return 0
	}

	expired := 0
	for _, snapshot := range snapshots {
		swapped, err := s.engine.store.CompareAndSetStatus(
			snapshot.ExecutionID, execcontext.SnapshotActive, execcontext.SnapshotExpired)
		if err != nil {
			log.Warn().Err(err).Str("execution_id", snapshot.ExecutionID).Msg("Sweeper could not expire execution")
			continue
		}
		if !swapped {
			// resumed or cancelled since the listing
			continue
		}

		expired++
		log.Info().
			Str("execution_id", snapshot.ExecutionID).
			Str("skill_id", snapshot.SkillID).
			Msg("Expired awaiting execution")

		s.engine.emit(events.ExecutionEvent{
			Type:        events.EventExecutionExpired,
			ExecutionID: snapshot.ExecutionID,
			SkillID:     snapshot.SkillID,
		})
	}
	return expired
}
