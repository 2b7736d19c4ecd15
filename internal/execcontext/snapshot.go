package execcontext

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/skilletai/skillet/internal/ast"
)

// SnapshotStatus is the lifecycle state of a persisted execution.
type SnapshotStatus string

const (
	SnapshotActive    SnapshotStatus = "active"
	SnapshotResumed   SnapshotStatus = "resumed"
	SnapshotExpired   SnapshotStatus = "expired"
	SnapshotCancelled SnapshotStatus = "cancelled"
)

// CanTransition reports whether the status change is allowed. expired and
// cancelled are terminal; resumed may step back to active when the resume
// input fails validation, so the caller can retry.
func (s SnapshotStatus) CanTransition(next SnapshotStatus) bool {
	switch s {
	case SnapshotActive:
		switch next {
		case SnapshotResumed, SnapshotExpired, SnapshotCancelled:
			return true
		}
	case SnapshotResumed:
		return next == SnapshotActive
	}
	return false
}

// AwaitRequest describes what a paused execution is waiting for. The
// schema travels with the snapshot so the collected values can be
// validated on resume without re-reading the skill document.
type AwaitRequest struct {
	StepName    string                    `json:"stepName"`
	Message     string                    `json:"message"`
	InputSchema map[string]*ast.FieldSpec `json:"inputSchema,omitempty"`
}

// ContextState is the serializable projection of an ExecutionContext.
type ContextState struct {
	Input       map[string]interface{} `json:"input"`
	StepResults []*StepResult          `json:"stepResults"`
	AwaitInputs []AwaitInput           `json:"awaitInputs,omitempty"`
}

// Snapshot freezes a paused execution so it can be resumed later,
// possibly by a different process.
type Snapshot struct {
	ExecutionID      string         `json:"executionId"`
	SkillID          string         `json:"skillId"`
	SkillVersion     string         `json:"skillVersion"`
	CurrentStepIndex int            `json:"currentStepIndex"`
	AwaitRequest     *AwaitRequest  `json:"awaitRequest,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	Status           SnapshotStatus `json:"status"`
	Context          *ContextState  `json:"context"`
}

// Clone returns a deep copy made through the JSON codec, which is also
// the representation stores persist.
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SnapshotState captures the context's current state for persistence.
func (ec *ExecutionContext) SnapshotState() *ContextState {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	state := &ContextState{
		Input:       make(map[string]interface{}, len(ec.input)),
		StepResults: make([]*StepResult, len(ec.results)),
		AwaitInputs: make([]AwaitInput, len(ec.awaitInputs)),
	}
	for k, v := range ec.input {
		state.Input[k] = v
	}
	for i, r := range ec.results {
		copied := *r
		state.StepResults[i] = &copied
	}
	copy(state.AwaitInputs, ec.awaitInputs)
	return state
}

// RestoreState rebuilds an ExecutionContext from persisted state. The
// execution id is carried over so resumed runs keep their identity.
func RestoreState(runCtx RunContext, executionID string, state *ContextState) *ExecutionContext {
	logger := zerolog.Ctx(runCtx.Context).With().
		Str("execution_id", executionID).
		Logger()

	ec := &ExecutionContext{
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Context:     runCtx,
		Logger:      logger,
		input:       make(map[string]interface{}),
	}
	if state == nil {
		return ec
	}

	for k, v := range state.Input {
		ec.input[k] = v
	}
	ec.results = append(ec.results, state.StepResults...)
	ec.awaitInputs = append(ec.awaitInputs, state.AwaitInputs...)
	return ec
}
