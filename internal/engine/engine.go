// Package engine orchestrates skill executions: it walks the step list,
// gates steps on their when conditions, dispatches to step executors, and
// persists a snapshot whenever an execution pauses at an await step.
package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/condition"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/expression"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/store"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/pkg/events"
)

// DefaultAwaitTimeout is how long a paused execution may wait for input
// before the sweeper retires it.
const DefaultAwaitTimeout = 24 * time.Hour

// SkillResult is the envelope every engine entry point returns. Exactly one
// of Success and Awaiting is true on a non-failed result.
type SkillResult struct {
	Success         bool                      `json:"success"`
	Awaiting        bool                      `json:"awaiting"`
	ExecutionID     string                    `json:"executionId,omitempty"`
	Output          map[string]interface{}    `json:"output,omitempty"`
	AwaitRequest    *execcontext.AwaitRequest `json:"awaitRequest,omitempty"`
	Error           *execcontext.ExecError    `json:"error,omitempty"`
	StepResults     []*execcontext.StepResult `json:"stepResults"`
	TotalDurationMs int64                     `json:"totalDurationMs"`
}

// Engine drives skill executions. One engine serves any number of
// concurrent executions; each execution is strictly serial.
type Engine struct {
	store        store.ExecutionStore
	toolRegistry *tools.Registry
	providers    *provider.Registry
	executors    []StepExecutor
	events       chan<- events.ExecutionEvent
	awaitTimeout time.Duration
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the snapshot store. The default is an in-memory store.
func WithStore(s store.ExecutionStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithToolRegistry sets the registry tool steps resolve against.
func WithToolRegistry(r *tools.Registry) Option {
	return func(e *Engine) { e.toolRegistry = r }
}

// WithProviderRegistry sets the registry prompt steps resolve against.
func WithProviderRegistry(r *provider.Registry) Option {
	return func(e *Engine) { e.providers = r }
}

// WithEvents sets the channel execution events are published to. Sends
// block, so the caller must keep draining the channel while executions run.
func WithEvents(ch chan<- events.ExecutionEvent) Option {
	return func(e *Engine) { e.events = ch }
}

// WithAwaitTimeout sets how long paused executions live before the sweeper
// expires them.
func WithAwaitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.awaitTimeout = d }
}

// WithClock overrides the time source used for snapshot timestamps and
// expiry cutoffs. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the given options applied over the
// defaults: in-memory store, empty registries, 24h await timeout.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		store:        store.NewMemoryStore(),
		toolRegistry: tools.NewRegistry(),
		providers:    provider.NewRegistry(),
		awaitTimeout: DefaultAwaitTimeout,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.executors = []StepExecutor{
		&toolExecutor{registry: e.toolRegistry},
		&templateExecutor{},
		&promptExecutor{registry: e.providers},
		&awaitExecutor{},
	}
	return e
}

// Store returns the snapshot store the engine persists to.
func (e *Engine) Store() store.ExecutionStore { return e.store }

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *tools.Registry { return e.toolRegistry }

// Providers returns the engine's model adapter registry.
func (e *Engine) Providers() *provider.Registry { return e.providers }

// Execute runs a skill from the first step. It returns when the skill
// completes, fails, or pauses at an await step.
func (e *Engine) Execute(runCtx execcontext.RunContext, skill *ast.Skill, input map[string]interface{}) *SkillResult {
	return e.ExecuteWithID(runCtx, skill, input, "")
}

// ExecuteWithID runs a skill under a caller-chosen execution id, so callers
// that track executions can register the id before the first step runs. An
// empty id gets a generated one.
func (e *Engine) ExecuteWithID(runCtx execcontext.RunContext, skill *ast.Skill, input map[string]interface{}, executionID string) *SkillResult {
	start := time.Now()

	input = ApplyInputDefaults(skill.Inputs, input)

	var execCtx *execcontext.ExecutionContext
	if executionID == "" {
		execCtx = execcontext.NewExecutionContext(runCtx, input)
	} else {
		execCtx = execcontext.NewExecutionContextWithID(runCtx, input, executionID)
	}

	execCtx.Logger.Info().
		Str("skill_id", skill.ID).
		Str("skill_version", skill.Version).
		Int("steps", len(skill.Steps)).
		Msg("Starting skill execution")

	e.emit(events.ExecutionEvent{
		Type:        events.EventExecutionStarted,
		ExecutionID: execCtx.ExecutionID,
		SkillID:     skill.ID,
	})

	return e.runFrom(runCtx, skill, execCtx, 0, start)
}

// Resume continues a paused execution with the user's input. The snapshot
// moves to resumed exactly once; a failed input validation moves it back to
// active so the caller can retry.
func (e *Engine) Resume(runCtx execcontext.RunContext, skill *ast.Skill, executionID string, userInput map[string]interface{}) *SkillResult {
	start := time.Now()

	snapshot, err := e.store.FindByID(executionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bareFailure(executionID, start, execcontext.NewExecError(
				execcontext.ErrExecutionNotFound, "", "no snapshot for execution %q", executionID))
		}
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrStateStore, "", "loading snapshot: %v", err))
	}

	if snapshot.SkillID != skill.ID {
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrStateStore, "", "snapshot belongs to skill %q, not %q", snapshot.SkillID, skill.ID))
	}
	// a snapshot's step index is only meaningful against the step list it
	// was taken from, so the version must match as well
	if snapshot.SkillVersion != skill.Version {
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrStateStore, "", "snapshot was taken at version %s of skill %q, not %s",
			snapshot.SkillVersion, skill.ID, skill.Version))
	}
	if snapshot.CurrentStepIndex < 0 || snapshot.CurrentStepIndex >= len(skill.Steps) {
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrStateStore, "", "snapshot step index %d is out of range", snapshot.CurrentStepIndex))
	}

	swapped, err := e.store.CompareAndSetStatus(executionID, execcontext.SnapshotActive, execcontext.SnapshotResumed)
	if err != nil {
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrStateStore, "", "updating snapshot status: %v", err))
	}
	if !swapped {
		status := snapshot.Status
		if current, ferr := e.store.FindByID(executionID); ferr == nil {
			status = current.Status
		}
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrExecutionCompleted, "", "execution %s is %s and cannot be resumed", executionID, status))
	}

	awaitStep := skill.Steps[snapshot.CurrentStepIndex]
	execCtx := execcontext.RestoreState(runCtx, executionID, snapshot.Context)

	validation := ValidateFields(awaitRequestSchema(snapshot), userInput)
	if !validation.Valid {
		// return the snapshot to active so the caller can retry
		if _, rerr := e.store.CompareAndSetStatus(executionID, execcontext.SnapshotResumed, execcontext.SnapshotActive); rerr != nil {
			execCtx.Logger.Warn().Err(rerr).Msg("Could not roll back snapshot status after failed await validation")
		}
		return bareFailure(executionID, start, execcontext.NewExecError(
			execcontext.ErrAwaitValidation, awaitStep.Name, "%s", validation.Error()))
	}

	validated := validation.ProcessedInputs
	execCtx.BindStepResult(&execcontext.StepResult{
		StepName: awaitStep.Name,
		Status:   execcontext.StepStatusSuccess,
		Output:   validated,
		VarName:  awaitStep.VarName,
	})
	execCtx.AddAwaitInput(awaitStep.Name, validated)

	execCtx.Logger.Info().
		Str("skill_id", skill.ID).
		Str("step", awaitStep.Name).
		Msg("Resuming skill execution")

	e.emit(events.ExecutionEvent{
		Type:        events.EventExecutionResumed,
		ExecutionID: executionID,
		SkillID:     skill.ID,
		StepName:    awaitStep.Name,
		StepIndex:   snapshot.CurrentStepIndex,
	})

	return e.runFrom(runCtx, skill, execCtx, snapshot.CurrentStepIndex+1, start)
}

// Cancel moves a paused execution to cancelled. Running executions are
// cancelled through their context instead.
func (e *Engine) Cancel(executionID string) error {
	swapped, err := e.store.CompareAndSetStatus(executionID, execcontext.SnapshotActive, execcontext.SnapshotCancelled)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return execcontext.NewExecError(execcontext.ErrExecutionNotFound, "", "no snapshot for execution %q", executionID)
		}
		return fmt.Errorf("cancelling execution %s: %w", executionID, err)
	}
	if !swapped {
		return execcontext.NewExecError(execcontext.ErrExecutionCompleted, "", "execution %s is not active", executionID)
	}

	e.emit(events.ExecutionEvent{
		Type:        events.EventExecutionCancelled,
		ExecutionID: executionID,
	})
	return nil
}

// runFrom drives the step loop from startIndex to the end of the skill.
func (e *Engine) runFrom(runCtx execcontext.RunContext, skill *ast.Skill, execCtx *execcontext.ExecutionContext, startIndex int, start time.Time) *SkillResult {
	for i := startIndex; i < len(skill.Steps); i++ {
		step := skill.Steps[i]

		// cancellation is observed at step boundaries; a running tool is
		// allowed to complete first
		if execCtx.IsCancelled() {
			return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
				execcontext.ErrExecutionCancelled, step.Name, "execution cancelled before step %q", step.Name))
		}

		if step.When != "" {
			expr, err := condition.Parse(step.When)
			if err != nil {
				result := failStep(step, time.Now(), execcontext.ErrConditionParse, "parsing when condition: %v", err)
				execCtx.BindStepResult(result)
				e.emitStep(events.EventStepFailed, execCtx, skill, step, i, result)
				return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
					result.ErrorCode, step.Name, "%s", result.Error))
			}

			if !condition.Evaluate(expr, execCtx.BuildConditionScope()) {
				result := &execcontext.StepResult{
					StepName: step.Name,
					Status:   execcontext.StepStatusSkipped,
					VarName:  step.VarName,
				}
				execCtx.BindStepResult(result)
				execCtx.Logger.Debug().Str("step", step.Name).Str("when", step.When).Msg("Step skipped")
				e.emitStep(events.EventStepSkipped, execCtx, skill, step, i, result)
				continue
			}
		}

		execCtx.Logger.Debug().Str("step", step.Name).Str("type", string(step.Type)).Msg("Executing step")
		e.emitStep(events.EventStepStarted, execCtx, skill, step, i, nil)

		result := e.dispatch(runCtx, step, execCtx)
		execCtx.BindStepResult(result)

		switch result.Status {
		case execcontext.StepStatusFailed:
			e.emitStep(events.EventStepFailed, execCtx, skill, step, i, result)
			// a cancel lands mid-step as a context error inside the step;
			// the cancellation, not the induced error, is the outcome
			if execCtx.IsCancelled() {
				return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
					execcontext.ErrExecutionCancelled, step.Name, "execution cancelled during step %q", step.Name))
			}
			return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
				result.ErrorCode, step.Name, "%s", result.Error))

		case execcontext.StepStatusAwaiting:
			awaitReq, ok := result.Output.(*execcontext.AwaitRequest)
			if !ok {
				return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
					execcontext.ErrStateStore, step.Name, "await step produced no await request"))
			}

			snapshot := &execcontext.Snapshot{
				ExecutionID:      execCtx.ExecutionID,
				SkillID:          skill.ID,
				SkillVersion:     skill.Version,
				CurrentStepIndex: i,
				AwaitRequest:     awaitReq,
				CreatedAt:        e.now(),
				Status:           execcontext.SnapshotActive,
				Context:          execCtx.SnapshotState(),
			}
			if err := e.store.Save(snapshot); err != nil {
				return e.finishFailure(execCtx, skill, start, execcontext.NewExecError(
					execcontext.ErrStateStore, step.Name, "saving snapshot: %v", err))
			}

			execCtx.Logger.Info().Str("step", step.Name).Msg("Execution awaiting user input")
			e.emit(events.ExecutionEvent{
				Type:        events.EventExecutionAwaiting,
				ExecutionID: execCtx.ExecutionID,
				SkillID:     skill.ID,
				StepName:    step.Name,
				StepIndex:   i,
				Text:        awaitReq.Message,
			})

			return &SkillResult{
				Awaiting:        true,
				ExecutionID:     execCtx.ExecutionID,
				AwaitRequest:    awaitReq,
				StepResults:     execCtx.StepResults(),
				TotalDurationMs: time.Since(start).Milliseconds(),
			}

		default:
			e.emitStep(events.EventStepCompleted, execCtx, skill, step, i, result)
		}
	}

	output, execErr := e.projectOutput(skill, execCtx)
	if execErr != nil {
		return e.finishFailure(execCtx, skill, start, execErr)
	}

	execCtx.Logger.Info().
		Str("skill_id", skill.ID).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Skill execution completed")

	e.emit(events.ExecutionEvent{
		Type:        events.EventExecutionCompleted,
		ExecutionID: execCtx.ExecutionID,
		SkillID:     skill.ID,
		Duration:    time.Since(start),
	})

	return &SkillResult{
		Success:         true,
		ExecutionID:     execCtx.ExecutionID,
		Output:          output,
		StepResults:     execCtx.StepResults(),
		TotalDurationMs: time.Since(start).Milliseconds(),
	}
}

// dispatch finds the executor for a step and runs it behind a recover
// guard, so a bug in an executor fails the step instead of the process.
func (e *Engine) dispatch(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) (result *execcontext.StepResult) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Str("step", step.Name).
				Str("stack", string(stack)).
				Msgf("Step execution panicked: %v", r)
			result = failStep(step, started, panicFailureCode(step.Type), "step execution panicked: %v", r)
		}
	}()

	for _, executor := range e.executors {
		if executor.Supports(step) {
			return executor.Execute(runCtx, step, execCtx)
		}
	}

	return failStep(step, started, execcontext.ErrSkillParse, "no executor for step type %q", step.Type)
}

// panicFailureCode maps a step type to the code its failures carry.
func panicFailureCode(t ast.StepType) execcontext.ErrorCode {
	switch t {
	case ast.StepTool:
		return execcontext.ErrToolExecution
	case ast.StepPrompt:
		return execcontext.ErrLLMInvocation
	default:
		return execcontext.ErrTemplateRender
	}
}

// projectOutput validates the final scope against the skill's output
// contract and projects the declared fields. Without a contract the output
// is the var-bound value of every successful step; unnamed steps and raw
// inputs stay out of it.
func (e *Engine) projectOutput(skill *ast.Skill, execCtx *execcontext.ExecutionContext) (map[string]interface{}, *execcontext.ExecError) {
	contract := skill.Output

	if contract == nil {
		output := make(map[string]interface{})
		for _, result := range execCtx.StepResults() {
			if result.Status == execcontext.StepStatusSuccess && result.VarName != "" {
				output[result.VarName] = result.Output
			}
		}
		return output, nil
	}

	scope := execCtx.BuildVariableScope()
	candidate := make(map[string]interface{})
	for name := range contract.Fields {
		if value, ok := scope[name]; ok {
			candidate[name] = value
		}
	}

	validation := ValidateFields(contract.Fields, candidate)
	if !validation.Valid {
		return nil, execcontext.NewExecError(
			execcontext.ErrOutputValidation, "", "output contract violated: %s", validation.Error())
	}

	projected := validation.ProcessedInputs
	if contract.Format == ast.OutputFormatText {
		rendered := make(map[string]interface{}, len(projected))
		for name, value := range projected {
			rendered[name] = expression.FromGo(value).Render()
		}
		return rendered, nil
	}
	return projected, nil
}

// finishFailure compiles the failure envelope and emits the terminal event.
func (e *Engine) finishFailure(execCtx *execcontext.ExecutionContext, skill *ast.Skill, start time.Time, execErr *execcontext.ExecError) *SkillResult {
	execCtx.Logger.Error().
		Str("code", string(execErr.Code)).
		Str("step", execErr.StepName).
		Msg(execErr.Message)

	eventType := events.EventExecutionFailed
	if execErr.Code == execcontext.ErrExecutionCancelled {
		eventType = events.EventExecutionCancelled
	}
	e.emit(events.ExecutionEvent{
		Type:        eventType,
		ExecutionID: execCtx.ExecutionID,
		SkillID:     skill.ID,
		StepName:    execErr.StepName,
		Error:       execErr.Message,
	})

	return &SkillResult{
		ExecutionID:     execCtx.ExecutionID,
		Error:           execErr,
		StepResults:     execCtx.StepResults(),
		TotalDurationMs: time.Since(start).Milliseconds(),
	}
}

// bareFailure is the envelope for failures that happen before an execution
// context exists, such as resume lookups.
func bareFailure(executionID string, start time.Time, execErr *execcontext.ExecError) *SkillResult {
	return &SkillResult{
		ExecutionID:     executionID,
		Error:           execErr,
		TotalDurationMs: time.Since(start).Milliseconds(),
	}
}

// awaitRequestSchema returns the input schema stored with the snapshot, or
// nil when the await step requested nothing.
func awaitRequestSchema(snapshot *execcontext.Snapshot) map[string]*ast.FieldSpec {
	if snapshot.AwaitRequest == nil {
		return nil
	}
	return snapshot.AwaitRequest.InputSchema
}

// emitStep publishes a step-level event.
func (e *Engine) emitStep(eventType events.ExecutionEventType, execCtx *execcontext.ExecutionContext, skill *ast.Skill, step *ast.Step, index int, result *execcontext.StepResult) {
	if e.events == nil {
		return
	}

	event := events.ExecutionEvent{
		Type:        eventType,
		ExecutionID: execCtx.ExecutionID,
		SkillID:     skill.ID,
		StepName:    step.Name,
		StepIndex:   index,
	}
	if result != nil {
		event.Duration = time.Duration(result.DurationMs) * time.Millisecond
		event.Error = result.Error
	}
	e.emit(event)
}

// emit publishes an event to the configured channel. Sends block until the
// consumer drains them, preserving event order.
func (e *Engine) emit(event events.ExecutionEvent) {
	if e.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.events <- event
}
