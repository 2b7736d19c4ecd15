package execcontext

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skilletai/skillet/internal/expression"
)

// StepStatus represents the outcome of a single step.
type StepStatus string

const (
	StepStatusSuccess  StepStatus = "success"
	StepStatusFailed   StepStatus = "failed"
	StepStatusSkipped  StepStatus = "skipped"
	StepStatusAwaiting StepStatus = "awaiting"
)

// StepResult records what happened when a step ran.
type StepResult struct {
	StepName   string      `json:"stepName"`
	Status     StepStatus  `json:"status"`
	Output     interface{} `json:"output,omitempty"`
	VarName    string      `json:"varName,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorCode  ErrorCode   `json:"errorCode,omitempty"`
	DurationMs int64       `json:"durationMs"`
}

// BindKey returns the name the result's output is published under: the
// declared varName when present, the step name otherwise.
func (r *StepResult) BindKey() string {
	if r.VarName != "" {
		return r.VarName
	}
	return r.StepName
}

// AwaitInput holds the validated values collected for one await step.
type AwaitInput struct {
	Step   string                 `json:"step"`
	Values map[string]interface{} `json:"values"`
}

// ExecutionContext carries all mutable state for a single skill
// execution. The input map is fixed at creation; step results and await
// inputs only ever grow.
type ExecutionContext struct {
	ExecutionID string
	StartTime   time.Time

	Context RunContext
	Logger  zerolog.Logger

	input       map[string]interface{}
	results     []*StepResult
	awaitInputs []AwaitInput

	mu sync.RWMutex
}

// NewExecutionContext creates a fresh execution context with a generated
// execution id.
func NewExecutionContext(runCtx RunContext, input map[string]interface{}) *ExecutionContext {
	return NewExecutionContextWithID(runCtx, input, "exec-"+uuid.NewString())
}

// NewExecutionContextWithID creates a fresh execution context under a
// caller-chosen execution id. Surfaces that track executions before they
// start, such as the HTTP server, preassign the id.
func NewExecutionContextWithID(runCtx RunContext, input map[string]interface{}, executionID string) *ExecutionContext {
	logger := zerolog.Ctx(runCtx.Context).With().
		Str("execution_id", executionID).
		Logger()

	copied := make(map[string]interface{}, len(input))
	for k, v := range input {
		copied[k] = v
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Context:     runCtx,
		Logger:      logger,
		input:       copied,
	}
}

func (ec *ExecutionContext) Write(p []byte) (n int, err error) {
	return ec.Context.Write(p)
}

// GetInput returns a single input value.
func (ec *ExecutionContext) GetInput(key string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	value, exists := ec.input[key]
	return value, exists
}

// Input returns a copy of the input map.
func (ec *ExecutionContext) Input() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make(map[string]interface{}, len(ec.input))
	for k, v := range ec.input {
		out[k] = v
	}
	return out
}

// BindStepResult records the result for a step. Recording the same step
// name again replaces the earlier entry in place, so a re-run step does
// not grow the result list.
func (ec *ExecutionContext) BindStepResult(result *StepResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	for i, existing := range ec.results {
		if existing.StepName == result.StepName {
			ec.results[i] = result
			ec.logResult(result)
			return
		}
	}

	ec.results = append(ec.results, result)
	ec.logResult(result)
}

func (ec *ExecutionContext) logResult(result *StepResult) {
	ec.Logger.Debug().
		Str("step", result.StepName).
		Str("status", string(result.Status)).
		Int64("duration_ms", result.DurationMs).
		Msg("Step result bound")
}

// GetStepResult returns the recorded result for a step, if any.
func (ec *ExecutionContext) GetStepResult(stepName string) (*StepResult, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	for _, r := range ec.results {
		if r.StepName == stepName {
			return r, true
		}
	}
	return nil, false
}

// StepResults returns the recorded results in execution order.
func (ec *ExecutionContext) StepResults() []*StepResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make([]*StepResult, len(ec.results))
	copy(out, ec.results)
	return out
}

// GetByVarName returns the most recent successful output published under
// the given name. Later bindings win over earlier ones.
func (ec *ExecutionContext) GetByVarName(name string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	for i := len(ec.results) - 1; i >= 0; i-- {
		r := ec.results[i]
		if r.Status == StepStatusSuccess && r.BindKey() == name {
			return r.Output, true
		}
	}
	return nil, false
}

// AddAwaitInput records the validated values collected for an await step.
// Entries are keyed by step name and keep their insertion position; a
// second write for the same step replaces its values in place.
func (ec *ExecutionContext) AddAwaitInput(step string, values map[string]interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	for i := range ec.awaitInputs {
		if ec.awaitInputs[i].Step == step {
			ec.awaitInputs[i].Values = values
			return
		}
	}
	ec.awaitInputs = append(ec.awaitInputs, AwaitInput{Step: step, Values: values})
}

// AwaitInputs returns the collected await inputs in insertion order.
func (ec *ExecutionContext) AwaitInputs() []AwaitInput {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	out := make([]AwaitInput, len(ec.awaitInputs))
	copy(out, ec.awaitInputs)
	return out
}

// BuildVariableScope flattens the execution state into the map consulted
// by template rendering: input values first, then successful step outputs
// under their bind keys, then every await input map in insertion order.
// Later entries shadow earlier ones.
func (ec *ExecutionContext) BuildVariableScope() expression.Scope {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	scope := make(expression.Scope, len(ec.input)+len(ec.results))
	for k, v := range ec.input {
		scope[k] = v
	}
	for _, r := range ec.results {
		if r.Status == StepStatusSuccess {
			scope[r.BindKey()] = r.Output
		}
	}
	for _, ai := range ec.awaitInputs {
		for k, v := range ai.Values {
			scope[k] = v
		}
	}
	return scope
}

// BuildConditionScope resolves names the way `when` lookups do: a step
// output wins over a skill input, which wins over await inputs; among
// await inputs the earliest write wins.
func (ec *ExecutionContext) BuildConditionScope() expression.Scope {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	scope := make(expression.Scope, len(ec.input)+len(ec.results))
	for i := len(ec.awaitInputs) - 1; i >= 0; i-- {
		for k, v := range ec.awaitInputs[i].Values {
			scope[k] = v
		}
	}
	for k, v := range ec.input {
		scope[k] = v
	}
	for _, r := range ec.results {
		if r.Status == StepStatusSuccess {
			scope[r.BindKey()] = r.Output
		}
	}
	return scope
}

// IsCancelled returns true if the surrounding context has been cancelled.
func (ec *ExecutionContext) IsCancelled() bool {
	select {
	case <-ec.Context.Context.Done():
		return true
	default:
		return false
	}
}

// RunContext bundles the cancellation context with the writers command
// surfaces hand to executions.
type RunContext struct {
	Context context.Context
	StdOut  io.Writer
	StdErr  io.Writer
}

func (rc RunContext) Write(p []byte) (n int, err error) {
	return rc.StdOut.Write(p)
}

func (rc RunContext) Printf(format string, v ...any) {
	fmt.Fprintf(rc.StdOut, format, v...)
}
