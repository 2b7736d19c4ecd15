package engine

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/template"
	"github.com/skilletai/skillet/internal/tools"
)

// StepExecutor runs one kind of step. Executors are pure with respect to
// the snapshot store; only the orchestrator persists state.
type StepExecutor interface {
	// Supports reports whether the executor handles the step's type.
	Supports(step *ast.Step) bool

	// Execute runs the step to a result. Failures are reported on the
	// result, never by panicking.
	Execute(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) *execcontext.StepResult
}

// failStep builds a failed result carrying the error code and message.
func failStep(step *ast.Step, start time.Time, code execcontext.ErrorCode, format string, args ...interface{}) *execcontext.StepResult {
	return &execcontext.StepResult{
		StepName:   step.Name,
		Status:     execcontext.StepStatusFailed,
		VarName:    step.VarName,
		Error:      fmt.Sprintf(format, args...),
		ErrorCode:  code,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// succeedStep builds a successful result with the step's output.
func succeedStep(step *ast.Step, start time.Time, output interface{}) *execcontext.StepResult {
	return &execcontext.StepResult{
		StepName:   step.Name,
		Status:     execcontext.StepStatusSuccess,
		VarName:    step.VarName,
		Output:     output,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// toolExecutor dispatches tool steps to the tool registry.
type toolExecutor struct {
	registry *tools.Registry
}

func (e *toolExecutor) Supports(step *ast.Step) bool { return step.Type == ast.StepTool }

func (e *toolExecutor) Execute(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) *execcontext.StepResult {
	start := time.Now()

	tool, ok := e.registry.Get(step.Tool)
	if !ok {
		return failStep(step, start, execcontext.ErrToolNotFound, "tool %q is not registered", step.Tool)
	}

	rendered, err := template.RenderInputs(step.Inputs, execCtx.BuildVariableScope())
	if err != nil {
		return failStep(step, start, execcontext.ErrTemplateRender, "rendering tool inputs: %v", err)
	}

	validation := tool.ValidateInput(rendered)
	if !validation.Valid {
		return failStep(step, start, execcontext.ErrToolExecution, "invalid input for tool %q: %s", step.Tool, validation.Error())
	}

	output := tools.NewOutputContext()
	if err := runTool(runCtx, tool, validation.Processed, output); err != nil {
		return failStep(step, start, execcontext.ErrToolExecution, "tool %q failed: %v", step.Tool, err)
	}

	values := output.Values()
	if step.OutputSchema != nil {
		outputValidation := ValidateToolOutputs(step.OutputSchema, values)
		if !outputValidation.Valid {
			return failStep(step, start, execcontext.ErrToolExecution,
				"tool %q output violates the declared schema: %s", step.Tool, outputValidation.Error())
		}
		values = outputValidation.ProcessedInputs
	}

	return succeedStep(step, start, values)
}

// runTool isolates the tool call so a panicking tool fails its step
// instead of the process.
func runTool(runCtx execcontext.RunContext, tool tools.Tool, input map[string]interface{}, output *tools.OutputContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Str("tool", tool.Name()).
				Str("stack", string(stack)).
				Msgf("Tool panicked: %v", r)
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	return tool.Execute(runCtx.Context, input, output)
}

// templateExecutor renders template steps against the variable scope.
type templateExecutor struct{}

func (e *templateExecutor) Supports(step *ast.Step) bool { return step.Type == ast.StepTemplate }

func (e *templateExecutor) Execute(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) *execcontext.StepResult {
	start := time.Now()

	rendered, err := template.Render(step.Template, execCtx.BuildVariableScope())
	if err != nil {
		return failStep(step, start, execcontext.ErrTemplateRender, "%v", err)
	}

	return succeedStep(step, start, rendered)
}

// promptExecutor renders the prompt body and hands it to a model adapter.
type promptExecutor struct {
	registry *provider.Registry
}

func (e *promptExecutor) Supports(step *ast.Step) bool { return step.Type == ast.StepPrompt }

func (e *promptExecutor) Execute(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) *execcontext.StepResult {
	start := time.Now()
	scope := execCtx.BuildVariableScope()

	prompt, err := template.Render(step.Prompt, scope)
	if err != nil {
		return failStep(step, start, execcontext.ErrTemplateRender, "%v", err)
	}

	req := &provider.Request{Prompt: prompt}
	adapterName := ""
	if step.Options != nil {
		adapterName = step.Options.Provider
		req.Model = step.Options.Model
		req.Temperature = step.Options.Temperature
		req.MaxTokens = step.Options.MaxTokens
		req.TopP = step.Options.TopP

		if step.Options.System != "" {
			system, err := template.Render(step.Options.System, scope)
			if err != nil {
				return failStep(step, start, execcontext.ErrTemplateRender, "rendering system prompt: %v", err)
			}
			req.System = system
		}
	}

	adapter, err := e.resolveAdapter(adapterName)
	if err != nil {
		return failStep(step, start, execcontext.ErrLLMInvocation, "%v", err)
	}
	if !adapter.Available() {
		return failStep(step, start, execcontext.ErrLLMInvocation, "provider %s is not available", adapter.Name())
	}

	response, err := adapter.Invoke(runCtx.Context, req)
	if err != nil {
		return failStep(step, start, execcontext.ErrLLMInvocation, "provider %s: %v", adapter.Name(), err)
	}

	return succeedStep(step, start, response)
}

func (e *promptExecutor) resolveAdapter(name string) (provider.Adapter, error) {
	if name != "" {
		return e.registry.Find(name)
	}
	return e.registry.GetDefault()
}

// awaitExecutor pauses the execution. It renders the message and reports
// what input is needed; persisting the snapshot is the orchestrator's job.
type awaitExecutor struct{}

func (e *awaitExecutor) Supports(step *ast.Step) bool { return step.Type == ast.StepAwait }

func (e *awaitExecutor) Execute(runCtx execcontext.RunContext, step *ast.Step, execCtx *execcontext.ExecutionContext) *execcontext.StepResult {
	start := time.Now()

	message, err := template.Render(step.Message, execCtx.BuildVariableScope())
	if err != nil {
		return failStep(step, start, execcontext.ErrTemplateRender, "rendering await message: %v", err)
	}

	return &execcontext.StepResult{
		StepName: step.Name,
		Status:   execcontext.StepStatusAwaiting,
		VarName:  step.VarName,
		Output: &execcontext.AwaitRequest{
			StepName:    step.Name,
			Message:     message,
			InputSchema: step.AwaitInputs,
		},
		DurationMs: time.Since(start).Milliseconds(),
	}
}
