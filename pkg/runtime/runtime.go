// Package runtime provides a public API for executing skill documents
// programmatically. This package allows third-party applications to embed
// skill execution directly into their codebase without going through the
// skillet CLI.
//
// The main functionality includes:
//   - Running skills from .skill.md documents
//   - Resuming executions that paused at an await step
//   - Configuring execution through functional options
//   - Monitoring execution progress through event listeners
//
// Example usage:
//
//	inputs := map[string]interface{}{
//		"name": "ada",
//	}
//
//	// Run a skill to completion
//	outputs, err := runtime.RunSkill("greet.skill.md", inputs)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Run a skill that pauses for input
//	outputs, err = runtime.RunSkill("approval.skill.md", inputs,
//		runtime.WithStoreDir("./executions"))
//	var awaiting *runtime.AwaitingError
//	if errors.As(err, &awaiting) {
//		// collect the requested values, then:
//		outputs, err = runtime.ResumeSkill("approval.skill.md", awaiting.ExecutionID,
//			map[string]interface{}{"approved": true},
//			runtime.WithStoreDir("./executions"))
//	}
package runtime

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/store"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/internal/tools/builtin"
	"github.com/skilletai/skillet/pkg/events"
)

// AwaitingError is returned when an execution pauses at an await step
// instead of completing. The execution is persisted under ExecutionID and
// can be continued with ResumeSkill once the requested input is available.
type AwaitingError struct {
	// ExecutionID identifies the paused execution for ResumeSkill.
	ExecutionID string
	// Step is the name of the await step the execution paused at.
	Step string
	// Message is the prompt the await step declared, if any.
	Message string
	// Fields lists the names of the requested input values.
	Fields []string
}

// Error implements the error interface.
func (e *AwaitingError) Error() string {
	return fmt.Sprintf("execution %s is awaiting input at step %q", e.ExecutionID, e.Step)
}

// config collects everything the functional options may adjust before a
// runner is built.
type config struct {
	ctx      context.Context
	stdout   io.Writer
	stderr   io.Writer
	storeDir string
	listener events.Listener
}

// Option represents a functional option for configuring skill execution.
//
// Options follow the functional options pattern, allowing flexible and
// extensible configuration of the execution engine.
type Option func(*config)

// WithProgressListener creates an Option that configures a progress
// listener for monitoring execution events in real time.
//
// The provided listener receives execution events throughout the skill
// lifecycle: execution start and completion, step progress, awaits and
// failures. The listener's StartListening is invoked with the event
// channel before the first step runs and StopListening after the
// execution returns.
//
// Example:
//
//	type MyListener struct{}
//
//	func (l *MyListener) StartListening(ch <-chan events.ExecutionEvent) {
//		go func() {
//			for event := range ch {
//				fmt.Printf("%s %s\n", event.Type, event.StepName)
//			}
//		}()
//	}
//
//	func (l *MyListener) StopListening() {}
//
//	outputs, err := runtime.RunSkill("greet.skill.md", inputs,
//		runtime.WithProgressListener(&MyListener{}))
func WithProgressListener(listener events.Listener) Option {
	return func(c *config) {
		c.listener = listener
	}
}

// WithStoreDir creates an Option that persists paused executions under the
// given directory. Without it executions pause in process memory only, so
// an await can only be resumed within the same process.
func WithStoreDir(dir string) Option {
	return func(c *config) {
		c.storeDir = dir
	}
}

// WithContext creates an Option that runs the execution under the given
// context. Cancelling the context stops the execution at the next step
// boundary.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

// WithOutput creates an Option that directs the stdout and stderr streams
// tool steps may write to. The default discards both.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *config) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// RunSkill executes a skill document from the first step with the provided
// inputs.
//
// This is the primary entry point for executing skills programmatically.
// The function parses and validates the document, builds an engine with
// the builtin tools and any model providers configured through the
// environment, and executes the steps in order.
//
// Returns the skill outputs on completion. When the skill pauses at an
// await step the error is an *AwaitingError carrying the execution id to
// pass to ResumeSkill.
func RunSkill(skillFile string, inputs map[string]interface{}, options ...Option) (map[string]interface{}, error) {
	return run(skillFile, options, func(runCtx execcontext.RunContext, eng *engine.Engine, skill *ast.Skill) (*engine.SkillResult, error) {
		validation := engine.ValidateSkillInputs(skill, inputs)
		if !validation.Valid {
			return nil, fmt.Errorf("invalid inputs: %s", validation.Error())
		}
		return eng.Execute(runCtx, skill, validation.ProcessedInputs), nil
	})
}

// ResumeSkill continues an execution that paused at an await step.
//
// The skill document must be the same one the execution started from, and
// userInput must satisfy the await step's declared input schema; values
// are validated and coerced the same way skill inputs are. A validation
// failure leaves the execution paused so the call can be retried.
func ResumeSkill(skillFile, executionID string, userInput map[string]interface{}, options ...Option) (map[string]interface{}, error) {
	return run(skillFile, options, func(runCtx execcontext.RunContext, eng *engine.Engine, skill *ast.Skill) (*engine.SkillResult, error) {
		return eng.Resume(runCtx, skill, executionID, userInput), nil
	})
}

// run parses the document, assembles the engine per the options and hands
// control to the entry point.
func run(skillFile string, options []Option, entry func(execcontext.RunContext, *engine.Engine, *ast.Skill) (*engine.SkillResult, error)) (map[string]interface{}, error) {
	cfg := &config{
		ctx:    context.Background(),
		stdout: io.Discard,
		stderr: io.Discard,
	}
	for _, option := range options {
		option(cfg)
	}

	skill, err := parser.NewDocParser().ParseFile(skillFile)
	if err != nil {
		return nil, err
	}

	toolRegistry := tools.NewRegistry()
	if err := builtin.Register(toolRegistry); err != nil {
		return nil, fmt.Errorf("registering builtin tools: %w", err)
	}

	providers := provider.NewRegistry()
	provider.RegisterFromEnv(providers)

	engineOpts := []engine.Option{
		engine.WithToolRegistry(toolRegistry),
		engine.WithProviderRegistry(providers),
	}

	if cfg.storeDir != "" {
		fileStore, err := store.NewFileStore(cfg.storeDir)
		if err != nil {
			return nil, fmt.Errorf("opening execution store: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithStore(fileStore))
	}

	var eventCh chan events.ExecutionEvent
	if cfg.listener != nil {
		eventCh = make(chan events.ExecutionEvent, 64)
		engineOpts = append(engineOpts, engine.WithEvents(eventCh))
		cfg.listener.StartListening(eventCh)
		defer func() {
			close(eventCh)
			cfg.listener.StopListening()
		}()
	}

	eng := engine.NewEngine(engineOpts...)

	runCtx := execcontext.RunContext{
		Context: cfg.ctx,
		StdOut:  cfg.stdout,
		StdErr:  cfg.stderr,
	}

	result, err := entry(runCtx, eng, skill)
	if err != nil {
		return nil, err
	}

	if result.Awaiting {
		awaiting := &AwaitingError{
			ExecutionID: result.ExecutionID,
		}
		if result.AwaitRequest != nil {
			awaiting.Step = result.AwaitRequest.StepName
			awaiting.Message = result.AwaitRequest.Message
			for name := range result.AwaitRequest.InputSchema {
				awaiting.Fields = append(awaiting.Fields, name)
			}
			sort.Strings(awaiting.Fields)
		}
		return nil, awaiting
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return result.Output, nil
}
