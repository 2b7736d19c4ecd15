package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/store"
	"github.com/skilletai/skillet/internal/style"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/internal/tools/builtin"
	"github.com/skilletai/skillet/pkg/events"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [skill.skill.md]",
	Short: "Execute a skill",
	Long: `Execute a skill document locally with real-time progress reporting.

This command:
- Parses and validates the skill document
- Initializes the engine with the builtin tools and any model providers
  configured through the environment
- Executes the steps in order, evaluating when conditions
- Pauses at await steps and, on a terminal, collects the requested input
  interactively so the execution can continue in place

Paused executions are persisted under the store directory; a non-interactive
run prints the execution id so it can be picked up later with --resume.

Examples:
  skillet run greet.skill.md                       # Run with default settings
  skillet run greet.skill.md --input name=ada      # Provide input parameters
  skillet run greet.skill.md --input-json '{"n":3}' # JSON-typed inputs
  skillet run greet.skill.md --output json         # JSON output for automation
  skillet run greet.skill.md --resume exec-1234 --input approved=true`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSkill(cmd, args[0])
	},
}

var (
	runInputs    map[string]string
	runInputJSON string
	runStoreDir  string
	runResumeID  string
	runNoInput   bool
	runTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringToStringVarP(&runInputs, "input", "i", map[string]string{}, "input parameters (key=value)")
	runCmd.Flags().StringVar(&runInputJSON, "input-json", "", "input parameters as a JSON object")
	runCmd.Flags().StringVar(&runStoreDir, "store-dir", "", "directory for paused execution snapshots (default $HOME/.skillet/executions)")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "resume a paused execution by id")
	runCmd.Flags().BoolVar(&runNoInput, "no-input", false, "never prompt for await input, print the execution id instead")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall execution timeout")
}

// RunResult is the run command's output envelope.
type RunResult struct {
	SkillFile    string                    `json:"skill_file" yaml:"skill_file"`
	SkillID      string                    `json:"skill_id" yaml:"skill_id"`
	SkillVersion string                    `json:"skill_version" yaml:"skill_version"`
	ExecutionID  string                    `json:"execution_id,omitempty" yaml:"execution_id,omitempty"`
	Status       string                    `json:"status" yaml:"status"`
	DurationMs   int64                     `json:"duration_ms" yaml:"duration_ms"`
	Inputs       map[string]interface{}    `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      map[string]interface{}    `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	StepResults  []*execcontext.StepResult `json:"step_results,omitempty" yaml:"step_results,omitempty"`
	AwaitRequest *execcontext.AwaitRequest `json:"await_request,omitempty" yaml:"await_request,omitempty"`
	Error        string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

func runSkill(cmd *cobra.Command, skillFile string) {
	skill, err := parser.NewDocParser().ParseFile(skillFile)
	if err != nil {
		style.PrintParseError(cmd.ErrOrStderr(), skillFile, err)
		os.Exit(1)
	}

	inputs, err := collectInputs(skill)
	if err != nil {
		style.Error(cmd.ErrOrStderr(), err.Error())
		os.Exit(1)
	}

	// resumes carry await input, which the engine validates against the
	// await schema; only fresh runs are checked against the skill inputs
	if runResumeID == "" {
		validation := engine.ValidateSkillInputs(skill, inputs)
		if !validation.Valid {
			style.Error(cmd.ErrOrStderr(), fmt.Sprintf("Invalid inputs: %s", validation.Error()))
			os.Exit(1)
		}
		inputs = validation.ProcessedInputs
	}

	eng, cleanup, err := newRunEngine(cmd)
	if err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("Failed to initialize engine: %v", err))
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := timeoutContext(ctx)
	defer cancel()

	runCtx := execcontext.RunContext{
		Context: ctx,
		StdOut:  cmd.OutOrStdout(),
		StdErr:  cmd.ErrOrStderr(),
	}

	start := time.Now()

	var result *engine.SkillResult
	if runResumeID != "" {
		result = eng.Resume(runCtx, skill, runResumeID, inputs)
	} else {
		result = eng.Execute(runCtx, skill, inputs)
	}

	// Await steps pause the run. On a terminal we collect the requested
	// input and continue in place; otherwise the snapshot stays on disk.
	for result.Awaiting && interactiveAwait() {
		request := result.AwaitRequest
		values, ok := promptAwait(cmd, request)
		if !ok {
			break
		}

		next := eng.Resume(runCtx, skill, result.ExecutionID, values)
		if next.Error != nil && next.Error.Code == execcontext.ErrAwaitValidation {
			// the snapshot rolled back to active, so the same request
			// can be answered again
			style.Error(cmd.ErrOrStderr(), next.Error.Message)
			next.Awaiting = true
			next.AwaitRequest = request
			next.ExecutionID = result.ExecutionID
		}
		result = next
	}

	report := compileRunResult(skillFile, skill, inputs, result, time.Since(start))

	printResult(cmd.OutOrStdout(), report, func(w io.Writer) {
		printRunText(w, report)
	})

	log.Debug().
		Str("skill", skill.ID).
		Str("status", report.Status).
		Int64("duration_ms", report.DurationMs).
		Msg("run finished")

	if report.Status == "failed" {
		os.Exit(1)
	}
}

// timeoutContext applies the --timeout flag when it is positive.
func timeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if runTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, runTimeout)
}

// collectInputs merges --input-json and --input into one typed map.
// Array and object parameters given as --input strings are decoded as
// JSON; everything else is passed through for the engine's validation to
// coerce against the declared field types.
func collectInputs(skill *ast.Skill) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	if runInputJSON != "" {
		if err := json.Unmarshal([]byte(runInputJSON), &inputs); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}

	for key, raw := range runInputs {
		spec, ok := skill.Inputs[key]
		if ok && (spec.Type == "array" || spec.Type == "object") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				return nil, fmt.Errorf("input %q must be valid JSON for a %s parameter: %w", key, spec.Type, err)
			}
			inputs[key] = decoded
			continue
		}
		inputs[key] = raw
	}

	return inputs, nil
}

// newRunEngine builds the engine the run command drives: a file-backed
// snapshot store so awaits survive the process, the builtin tools and the
// providers configured through the environment. The returned cleanup
// stops the progress tracker.
func newRunEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	storeDir := runStoreDir
	if storeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving home directory: %w", err)
		}
		storeDir = filepath.Join(home, ".skillet", "executions")
	}

	fileStore, err := store.NewFileStore(storeDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening execution store: %w", err)
	}

	toolRegistry := tools.NewRegistry()
	if err := builtin.Register(toolRegistry); err != nil {
		return nil, nil, fmt.Errorf("registering builtin tools: %w", err)
	}

	providers := provider.NewRegistry()
	registered := provider.RegisterFromEnv(providers)
	log.Debug().Strs("providers", registered).Msg("providers registered")

	tracker := newProgressTracker(cmd.ErrOrStderr())
	eng := engine.NewEngine(
		engine.WithStore(fileStore),
		engine.WithToolRegistry(toolRegistry),
		engine.WithProviderRegistry(providers),
		engine.WithEvents(tracker.events),
	)

	tracker.Start()
	return eng, tracker.Stop, nil
}

// interactiveAwait reports whether the run command may prompt on the
// terminal for an await step.
func interactiveAwait() bool {
	if runNoInput || viper.GetBool("quiet") {
		return false
	}
	if viper.GetString("output") != "text" {
		return false
	}
	return isatty.IsTerminal(os.Stdin.Fd()) || os.Getenv("SKILLET_TEST") == "true"
}

func compileRunResult(skillFile string, skill *ast.Skill, inputs map[string]interface{}, result *engine.SkillResult, elapsed time.Duration) *RunResult {
	report := &RunResult{
		SkillFile:    skillFile,
		SkillID:      skill.ID,
		SkillVersion: skill.Version,
		ExecutionID:  result.ExecutionID,
		DurationMs:   elapsed.Milliseconds(),
		Inputs:       inputs,
		Outputs:      result.Output,
		StepResults:  result.StepResults,
		AwaitRequest: result.AwaitRequest,
	}

	switch {
	case result.Awaiting:
		report.Status = "awaiting"
	case result.Success:
		report.Status = "completed"
	default:
		report.Status = "failed"
		if result.Error != nil {
			report.Error = result.Error.Error()
		}
	}
	return report
}

func printRunText(w io.Writer, report *RunResult) {
	switch report.Status {
	case "completed":
		style.Success(w, fmt.Sprintf("%s@%s completed in %dms", report.SkillID, report.SkillVersion, report.DurationMs))
		if len(report.Outputs) > 0 {
			fmt.Fprintln(w)
			style.PrintYAML(w, report.Outputs)
		}
	case "awaiting":
		style.Info(w, "Execution is paused waiting for input")
		if report.AwaitRequest != nil && report.AwaitRequest.Message != "" {
			fmt.Fprintf(w, "  %s\n", report.AwaitRequest.Message)
		}
		fmt.Fprintf(w, "  Resume with: skillet run %s --resume %s --input key=value\n",
			report.SkillFile, report.ExecutionID)
	default:
		style.Error(w, fmt.Sprintf("%s@%s failed: %s", report.SkillID, report.SkillVersion, report.Error))
		for _, step := range report.StepResults {
			if step.Status == execcontext.StepStatusFailed {
				fmt.Fprintf(w, "  step %s: %s\n", step.StepName, step.Error)
			}
		}
	}
}

// progressTracker renders engine events as step progress lines. It owns
// the event channel the engine publishes to; sends block, so the tracker
// drains continuously from the moment Start is called until Stop.
type progressTracker struct {
	events  chan events.ExecutionEvent
	spinner style.Spinner
	writer  io.Writer
	done    chan struct{}
	once    sync.Once
}

func newProgressTracker(w io.Writer) *progressTracker {
	return &progressTracker{
		events:  make(chan events.ExecutionEvent, 64),
		spinner: style.NewSpinner(w),
		writer:  w,
		done:    make(chan struct{}),
	}
}

func (t *progressTracker) Start() {
	go func() {
		defer close(t.done)
		for event := range t.events {
			t.render(event)
		}
	}()
}

func (t *progressTracker) Stop() {
	t.once.Do(func() {
		close(t.events)
		<-t.done
		t.spinner.Stop()
	})
}

func (t *progressTracker) render(event events.ExecutionEvent) {
	if viper.GetBool("quiet") || viper.GetString("output") != "text" {
		return
	}

	switch event.Type {
	case events.EventStepStarted:
		t.spinner.SetSuffix(" " + style.StepRunningStyle.Render(event.StepName))
		t.spinner.Start()
	case events.EventStepCompleted:
		t.spinner.Stop()
		fmt.Fprintf(t.writer, "%s %s %s\n",
			style.SuccessIcon(),
			style.StepNameStyle.Render(event.StepName),
			style.DurationStyle.Render(event.Duration.String()))
	case events.EventStepSkipped:
		t.spinner.Stop()
		fmt.Fprintf(t.writer, "%s %s %s\n",
			style.MutedStyle.Render("-"),
			style.StepNameStyle.Render(event.StepName),
			style.MutedStyle.Render("skipped"))
	case events.EventStepFailed:
		t.spinner.Stop()
		fmt.Fprintf(t.writer, "%s %s %s\n",
			style.ErrorIcon(),
			style.StepNameStyle.Render(event.StepName),
			style.StepFailedStyle.Render(event.Error))
	case events.EventExecutionAwaiting:
		t.spinner.Stop()
	}
}
