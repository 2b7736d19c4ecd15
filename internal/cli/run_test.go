package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/pkg/events"
)

func newTestCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(context.Background())
	return cmd, stdout, stderr
}

func testRunContext(cmd *cobra.Command) execcontext.RunContext {
	return execcontext.RunContext{
		Context: context.Background(),
		StdOut:  cmd.OutOrStdout(),
		StdErr:  cmd.ErrOrStderr(),
	}
}

func TestRunGreetSkill(t *testing.T) {
	t.Setenv("SKILLET_TEST", "true")
	runStoreDir = t.TempDir()
	t.Cleanup(func() { runStoreDir = "" })

	skill, err := parser.NewDocParser().ParseFile(filepath.Join("testdata", "greet.skill.md"))
	require.NoError(t, err)

	cmd, _, _ := newTestCommand()
	eng, cleanup, err := newRunEngine(cmd)
	require.NoError(t, err)
	defer cleanup()

	result := eng.Execute(testRunContext(cmd), skill, map[string]interface{}{"name": "ada"})

	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "hello ada!", result.Output["message"])
}

func TestRunApprovalSkillAwaitsAndResumes(t *testing.T) {
	t.Setenv("SKILLET_TEST", "true")
	runStoreDir = t.TempDir()
	t.Cleanup(func() { runStoreDir = "" })

	skill, err := parser.NewDocParser().ParseFile(filepath.Join("testdata", "approval.skill.md"))
	require.NoError(t, err)

	cmd, _, _ := newTestCommand()
	eng, cleanup, err := newRunEngine(cmd)
	require.NoError(t, err)
	defer cleanup()

	runCtx := testRunContext(cmd)
	result := eng.Execute(runCtx, skill, map[string]interface{}{"name": "ada"})

	require.True(t, result.Awaiting)
	require.NotNil(t, result.AwaitRequest)
	assert.Equal(t, "confirm", result.AwaitRequest.StepName)

	// the engine coerces string input against the declared boolean type
	resumed := eng.Resume(runCtx, skill, result.ExecutionID, map[string]interface{}{"approved": "true"})

	require.Nil(t, resumed.Error)
	assert.True(t, resumed.Success)
	assert.Equal(t, "sent: hello ada", resumed.Output["outcome"])
}

func TestCollectInputs(t *testing.T) {
	runInputs = map[string]string{"name": "ada", "tags": `["a","b"]`}
	runInputJSON = `{"count": 3}`
	t.Cleanup(func() {
		runInputs = map[string]string{}
		runInputJSON = ""
	})

	skill := &ast.Skill{
		Inputs: map[string]*ast.FieldSpec{
			"name":  {Type: "string"},
			"tags":  {Type: "array"},
			"count": {Type: "integer"},
		},
	}

	inputs, err := collectInputs(skill)
	require.NoError(t, err)
	assert.Equal(t, "ada", inputs["name"])
	assert.Equal(t, []interface{}{"a", "b"}, inputs["tags"])
	assert.Equal(t, float64(3), inputs["count"])
}

func TestCollectInputsRejectsBadJSON(t *testing.T) {
	runInputs = map[string]string{"tags": "not json"}
	t.Cleanup(func() { runInputs = map[string]string{} })

	skill := &ast.Skill{
		Inputs: map[string]*ast.FieldSpec{
			"tags": {Type: "array"},
		},
	}

	_, err := collectInputs(skill)
	assert.ErrorContains(t, err, "tags")
}

func TestCompileRunResult(t *testing.T) {
	skill := &ast.Skill{ID: "greet", Version: "1.0.0"}

	completed := compileRunResult("greet.skill.md", skill, nil, &engine.SkillResult{
		Success:     true,
		ExecutionID: "exec-1",
		Output:      map[string]interface{}{"message": "hi"},
	}, 120*time.Millisecond)
	assert.Equal(t, "completed", completed.Status)
	assert.Equal(t, int64(120), completed.DurationMs)
	assert.Empty(t, completed.Error)

	awaiting := compileRunResult("greet.skill.md", skill, nil, &engine.SkillResult{
		Awaiting:     true,
		ExecutionID:  "exec-2",
		AwaitRequest: &execcontext.AwaitRequest{StepName: "confirm"},
	}, time.Millisecond)
	assert.Equal(t, "awaiting", awaiting.Status)
	require.NotNil(t, awaiting.AwaitRequest)

	failed := compileRunResult("greet.skill.md", skill, nil, &engine.SkillResult{
		Error: execcontext.NewExecError(execcontext.ErrToolExecution, "fetch", "boom"),
	}, time.Millisecond)
	assert.Equal(t, "failed", failed.Status)
	assert.Contains(t, failed.Error, "boom")
}

func TestInteractiveAwaitRespectsNoInput(t *testing.T) {
	runNoInput = true
	t.Cleanup(func() { runNoInput = false })

	assert.False(t, interactiveAwait())
}

func TestProgressTrackerRendersEvents(t *testing.T) {
	t.Setenv("SKILLET_TEST", "true")

	out := &bytes.Buffer{}
	tracker := newProgressTracker(out)
	tracker.Start()

	tracker.events <- events.ExecutionEvent{Type: events.EventStepStarted, StepName: "compose"}
	tracker.events <- events.ExecutionEvent{
		Type:     events.EventStepCompleted,
		StepName: "compose",
		Duration: 5 * time.Millisecond,
	}
	tracker.events <- events.ExecutionEvent{Type: events.EventStepSkipped, StepName: "deliver"}
	tracker.Stop()

	assert.Contains(t, out.String(), "compose")
	assert.Contains(t, out.String(), "skipped")
}
