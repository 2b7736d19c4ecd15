package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/provider"
	"github.com/skilletai/skillet/internal/tools"
	"github.com/skilletai/skillet/pkg/events"
)

func TestExecute_TemplateChaining(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "s1", Type: ast.StepTemplate, VarName: "total", Template: "{{a + b}}"},
		&ast.Step{Name: "s2", Type: ast.StepTemplate, VarName: "msg", Template: "sum is {{total}}"},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"a": 2, "b": 3})
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, "sum is 5", result.Output["msg"])
	assert.Equal(t, map[string]interface{}{"total": "5", "msg": "sum is 5"}, result.Output)
	assert.NotEmpty(t, result.ExecutionID)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, execcontext.StepStatusSuccess, result.StepResults[0].Status)
}

func TestExecute_ToolThenTemplate(t *testing.T) {
	registry := tools.NewRegistry()
	copier := newStubTool("echo", tools.ToolSchema{
		"x": {Type: "string", Required: true},
	}, func(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
		output.Set("y", input["x"])
		return nil
	})
	require.NoError(t, registry.Register(copier))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{Name: "copy", Type: ast.StepTool, Tool: "echo", Inputs: map[string]interface{}{"x": "{{name}}"}},
		&ast.Step{Name: "greet", Type: ast.StepTemplate, VarName: "greeting", Template: "hello {{copy.y}}"},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"name": "ada"})
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, 1, copier.callCount())
	assert.Equal(t, map[string]interface{}{"greeting": "hello ada"}, result.Output)
}

func TestExecute_PromptStep(t *testing.T) {
	providers := provider.NewRegistry()
	adapter := newStubAdapter("stub", "two paragraphs of prose")
	require.NoError(t, providers.Register(adapter))

	eng := NewEngine(WithProviderRegistry(providers))
	skill := createTestSkill(
		&ast.Step{Name: "write", Type: ast.StepPrompt, VarName: "draft", Prompt: "Write about {{topic}}"},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"topic": "tea"})
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, "two paragraphs of prose", result.Output["draft"])
	assert.Equal(t, "Write about tea", adapter.lastRequest().Prompt)
}

func TestExecute_AwaitRoundTrip(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "intro", Type: ast.StepTemplate, Template: "starting"},
		&ast.Step{
			Name:    "ask",
			Type:    ast.StepAwait,
			Message: "Continue?",
			AwaitInputs: map[string]*ast.FieldSpec{
				"confirm": {Type: "boolean", Required: true},
			},
		},
		&ast.Step{Name: "ok", Type: ast.StepTemplate, VarName: "result", When: "confirm == true", Template: "ok"},
		&ast.Step{Name: "no", Type: ast.StepTemplate, VarName: "result", When: "confirm == false", Template: "no"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)
	assert.False(t, paused.Success)
	require.NotNil(t, paused.AwaitRequest)
	assert.Equal(t, "ask", paused.AwaitRequest.StepName)
	assert.Equal(t, "Continue?", paused.AwaitRequest.Message)
	require.NotEmpty(t, paused.ExecutionID)

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotActive, snapshot.Status)
	assert.Equal(t, 1, snapshot.CurrentStepIndex)

	resumed := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"confirm": true})
	require.True(t, resumed.Success, "error: %v", resumed.Error)
	assert.Equal(t, map[string]interface{}{"result": "ok"}, resumed.Output)

	// a second resume against the consumed snapshot must be rejected
	again := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"confirm": true})
	require.NotNil(t, again.Error)
	assert.Equal(t, execcontext.ErrExecutionCompleted, again.Error.Code)
}

func TestExecute_AwaitNegativeBranch(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{
			Name:    "ask",
			Type:    ast.StepAwait,
			Message: "Continue?",
			AwaitInputs: map[string]*ast.FieldSpec{
				"confirm": {Type: "boolean", Required: true},
			},
		},
		&ast.Step{Name: "ok", Type: ast.StepTemplate, VarName: "result", When: "confirm == true", Template: "ok"},
		&ast.Step{Name: "no", Type: ast.StepTemplate, VarName: "result", When: "confirm == false", Template: "no"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	resumed := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"confirm": false})
	require.True(t, resumed.Success, "error: %v", resumed.Error)
	assert.Equal(t, map[string]interface{}{"result": "no"}, resumed.Output)
}

func TestExecute_SkippedStepDoesNotInvokeTool(t *testing.T) {
	registry := tools.NewRegistry()
	echo := newEchoTool()
	require.NoError(t, registry.Register(echo))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{
			Name:   "guarded",
			Type:   ast.StepTool,
			Tool:   "echo",
			When:   "{{flag}} == true",
			Inputs: map[string]interface{}{"text": "never"},
		},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"flag": false})
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, 0, echo.callCount())
	require.Len(t, result.StepResults, 1)
	assert.Equal(t, execcontext.StepStatusSkipped, result.StepResults[0].Status)
	assert.Empty(t, result.Output)
}

func TestExecute_MalformedWhenCondition(t *testing.T) {
	registry := tools.NewRegistry()
	echo := newEchoTool()
	require.NoError(t, registry.Register(echo))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{
			Name:   "guarded",
			Type:   ast.StepTool,
			Tool:   "echo",
			When:   "{{flag} == true",
			Inputs: map[string]interface{}{"text": "never"},
		},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.NotNil(t, result.Error)
	assert.False(t, result.Success)
	assert.Equal(t, execcontext.ErrConditionParse, result.Error.Code)
	assert.Equal(t, "guarded", result.Error.StepName)
	assert.Equal(t, 0, echo.callCount())
}

func TestExecute_OutputContractProjection(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "s1", Type: ast.StepTemplate, VarName: "summary", Template: "done"},
		&ast.Step{Name: "s2", Type: ast.StepTemplate, VarName: "scratch", Template: "intermediate"},
	)
	skill.Output = &ast.OutputContract{
		Format: ast.OutputFormatJSON,
		Fields: map[string]*ast.FieldSpec{
			"summary": {Type: "string", Required: true},
		},
	}

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, map[string]interface{}{"summary": "done"}, result.Output)
	_, leaked := result.Output["scratch"]
	assert.False(t, leaked, "undeclared values must not appear in the output")
}

func TestExecute_OutputContractViolation(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "s1", Type: ast.StepTemplate, VarName: "note", Template: "x"},
	)
	skill.Output = &ast.OutputContract{
		Format: ast.OutputFormatJSON,
		Fields: map[string]*ast.FieldSpec{
			"report": {Type: "string", Required: true},
		},
	}

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.NotNil(t, result.Error)
	assert.False(t, result.Success)
	assert.Equal(t, execcontext.ErrOutputValidation, result.Error.Code)
}

func TestExecute_TextOutputFormat(t *testing.T) {
	registry := tools.NewRegistry()
	counter := newStubTool("count", nil, func(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
		output.Set("total", 3)
		return nil
	})
	require.NoError(t, registry.Register(counter))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{Name: "tally", Type: ast.StepTool, Tool: "count", VarName: "stats"},
		&ast.Step{Name: "extract", Type: ast.StepTemplate, VarName: "total", Template: "{{stats.total}}"},
	)
	skill.Output = &ast.OutputContract{
		Format: ast.OutputFormatText,
		Fields: map[string]*ast.FieldSpec{
			"total": {Type: "number", Required: true},
		},
	}

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, "3", result.Output["total"], "text format renders numbers without trailing zeros")
}

func TestExecute_ToolOutputSchemaMissingRequiredField(t *testing.T) {
	registry := tools.NewRegistry()
	silent := newStubTool("report", nil, func(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
		return nil
	})
	require.NoError(t, registry.Register(silent))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{
			Name: "produce",
			Type: ast.StepTool,
			Tool: "report",
			OutputSchema: map[string]*ast.FieldSpec{
				"report": {Type: "string", Required: true},
			},
		},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.NotNil(t, result.Error)
	assert.False(t, result.Success)
	assert.Equal(t, execcontext.ErrToolExecution, result.Error.Code)
	assert.Equal(t, "produce", result.Error.StepName)
	assert.Contains(t, result.Error.Message, "required output is missing")
}

func TestExecute_ToolOutputSchemaConvertsAndPassesExtras(t *testing.T) {
	registry := tools.NewRegistry()
	counter := newStubTool("count", nil, func(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
		output.Set("total", "3")
		output.Set("raw", "untyped")
		return nil
	})
	require.NoError(t, registry.Register(counter))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{
			Name:    "tally",
			Type:    ast.StepTool,
			Tool:    "count",
			VarName: "stats",
			OutputSchema: map[string]*ast.FieldSpec{
				"total": {Type: "integer", Required: true},
			},
		},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, map[string]interface{}{
		"total": 3,
		"raw":   "untyped",
	}, result.Output["stats"], "declared outputs are converted, undeclared ones pass through")
}

func TestExecute_FailedStepStopsExecution(t *testing.T) {
	registry := tools.NewRegistry()
	echo := newEchoTool()
	require.NoError(t, registry.Register(echo))

	eng := NewEngine(WithToolRegistry(registry))
	skill := createTestSkill(
		&ast.Step{Name: "missing", Type: ast.StepTool, Tool: "nowhere"},
		&ast.Step{Name: "followup", Type: ast.StepTool, Tool: "echo", Inputs: map[string]interface{}{"text": "x"}},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrToolNotFound, result.Error.Code)
	assert.Equal(t, "missing", result.Error.StepName)
	assert.Equal(t, 0, echo.callCount(), "steps after a failure must not run")
	require.Len(t, result.StepResults, 1)
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "s1", Type: ast.StepTemplate, VarName: "v", Template: "never"},
	)

	result := eng.Execute(execcontext.RunContext{Context: ctx}, skill, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrExecutionCancelled, result.Error.Code)
}

func TestExecute_CancelDuringStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	registry := tools.NewRegistry()
	aborting := newStubTool("abort", nil, func(c context.Context, input map[string]interface{}, output *tools.OutputContext) error {
		cancel()
		return c.Err()
	})
	require.NoError(t, registry.Register(aborting))

	ch := make(chan events.ExecutionEvent, 64)
	eng := NewEngine(WithToolRegistry(registry), WithEvents(ch))
	skill := createTestSkill(
		&ast.Step{Name: "hold", Type: ast.StepTool, Tool: "abort"},
		&ast.Step{Name: "after", Type: ast.StepTemplate, VarName: "x", Template: "never"},
	)

	result := eng.Execute(execcontext.RunContext{Context: ctx}, skill, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrExecutionCancelled, result.Error.Code, "cancel must win over the context error it induced")
	assert.Equal(t, "hold", result.Error.StepName)

	var last events.ExecutionEventType
	for len(ch) > 0 {
		last = (<-ch).Type
	}
	assert.Equal(t, events.EventExecutionCancelled, last)
}

func TestResume_UnknownExecution(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)

	result := eng.Resume(createTestRunContext(), skill, "exec-nope", nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrExecutionNotFound, result.Error.Code)
}

func TestResume_InvalidInputLeavesSnapshotActive(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{
			Name:    "ask",
			Type:    ast.StepAwait,
			VarName: "decision",
			Message: "Approve?",
			AwaitInputs: map[string]*ast.FieldSpec{
				"approved": {Type: "boolean", Required: true},
			},
		},
		&ast.Step{Name: "done", Type: ast.StepTemplate, VarName: "msg", Template: "approved={{decision.approved}}"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	rejected := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"approved": "maybe"})
	require.NotNil(t, rejected.Error)
	assert.Equal(t, execcontext.ErrAwaitValidation, rejected.Error.Code)
	assert.Equal(t, "ask", rejected.Error.StepName)

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotActive, snapshot.Status, "failed validation must leave the execution resumable")

	retried := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, map[string]interface{}{"approved": true})
	require.True(t, retried.Success, "error: %v", retried.Error)
	assert.Equal(t, "approved=true", retried.Output["msg"])
}

func TestResume_SkillMismatch(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	other := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)
	other.ID = "some-other-skill"

	result := eng.Resume(createTestRunContext(), other, paused.ExecutionID, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrStateStore, result.Error.Code)

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotActive, snapshot.Status)
}

func TestResume_SkillVersionMismatch(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	// same skill id, but the step list the snapshot indexes into has moved
	newer := createTestSkill(
		&ast.Step{Name: "intro", Type: ast.StepTemplate, Template: "hi"},
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)
	newer.Version = "2.0.0"

	result := eng.Resume(createTestRunContext(), newer, paused.ExecutionID, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrStateStore, result.Error.Code)
	assert.Contains(t, result.Error.Message, "version")

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotActive, snapshot.Status)
}

func TestCancel_PreventsResume(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, paused.Awaiting)

	require.NoError(t, eng.Cancel(paused.ExecutionID))

	snapshot, err := eng.Store().FindByID(paused.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, execcontext.SnapshotCancelled, snapshot.Status)

	resumed := eng.Resume(createTestRunContext(), skill, paused.ExecutionID, nil)
	require.NotNil(t, resumed.Error)
	assert.Equal(t, execcontext.ErrExecutionCompleted, resumed.Error.Code)
}

func TestCancel_UnknownExecution(t *testing.T) {
	eng := NewEngine()

	err := eng.Cancel("exec-nope")
	require.Error(t, err)
	execErr, ok := err.(*execcontext.ExecError)
	require.True(t, ok)
	assert.Equal(t, execcontext.ErrExecutionNotFound, execErr.Code)
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "ask", Type: ast.StepAwait, Message: "?"},
	)

	paused := eng.Execute(createTestRunContext(), skill, nil)
	require.NoError(t, eng.Cancel(paused.ExecutionID))

	err := eng.Cancel(paused.ExecutionID)
	require.Error(t, err)
	execErr, ok := err.(*execcontext.ExecError)
	require.True(t, ok)
	assert.Equal(t, execcontext.ErrExecutionCompleted, execErr.Code)
}

func TestExecute_InputDefaultsFlowIntoScope(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "greet", Type: ast.StepTemplate, VarName: "msg", Template: "hello {{name}}"},
	)
	skill.Inputs = map[string]*ast.FieldSpec{
		"name": {Type: "string", Default: "world"},
	}

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, "hello world", result.Output["msg"])
}

func TestExecute_VarNameShadowsInput(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "rewrite", Type: ast.StepTemplate, VarName: "name", Template: "{{name}}!"},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"name": "ada"})
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, map[string]interface{}{"name": "ada!"}, result.Output)
}

func TestExecute_EmitsEventSequence(t *testing.T) {
	ch := make(chan events.ExecutionEvent, 64)
	eng := NewEngine(WithEvents(ch))
	skill := createTestSkill(
		&ast.Step{Name: "s1", Type: ast.StepTemplate, VarName: "a", Template: "one"},
		&ast.Step{Name: "s2", Type: ast.StepTemplate, VarName: "b", Template: "two"},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.True(t, result.Success, "error: %v", result.Error)

	var got []events.ExecutionEventType
	for len(ch) > 0 {
		event := <-ch
		got = append(got, event.Type)
		assert.Equal(t, result.ExecutionID, event.ExecutionID)
		assert.False(t, event.Timestamp.IsZero())
	}

	assert.Equal(t, []events.ExecutionEventType{
		events.EventExecutionStarted,
		events.EventStepStarted,
		events.EventStepCompleted,
		events.EventStepStarted,
		events.EventStepCompleted,
		events.EventExecutionCompleted,
	}, got)
}

func TestExecute_EmitsFailureAndSkipEvents(t *testing.T) {
	ch := make(chan events.ExecutionEvent, 64)
	eng := NewEngine(WithEvents(ch))
	skill := createTestSkill(
		&ast.Step{Name: "skipme", Type: ast.StepTemplate, VarName: "x", When: "{{flag}} == true", Template: "never"},
		&ast.Step{Name: "boom", Type: ast.StepTool, Tool: "absent"},
	)

	result := eng.Execute(createTestRunContext(), skill, map[string]interface{}{"flag": false})
	require.NotNil(t, result.Error)

	var got []events.ExecutionEventType
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}

	assert.Equal(t, []events.ExecutionEventType{
		events.EventExecutionStarted,
		events.EventStepSkipped,
		events.EventStepStarted,
		events.EventStepFailed,
		events.EventExecutionFailed,
	}, got)
}

func TestExecute_NoExecutorForStepType(t *testing.T) {
	eng := NewEngine()
	skill := createTestSkill(
		&ast.Step{Name: "odd", Type: ast.StepType("mystery")},
	)

	result := eng.Execute(createTestRunContext(), skill, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, execcontext.ErrSkillParse, result.Error.Code)
}
