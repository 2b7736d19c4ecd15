package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSkill_Basic(t *testing.T) {
	skill := &Skill{
		ID:          "greeting",
		Version:     "1.0.0",
		Description: "A test skill",
		Intents:     []string{"Greet", "say-hello"},
		Inputs: map[string]*FieldSpec{
			"name": {Type: "string", Required: true},
		},
		Steps: []*Step{
			{
				Name:     "render",
				Type:     StepTemplate,
				Template: "Hello {{name}}",
			},
		},
	}

	assert.Equal(t, "greeting", skill.ID)
	assert.Equal(t, "greeting@1.0.0", skill.Key())

	step, exists := skill.GetStep("render")
	assert.True(t, exists)
	assert.Equal(t, StepTemplate, step.Type)

	_, exists = skill.GetStep("missing")
	assert.False(t, exists)

	spec, exists := skill.GetInput("name")
	assert.True(t, exists)
	assert.Equal(t, "string", spec.Type)

	assert.Equal(t, []string{"render"}, skill.ListStepNames())
	assert.True(t, skill.HasIntent("greet"))
	assert.True(t, skill.HasIntent("SAY-HELLO"))
	assert.False(t, skill.HasIntent("farewell"))
}

func TestSkill_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		skill       *Skill
		expectError bool
		errorMsg    string
	}{
		{
			name: "Valid skill",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps: []*Step{
					{Name: "say", Type: StepTemplate, Template: "hi"},
				},
			},
			expectError: false,
		},
		{
			name: "Missing id",
			skill: &Skill{
				Version: "1.0.0",
				Steps:   []*Step{{Name: "say", Type: StepTemplate, Template: "hi"}},
			},
			expectError: true,
			errorMsg:    "skill id is required",
		},
		{
			name: "Missing version",
			skill: &Skill{
				ID:    "demo",
				Steps: []*Step{{Name: "say", Type: StepTemplate, Template: "hi"}},
			},
			expectError: true,
			errorMsg:    "skill version is required",
		},
		{
			name: "Non-numeric version",
			skill: &Skill{
				ID:      "demo",
				Version: "one.two",
				Steps:   []*Step{{Name: "say", Type: StepTemplate, Template: "hi"}},
			},
			expectError: true,
			errorMsg:    "invalid version",
		},
		{
			name:        "No steps",
			skill:       &Skill{ID: "demo", Version: "1.0.0"},
			expectError: true,
			errorMsg:    "at least one step",
		},
		{
			name: "Duplicate step names",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps: []*Step{
					{Name: "say", Type: StepTemplate, Template: "hi"},
					{Name: "say", Type: StepTemplate, Template: "again"},
				},
			},
			expectError: true,
			errorMsg:    "duplicate step name",
		},
		{
			name: "Unknown step type",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "say", Type: "shell"}},
			},
			expectError: true,
			errorMsg:    "unknown step type",
		},
		{
			name: "Tool step without tool",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "fetch", Type: StepTool}},
			},
			expectError: true,
			errorMsg:    "require a tool name",
		},
		{
			name: "Template step without body",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "render", Type: StepTemplate}},
			},
			expectError: true,
			errorMsg:    "require a template body",
		},
		{
			name: "Prompt step without prompt",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "ask", Type: StepPrompt}},
			},
			expectError: true,
			errorMsg:    "require a prompt body",
		},
		{
			name: "Unclosed for block in template",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "render", Type: StepTemplate, Template: "{{#for items}}{{v}}"}},
			},
			expectError: true,
			errorMsg:    "unclosed '{{#for",
		},
		{
			name: "Malformed when condition",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps: []*Step{
					{Name: "say", Type: StepTemplate, Template: "hi", When: "approved =="},
				},
			},
			expectError: true,
			errorMsg:    "invalid when condition",
		},
		{
			name: "Malformed template in tool inputs",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps: []*Step{
					{
						Name: "fetch",
						Type: StepTool,
						Tool: "http_request",
						Inputs: map[string]interface{}{
							"url": "https://example.com/{{path",
						},
					},
				},
			},
			expectError: true,
			errorMsg:    "unclosed '{{'",
		},
		{
			name: "Malformed await message",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps: []*Step{
					{
						Name:    "confirm",
						Type:    StepAwait,
						Message: "Approve {{order.id?",
						AwaitInputs: map[string]*FieldSpec{
							"approved": {Type: "boolean", Required: true},
						},
					},
				},
			},
			expectError: true,
			errorMsg:    "unclosed '{{'",
		},
		{
			name: "Await step without inputs",
			skill: &Skill{
				ID:      "demo",
				Version: "1.0.0",
				Steps:   []*Step{{Name: "confirm", Type: StepAwait, Message: "ok?"}},
			},
			expectError: true,
			errorMsg:    "at least one requested input",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.skill.Validate()

			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldSpec_UnmarshalYAML(t *testing.T) {
	t.Run("shorthand syntax", func(t *testing.T) {
		var specs map[string]*FieldSpec
		err := yaml.Unmarshal([]byte("topic: string"), &specs)
		require.NoError(t, err)

		spec := specs["topic"]
		require.NotNil(t, spec)
		assert.Equal(t, "string", spec.Type)
		assert.True(t, spec.Required)
	})

	t.Run("full syntax", func(t *testing.T) {
		doc := `
topic:
  type: string
  description: What to talk about
  required: false
  default: weather
  options: [weather, sports]
  validation:
    pattern: "^[a-z]+$"
    message: lowercase only
`
		var specs map[string]*FieldSpec
		err := yaml.Unmarshal([]byte(doc), &specs)
		require.NoError(t, err)

		spec := specs["topic"]
		require.NotNil(t, spec)
		assert.Equal(t, "string", spec.Type)
		assert.Equal(t, "What to talk about", spec.Description)
		assert.False(t, spec.Required)
		assert.Equal(t, "weather", spec.Default)
		assert.Len(t, spec.Options, 2)
		require.NotNil(t, spec.Validation)
		assert.Equal(t, "^[a-z]+$", spec.Validation.Pattern)
		assert.Equal(t, "lowercase only", spec.Validation.Message)
	})

	t.Run("both forms normalize identically", func(t *testing.T) {
		var short, long map[string]*FieldSpec
		require.NoError(t, yaml.Unmarshal([]byte("name: string"), &short))
		require.NoError(t, yaml.Unmarshal([]byte("name: {type: string, required: true}"), &long))

		assert.Equal(t, long["name"].Type, short["name"].Type)
		assert.Equal(t, long["name"].Required, short["name"].Required)
	})
}

func TestStep_UnmarshalYAML(t *testing.T) {
	t.Run("tool step keeps raw inputs", func(t *testing.T) {
		doc := `
type: tool
tool: http_request
var: resp
inputs:
  url: "https://example.com/{{path}}"
  retries: 3
`
		var step Step
		err := yaml.Unmarshal([]byte(doc), &step)
		require.NoError(t, err)

		assert.Equal(t, StepTool, step.Type)
		assert.Equal(t, "http_request", step.Tool)
		assert.Equal(t, "resp", step.VarName)
		assert.Equal(t, "https://example.com/{{path}}", step.Inputs["url"])
		assert.Equal(t, 3, step.Inputs["retries"])
		assert.Nil(t, step.AwaitInputs)
	})

	t.Run("await step decodes inputs as field specs", func(t *testing.T) {
		doc := `
type: await
var: approval
message: "Approve {{order.id}}?"
inputs:
  approved: boolean
  reason:
    type: string
    required: false
`
		var step Step
		err := yaml.Unmarshal([]byte(doc), &step)
		require.NoError(t, err)

		assert.Equal(t, StepAwait, step.Type)
		assert.Equal(t, "Approve {{order.id}}?", step.Message)
		assert.Nil(t, step.Inputs)
		require.Len(t, step.AwaitInputs, 2)
		assert.Equal(t, "boolean", step.AwaitInputs["approved"].Type)
		assert.True(t, step.AwaitInputs["approved"].Required)
		assert.False(t, step.AwaitInputs["reason"].Required)
	})

	t.Run("prompt step with options", func(t *testing.T) {
		doc := `
type: prompt
prompt: "Summarize {{notes}}"
options:
  provider: anthropic
  model: claude-sonnet-4-20250514
  temperature: 0.2
  max_tokens: 500
`
		var step Step
		err := yaml.Unmarshal([]byte(doc), &step)
		require.NoError(t, err)

		assert.Equal(t, StepPrompt, step.Type)
		require.NotNil(t, step.Options)
		assert.Equal(t, "anthropic", step.Options.Provider)
		assert.Equal(t, 0.2, *step.Options.Temperature)
		assert.Equal(t, 500, *step.Options.MaxTokens)
	})
}

func TestStep_BindKey(t *testing.T) {
	withVar := &Step{Name: "fetch-user", VarName: "user"}
	assert.Equal(t, "user", withVar.BindKey())

	withoutVar := &Step{Name: "fetch-user"}
	assert.Equal(t, "fetch-user", withoutVar.BindKey())
}

func TestOutputContract_UnmarshalYAML(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		expected string
	}{
		{"default format", "fields:\n  report: string", OutputFormatJSON},
		{"explicit text", "format: text\nfields:\n  report: string", OutputFormatText},
		{"case insensitive", "format: JSON", OutputFormatJSON},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var contract OutputContract
			err := yaml.Unmarshal([]byte(tc.doc), &contract)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, contract.Format)
		})
	}
}

func TestPosition_String(t *testing.T) {
	withFile := Position{Line: 3, Column: 7, File: "demo.skill.md"}
	assert.Equal(t, "demo.skill.md:3:7", withFile.String())

	withoutFile := Position{Line: 3, Column: 7}
	assert.Equal(t, "3:7", withoutFile.String())
}
