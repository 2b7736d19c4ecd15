package cli

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/execcontext"
)

func TestOrderedFields(t *testing.T) {
	schema := map[string]*ast.FieldSpec{
		"zeta":    {Type: "string"},
		"alpha":   {Type: "string"},
		"approve": {Type: "boolean", Required: true},
	}

	fields := orderedFields(schema)
	require.Len(t, fields, 3)
	assert.Equal(t, "approve", fields[0].name)
	assert.Equal(t, "alpha", fields[1].name)
	assert.Equal(t, "zeta", fields[2].name)
}

func TestFieldLabel(t *testing.T) {
	label := fieldLabel(namedField{
		name: "tone",
		spec: &ast.FieldSpec{Type: "string", Required: true, Options: []interface{}{"formal", "casual"}},
	})

	assert.Equal(t, "tone (string, required, one of: formal, casual)", label)
}

func TestFieldValue(t *testing.T) {
	value, ok := fieldValue(&ast.FieldSpec{Type: "boolean"}, "true\n")
	require.True(t, ok)
	assert.Equal(t, "true", value, "scalars stay strings for the engine to coerce")

	value, ok = fieldValue(&ast.FieldSpec{Type: "array"}, `["a","b"]`)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"a", "b"}, value)

	// malformed JSON for an array falls through as a raw string
	value, ok = fieldValue(&ast.FieldSpec{Type: "array"}, "[broken")
	require.True(t, ok)
	assert.Equal(t, "[broken", value)

	_, ok = fieldValue(&ast.FieldSpec{Type: "string"}, "   ")
	assert.False(t, ok)
}

func typeKeys(m awaitModel, s string) awaitModel {
	var next tea.Model = m
	for _, r := range s {
		next, _ = next.(awaitModel).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return next.(awaitModel)
}

func TestAwaitModelSubmit(t *testing.T) {
	fields := orderedFields(map[string]*ast.FieldSpec{
		"approved": {Type: "boolean", Required: true},
		"tone":     {Type: "string"},
	})
	model := newAwaitModel("Review the draft", fields)

	// enter on an empty required field stays put
	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m := next.(awaitModel)
	assert.Equal(t, 0, m.index)
	assert.False(t, m.submitted)

	m = typeKeys(m, "true")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(awaitModel)
	assert.Equal(t, 1, m.index)

	// the optional field may be left empty
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(awaitModel)
	assert.True(t, m.submitted)

	values := m.values()
	assert.Equal(t, "true", values["approved"])
	_, present := values["tone"]
	assert.False(t, present)
}

func TestAwaitModelCancel(t *testing.T) {
	fields := orderedFields(map[string]*ast.FieldSpec{
		"approved": {Type: "boolean", Required: true},
	})
	model := newAwaitModel("", fields)

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, next.(awaitModel).cancelled)
}

func TestPromptAwaitEmptySchema(t *testing.T) {
	cmd, _, _ := newTestCommand()

	values, ok := promptAwait(cmd, &execcontext.AwaitRequest{StepName: "confirm"})
	require.True(t, ok)
	assert.Empty(t, values)

	_, ok = promptAwait(cmd, nil)
	assert.False(t, ok)
}
