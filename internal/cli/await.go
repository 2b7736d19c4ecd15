package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/style"
)

// promptAwait collects the input an await step asked for. On a terminal
// it renders a small form; otherwise it falls back to line prompts. The
// second return is false when the user cancelled.
func promptAwait(cmd *cobra.Command, request *execcontext.AwaitRequest) (map[string]interface{}, bool) {
	if request == nil {
		return nil, false
	}

	fields := orderedFields(request.InputSchema)
	if len(fields) == 0 {
		return map[string]interface{}{}, true
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return plainAwaitPrompt(cmd, request, fields)
	}

	model := newAwaitModel(request.Message, fields)
	program := tea.NewProgram(model, tea.WithOutput(cmd.ErrOrStderr()))
	final, err := program.Run()
	if err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("await prompt failed: %v", err))
		return nil, false
	}

	m, ok := final.(awaitModel)
	if !ok || m.cancelled {
		return nil, false
	}
	return m.values(), true
}

// namedField pairs a schema entry with its name so the form has a stable
// order: required fields first, alphabetical within each group.
type namedField struct {
	name string
	spec *ast.FieldSpec
}

func orderedFields(schema map[string]*ast.FieldSpec) []namedField {
	fields := make([]namedField, 0, len(schema))
	for name, spec := range schema {
		fields = append(fields, namedField{name: name, spec: spec})
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].spec.Required != fields[j].spec.Required {
			return fields[i].spec.Required
		}
		return fields[i].name < fields[j].name
	})
	return fields
}

// fieldLabel renders "name (type, required)" with any options inline.
func fieldLabel(f namedField) string {
	label := f.name
	details := []string{f.spec.GetTypeString()}
	if f.spec.Required {
		details = append(details, "required")
	}
	if len(f.spec.Options) > 0 {
		opts := make([]string, len(f.spec.Options))
		for i, o := range f.spec.Options {
			opts[i] = fmt.Sprintf("%v", o)
		}
		details = append(details, "one of: "+strings.Join(opts, ", "))
	}
	return fmt.Sprintf("%s (%s)", label, strings.Join(details, ", "))
}

// fieldValue turns the raw entry into the value submitted on resume. The
// engine validates and coerces against the schema, so scalars stay
// strings here; only array and object entries are decoded as JSON up
// front to preserve their structure.
func fieldValue(spec *ast.FieldSpec, raw string) (interface{}, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if spec.Type == "array" || spec.Type == "object" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			return decoded, true
		}
	}
	return raw, true
}

// --- bubbletea form ---

type awaitModel struct {
	message   string
	fields    []namedField
	inputs    []textinput.Model
	index     int
	submitted bool
	cancelled bool
}

func newAwaitModel(message string, fields []namedField) awaitModel {
	inputs := make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.CharLimit = 4096
		ti.Width = 60
		switch {
		case f.spec.Default != nil:
			ti.Placeholder = fmt.Sprintf("%v", f.spec.Default)
		case f.spec.Description != "":
			ti.Placeholder = f.spec.Description
		default:
			ti.Placeholder = f.spec.GetTypeString()
		}
		if i == 0 {
			ti.Focus()
		}
		inputs[i] = ti
	}

	return awaitModel{
		message: message,
		fields:  fields,
		inputs:  inputs,
	}
}

func (m awaitModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m awaitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateFocused(msg)
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.cancelled = true
		return m, tea.Quit

	case "enter":
		if m.fields[m.index].spec.Required && strings.TrimSpace(m.inputs[m.index].Value()) == "" {
			return m, nil
		}
		if m.index == len(m.fields)-1 {
			m.submitted = true
			return m, tea.Quit
		}
		return m.focusField(m.index + 1)

	case "tab", "down":
		return m.focusField((m.index + 1) % len(m.fields))

	case "shift+tab", "up":
		return m.focusField((m.index - 1 + len(m.fields)) % len(m.fields))
	}

	return m.updateFocused(msg)
}

func (m awaitModel) focusField(index int) (tea.Model, tea.Cmd) {
	m.inputs[m.index].Blur()
	m.index = index
	return m, m.inputs[m.index].Focus()
}

func (m awaitModel) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.index], cmd = m.inputs[m.index].Update(msg)
	return m, cmd
}

func (m awaitModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}

	var view strings.Builder
	if m.message != "" {
		view.WriteString(style.InfoStyle.Render(m.message) + "\n\n")
	}

	for i, f := range m.fields {
		label := fieldLabel(f)
		if i == m.index {
			view.WriteString(style.AccentStyle.Render("> "+label) + "\n")
		} else {
			view.WriteString(style.MutedStyle.Render("  "+label) + "\n")
		}
		view.WriteString("  " + m.inputs[i].View() + "\n\n")
	}

	view.WriteString(style.MutedStyle.Render("enter: next field • tab: switch • esc: cancel"))
	return view.String()
}

func (m awaitModel) values() map[string]interface{} {
	values := make(map[string]interface{}, len(m.fields))
	for i, f := range m.fields {
		if v, ok := fieldValue(f.spec, m.inputs[i].Value()); ok {
			values[f.name] = v
		}
	}
	return values
}

// --- plain fallback ---

// plainAwaitPrompt reads one line per field from stdin. Required fields
// are asked again until they get a value.
func plainAwaitPrompt(cmd *cobra.Command, request *execcontext.AwaitRequest, fields []namedField) (map[string]interface{}, bool) {
	out := cmd.ErrOrStderr()
	reader := bufio.NewReader(os.Stdin)

	if request.Message != "" {
		style.Info(out, request.Message)
	}

	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		for {
			fmt.Fprintf(out, "%s: ", fieldLabel(f))
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return nil, false
			}

			if v, ok := fieldValue(f.spec, line); ok {
				values[f.name] = v
				break
			}
			if !f.spec.Required {
				break
			}
			style.Warning(out, fmt.Sprintf("%s is required", f.name))
		}
	}
	return values, true
}
