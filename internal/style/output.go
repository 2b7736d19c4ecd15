package style

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"gopkg.in/yaml.v3"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/parser"
)

var (
	// Color palette
	PrimaryTextColor = lipgloss.Color("#E4E4E7")
	ErrorColor       = lipgloss.Color("#FF6B6B")
	ErrorBgColor     = lipgloss.Color("#3D2020")
	WarningColor     = lipgloss.Color("#FFA726")
	SuccessColor     = lipgloss.Color("#66BB6A")
	InfoColor        = lipgloss.Color("#42A5F5")
	MutedColor       = lipgloss.Color("#6C757D")
	AccentColor      = lipgloss.Color("#7C3AED")
	CodeColor        = lipgloss.Color("#D4D4D4")

	// Base styles
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(MutedColor)
	AccentStyle  = lipgloss.NewStyle().Foreground(AccentColor)

	// Component styles
	FileStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true).
			Underline(true)

	PositionStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	LineNumberStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(5).
			Align(lipgloss.Right)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	SuggestionStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// Progress styles for the run command
	StepRunningStyle = lipgloss.NewStyle().
				Foreground(InfoColor)

	StepCompletedStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	StepFailedStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	StepNameStyle = lipgloss.NewStyle().
			Foreground(PrimaryTextColor)

	DurationStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)
)

// PrintJSON outputs data as indented JSON
func PrintJSON(w io.Writer, data interface{}) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding JSON: %v\n", err)
	}
}

// PrintYAML outputs data as YAML
func PrintYAML(w io.Writer, data interface{}) {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(w, "Error encoding YAML: %v\n", err)
	}
	encoder.Close()
}

func SuccessIcon() string {
	return SuccessStyle.Render("✓")
}

func ErrorIcon() string {
	return ErrorStyle.Render("✗")
}

func WarningIcon() string {
	return WarningStyle.Render("⚠")
}

func InfoIcon() string {
	return InfoStyle.Render("ℹ")
}

// Success prints a success message with styling
func Success(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(SuccessColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", SuccessIcon(), msg)
}

// Error prints an error message with styling
func Error(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(ErrorColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", ErrorIcon(), msg)
}

// Warning prints a warning message with styling
func Warning(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(WarningColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", WarningIcon(), msg)
}

// Info prints an info message with styling
func Info(w io.Writer, message string) {
	msg := lipgloss.NewStyle().Foreground(InfoColor).Render(message)
	fmt.Fprintf(w, "%s %s\n", InfoIcon(), msg)
}

// FormatFilePath formats a file path with proper styling
func FormatFilePath(path string) string {
	return FileStyle.Render(path)
}

// FormatPosition formats a line position with proper styling
func FormatPosition(line int) string {
	return PositionStyle.Render(fmt.Sprintf("%d", line))
}

// RenderCodeLine renders a line of source with its line number, optionally
// marked as the error line.
func RenderCodeLine(lineNum int, content string, isError bool) string {
	lineNumStr := LineNumberStyle.Render(fmt.Sprintf("%d", lineNum))
	separator := MutedStyle.Render(" │ ")

	if isError {
		marked := lipgloss.NewStyle().Background(ErrorBgColor).Render(content)
		return fmt.Sprintf("%s%s%s", lineNumStr, separator, marked)
	}

	return fmt.Sprintf("%s%s%s", lineNumStr, separator, content)
}

// RenderHighlightIndicator renders caret indicators below an error line.
func RenderHighlightIndicator(startCol, length int) string {
	if length <= 0 {
		return ""
	}
	if startCol < 1 {
		startCol = 1
	}

	spaces := strings.Repeat(" ", startCol-1)
	carets := HighlightStyle.Render(strings.Repeat("^", length))
	padding := LineNumberStyle.Render("     ") + MutedStyle.Render(" │ ")

	return fmt.Sprintf("%s%s%s", padding, spaces, carets)
}

// PrintParseError renders a parse or validation failure with its document
// position, surrounding source lines and any suggestion the parser
// attached. Errors that carry no position fall back to their message.
func PrintParseError(w io.Writer, file string, err error) {
	perrs := parser.Flatten(err)
	if len(perrs) == 0 {
		Error(w, err.Error())
		return
	}

	for _, perr := range perrs {
		fmt.Fprintf(w, "%s %s%s%s %s\n",
			ErrorIcon(),
			FormatFilePath(file),
			MutedStyle.Render(":"),
			FormatPosition(perr.Position.Line),
			perr.Message)

		if len(perr.Source) > 0 && perr.Position.Line > 0 {
			printSourceContext(w, perr.Source, perr.Position)
		}

		if perr.Suggestion != "" {
			fmt.Fprintf(w, "  %s %s\n", SuggestionStyle.Render("hint:"), perr.Suggestion)
		}
	}
}

// printSourceContext prints the error line with one line of context on
// each side and a caret under the reported column.
func printSourceContext(w io.Writer, source []byte, pos ast.Position) {
	lines := strings.Split(string(source), "\n")
	if pos.Line > len(lines) {
		return
	}

	from := pos.Line - 2
	if from < 0 {
		from = 0
	}
	to := pos.Line + 1
	if to > len(lines) {
		to = len(lines)
	}

	for i := from; i < to; i++ {
		isError := i+1 == pos.Line
		fmt.Fprintln(w, RenderCodeLine(i+1, lines[i], isError))
		if isError && pos.Column > 0 {
			if indicator := RenderHighlightIndicator(pos.Column, 1); indicator != "" {
				fmt.Fprintln(w, indicator)
			}
		}
	}
}
