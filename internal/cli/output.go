package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/skilletai/skillet/internal/style"
)

// printResult writes data in the format selected by the global --output
// flag; text rendering is left to the caller via the fallback.
func printResult(w io.Writer, data interface{}, text func(io.Writer)) {
	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(w, data)
	case "yaml":
		style.PrintYAML(w, data)
	default:
		text(w)
	}
}

// printTable outputs rows in a plain aligned table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var line strings.Builder
	for i, header := range headers {
		line.WriteString(fmt.Sprintf("%-*s  ", widths[i], header))
	}
	fmt.Fprintln(w, strings.TrimRight(line.String(), " "))

	line.Reset()
	for i := range headers {
		line.WriteString(strings.Repeat("-", widths[i]) + "  ")
	}
	fmt.Fprintln(w, strings.TrimRight(line.String(), " "))

	for _, row := range rows {
		line.Reset()
		for i, cell := range row {
			if i < len(widths) {
				line.WriteString(fmt.Sprintf("%-*s  ", widths[i], cell))
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}
