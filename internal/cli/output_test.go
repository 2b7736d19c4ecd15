package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestPrintResultFormats(t *testing.T) {
	t.Cleanup(func() { viper.Set("output", "text") })

	data := map[string]string{"status": "ok"}

	viper.Set("output", "json")
	out := &bytes.Buffer{}
	printResult(out, data, func(w io.Writer) {})
	assert.Contains(t, out.String(), `"status": "ok"`)

	viper.Set("output", "yaml")
	out.Reset()
	printResult(out, data, func(w io.Writer) {})
	assert.Contains(t, out.String(), "status: ok")

	viper.Set("output", "text")
	out.Reset()
	printResult(out, data, func(w io.Writer) {
		fmt.Fprintln(w, "plain")
	})
	assert.Equal(t, "plain\n", out.String())
}

func TestPrintTable(t *testing.T) {
	out := &bytes.Buffer{}
	printTable(out, []string{"ID", "Version"}, [][]string{
		{"greet", "1.0.0"},
		{"digest", "0.3.0"},
	})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[1], "--")
	assert.Contains(t, lines[2], "greet")
}

func TestPrintTableEmpty(t *testing.T) {
	out := &bytes.Buffer{}
	printTable(out, []string{"ID"}, nil)
	assert.Empty(t, out.String())
}
