package style

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Spinner is the progress indicator surface the run command drives. The
// terminal implementation animates in place; the test implementation
// writes each transition on its own line so output can be asserted.
type Spinner interface {
	SetSuffix(suffix string)
	SetFinalMSG(finalMSG string)
	Start()
	Stop()
}

// TestSpinner is a spinner implementation for tests that logs transitions
// instead of clearing and redrawing the line.
type TestSpinner struct {
	mu       sync.Mutex
	Suffix   string
	FinalMSG string
	Writer   io.Writer
	color    func(a ...interface{}) string
	active   bool
}

// NewTestSpinner returns a TestSpinner writing to w.
func NewTestSpinner(w io.Writer) *TestSpinner {
	return &TestSpinner{
		Writer: w,
		color:  color.New(color.FgWhite).SprintFunc(),
	}
}

func (s *TestSpinner) SetSuffix(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Suffix = suffix
	fmt.Fprintf(s.Writer, "[SET SUFFIX] %s\n", suffix)
}

func (s *TestSpinner) SetFinalMSG(finalMSG string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalMSG = finalMSG
}

func (s *TestSpinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	fmt.Fprintf(s.Writer, "[SPINNER START]\n")
}

func (s *TestSpinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	fmt.Fprintf(s.Writer, "[SPINNER STOP]\n")
	if s.FinalMSG != "" {
		fmt.Fprintf(s.Writer, "[FINAL MSG] %s\n", s.FinalMSG)
	}
}

// TerminalSpinner animates on a real terminal.
type TerminalSpinner struct {
	spinner *spinner.Spinner
}

func NewTerminalSpinner(cs []string, d time.Duration, options ...spinner.Option) *TerminalSpinner {
	return &TerminalSpinner{
		spinner: spinner.New(cs, d, options...),
	}
}

func (s *TerminalSpinner) SetSuffix(suffix string) {
	s.spinner.Suffix = suffix
}

func (s *TerminalSpinner) SetFinalMSG(finalMSG string) {
	s.spinner.FinalMSG = finalMSG
}

func (s *TerminalSpinner) Start() {
	s.spinner.Start()
}

func (s *TerminalSpinner) Stop() {
	s.spinner.Stop()
}

// NewSpinner returns the spinner appropriate for the environment.
// SKILLET_TEST=true selects the line-oriented test spinner.
func NewSpinner(w io.Writer) Spinner {
	if os.Getenv("SKILLET_TEST") == "true" {
		return NewTestSpinner(w)
	}

	return NewTerminalSpinner(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
}
