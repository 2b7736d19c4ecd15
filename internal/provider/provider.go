// Package provider contains the LLM adapters prompt steps invoke and the
// registry that selects between them.
package provider

import (
	"context"
)

// Request carries one prompt invocation to an adapter. Model and sampling
// fields are optional; adapters fall back to their configured defaults.
type Request struct {
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// AsyncResult is delivered once on the channel returned by InvokeAsync.
type AsyncResult struct {
	Text string
	Err  error
}

// Adapter defines the interface for AI model providers.
type Adapter interface {
	// Name returns the registry key the adapter is selected by.
	Name() string

	// SupportedModels returns the model identifiers the adapter accepts.
	SupportedModels() []string

	// Available reports whether the adapter is ready to serve requests,
	// typically whether its credentials are configured.
	Available() bool

	// Invoke sends a prompt and blocks until the response text arrives.
	Invoke(ctx context.Context, req *Request) (string, error)

	// InvokeAsync sends a prompt and returns a channel that yields the
	// result exactly once.
	InvokeAsync(ctx context.Context, req *Request) <-chan AsyncResult
}

// RunAsync wraps a synchronous Invoke in a single-delivery channel. It is
// the InvokeAsync implementation for adapters without native streaming.
func RunAsync(ctx context.Context, a Adapter, req *Request) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		text, err := a.Invoke(ctx, req)
		ch <- AsyncResult{Text: text, Err: err}
	}()
	return ch
}
