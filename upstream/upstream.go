// Package upstream defines the provider-neutral contract for vision-capable
// chat-completion calls and the error classification shared by all providers.
package upstream

import (
	"context"
	"time"
)

// Image fidelity hints. Providers that have no fidelity knob ignore them.
const (
	DetailLow  = "low"
	DetailHigh = "high"
)

// Request is one vision completion call: a prompt plus the image it refers to.
type Request struct {
	Model     string
	Prompt    string
	Image     []byte
	MimeType  string
	MaxTokens int
	Detail    string
	// Timeout bounds a single attempt; with retries the effective wall-clock
	// ceiling is Timeout × max attempts plus the cumulative backoff delay.
	Timeout time.Duration
}

// Completer submits a vision request and returns the model's textual
// completion. Implementations must return a *Error for any transport,
// status, or envelope failure so callers can classify it.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
