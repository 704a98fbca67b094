// Package gate runs the lightweight "is this food?" pre-check that guards
// the expensive recognition call.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foodproxy"
	"foodproxy/coerce"
	"foodproxy/upstream"
)

// Gate-specific budgets, lighter than recognition.
const (
	MaxTokens = 200
	Timeout   = 15 * time.Second
)

type Checker struct {
	vision upstream.Completer
	model  string
}

// NewChecker builds a gate checker. model may be a cheaper model than the
// one used for recognition.
func NewChecker(vision upstream.Completer, model string) (*Checker, error) {
	if vision == nil {
		return nil, fmt.Errorf("invalid vision completer")
	}
	if model == "" {
		return nil, fmt.Errorf("invalid model id")
	}
	return &Checker{vision: vision, model: model}, nil
}

// Check classifies whether the image could plausibly be food. Upstream
// communication failures propagate as errors; a successful call whose answer
// cannot be parsed yields IsFood == nil, never a silent default.
func (c *Checker) Check(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, locale string) (foodproxy.GateDecision, error) {
	text, err := c.vision.Complete(ctx, upstream.Request{
		Model:     c.model,
		Prompt:    BuildPrompt(locale),
		Image:     image,
		MimeType:  mimeType,
		MaxTokens: MaxTokens,
		Detail:    upstream.DetailLow,
		Timeout:   Timeout,
	})
	if err != nil {
		return foodproxy.GateDecision{}, fmt.Errorf("gate: %w", err)
	}

	decision := coerce.Gate(text)
	if decision.IsFood == nil {
		slog.Warn("GATE: unparseable decision", "trace_id", rc.TraceID, "raw_preview", preview(text, 200))
	} else {
		slog.Info("GATE: decision",
			"trace_id", rc.TraceID,
			"is_food", *decision.IsFood,
			"confidence", decision.ConfidenceOrZero(),
			"reason", decision.Reason,
		)
	}
	return decision, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
