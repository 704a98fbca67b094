// Package recognize runs the full nutrition-estimation call and coerces its
// output into validated items with derived totals.
package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foodproxy"
	"foodproxy/coerce"
	"foodproxy/upstream"
)

const (
	// MaxTokens is sized so a multi-item list is not truncated mid-object.
	MaxTokens = 2000
	Timeout   = 20 * time.Second
)

type Recognizer struct {
	vision upstream.Completer
	model  string
}

func NewRecognizer(vision upstream.Completer, model string) (*Recognizer, error) {
	if vision == nil {
		return nil, fmt.Errorf("invalid vision completer")
	}
	if model == "" {
		return nil, fmt.Errorf("invalid model id")
	}
	return &Recognizer{vision: vision, model: model}, nil
}

// Recognize enumerates the food on the image and derives totals from the
// item list. Transport and status failures propagate as upstream errors; a
// structurally invalid payload is wrapped as the same error kind so the
// decision layer classifies both paths uniformly.
func (r *Recognizer) Recognize(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, userComment, locale string) (foodproxy.RecognitionOutcome, error) {
	text, err := r.vision.Complete(ctx, upstream.Request{
		Model:     r.model,
		Prompt:    BuildPrompt(userComment, locale),
		Image:     image,
		MimeType:  mimeType,
		MaxTokens: MaxTokens,
		Detail:    upstream.DetailLow,
		Timeout:   Timeout,
	})
	if err != nil {
		return foodproxy.RecognitionOutcome{}, fmt.Errorf("recognize: %w", err)
	}

	slog.Debug("RECOGNIZE: model output", "trace_id", rc.TraceID, "raw_preview", preview(text, 800))

	items, notes, err := coerce.Recognition(text)
	if err != nil {
		slog.Error("RECOGNIZE: failed to coerce model output", "trace_id", rc.TraceID, "error", err, "raw_preview", preview(text, 800))
		return foodproxy.RecognitionOutcome{}, &upstream.Error{
			Kind:    upstream.KindProtocol,
			Message: "model output failed coercion",
			Err:     err,
		}
	}

	// Totals are always recomputed from the item list; the model's own
	// "total" block is advisory only.
	outcome := foodproxy.RecognitionOutcome{
		Items:      items,
		Totals:     foodproxy.SumNutrition(items),
		ModelNotes: notes,
	}

	slog.Info("RECOGNIZE: done",
		"trace_id", rc.TraceID,
		"item_count", len(outcome.Items),
		"total_kcal", outcome.Totals.Kcal,
	)
	return outcome, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
