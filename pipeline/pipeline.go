// Package pipeline sequences gate and recognition over one request, applies
// the confidence bands, and maps every outcome onto the closed error
// taxonomy.
package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"foodproxy"
	"foodproxy/upstream"
)

// GateChecker is the gate stage seen by the pipeline.
type GateChecker interface {
	Check(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, locale string) (foodproxy.GateDecision, error)
}

// Recognizer is the recognition stage seen by the pipeline.
type Recognizer interface {
	Recognize(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, userComment, locale string) (foodproxy.RecognitionOutcome, error)
}

// Thresholds partitions the gate confidence into reject /
// low-confidence-proceed / confident-proceed bands. Min never exceeds Med.
type Thresholds struct {
	Min float64
	Med float64
}

// Config holds the per-process pipeline settings.
type Config struct {
	Thresholds Thresholds
	// MaxImageBytes rejects oversized uploads before any upstream call.
	// Zero disables the check (the transport layer enforces its own cap).
	MaxImageBytes int64
}

// Input is one inbound recognition request.
type Input struct {
	Image       []byte
	MimeType    string
	UserComment string
	Locale      string
}

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type Pipeline struct {
	gate        GateChecker
	recognizer  Recognizer
	descriptors DescriptorTable
	cfg         Config
	audit       foodproxy.RequestLogger
}

func New(gate GateChecker, recognizer Recognizer, descriptors DescriptorTable, cfg Config, audit foodproxy.RequestLogger) *Pipeline {
	if audit == nil {
		audit = foodproxy.NewNoOpRequestLogger()
	}
	return &Pipeline{
		gate:        gate,
		recognizer:  recognizer,
		descriptors: descriptors,
		cfg:         cfg,
		audit:       audit,
	}
}

// Run drives one request through validation, gate, and recognition. It never
// panics outward: any unanticipated failure becomes UPSTREAM_ERROR with full
// detail logged server-side only.
func (p *Pipeline) Run(ctx context.Context, rc foodproxy.RequestContext, in Input) (result Result) {
	start := time.Now()
	entry := foodproxy.RequestLog{
		TraceID:    rc.TraceID,
		Timestamp:  start,
		Locale:     in.Locale,
		ImageBytes: len(in.Image),
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("PIPELINE: panic recovered", "trace_id", rc.TraceID, "panic", r, "stack", string(debug.Stack()))
			result = p.failure(rc, CodeUpstreamError)
		}
		entry.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
		if result.Error != nil {
			entry.ErrorCode = string(result.Error.ErrorCode)
		}
		if err := p.audit.LogRequest(entry); err != nil {
			slog.Warn("PIPELINE: failed to write audit entry", "trace_id", rc.TraceID, "error", err)
		}
	}()

	if code, ok := p.validate(in); !ok {
		return p.failure(rc, code)
	}

	decision, err := p.gate.Check(ctx, rc, in.Image, in.MimeType, in.Locale)
	if err != nil {
		slog.Error("PIPELINE: gate failed", "trace_id", rc.TraceID, "error", err)
		entry.Error = err.Error()
		return p.failure(rc, CodeGateError)
	}
	entry.GateIsFood = decision.IsFood
	entry.GateConfidence = decision.Confidence
	entry.GateReason = decision.Reason

	// Unparseable gate answer is an upstream fault, not a content rejection.
	if decision.IsFood == nil {
		slog.Error("PIPELINE: gate answer unparseable", "trace_id", rc.TraceID, "reason", decision.Reason)
		return p.failure(rc, CodeGateError)
	}

	confidence := decision.ConfidenceOrZero()
	if !*decision.IsFood || confidence < p.cfg.Thresholds.Min {
		slog.Info("PIPELINE: content rejected by gate",
			"trace_id", rc.TraceID,
			"is_food", *decision.IsFood,
			"confidence", confidence,
			"reason", decision.Reason,
		)
		return p.failure(rc, CodeUnsupportedContent)
	}

	// Below the medium threshold we still proceed; the zone only decides
	// how an empty recognition is reported.
	lowConfidenceZone := confidence < p.cfg.Thresholds.Med

	outcome, err := p.recognizer.Recognize(ctx, rc, in.Image, in.MimeType, in.UserComment, in.Locale)
	if err != nil {
		slog.Error("PIPELINE: recognition failed", "trace_id", rc.TraceID, "error", err)
		entry.Error = err.Error()
		return p.failure(rc, classifyRecognitionError(err))
	}
	entry.ItemCount = len(outcome.Items)
	entry.TotalKcal = outcome.Totals.Kcal

	if !outcome.IsValid() {
		code := CodeEmptyResult
		if lowConfidenceZone {
			code = CodeLowConfidence
		}
		slog.Info("PIPELINE: recognition empty",
			"trace_id", rc.TraceID,
			"low_confidence_zone", lowConfidenceZone,
			"item_count", len(outcome.Items),
		)
		return p.failure(rc, code)
	}

	return Result{
		HTTPStatus: 200,
		Success: &SuccessResponse{
			Status:     "success",
			IsFood:     true,
			Confidence: confidence,
			GateReason: decision.Reason,
			TraceID:    rc.TraceID,
			Result: RecognitionResult{
				Items:      outcome.Items,
				Total:      outcome.Totals,
				ModelNotes: outcome.ModelNotes,
			},
		},
	}
}

func (p *Pipeline) validate(in Input) (Code, bool) {
	if len(in.Image) == 0 {
		return CodeInvalidImage, false
	}
	if !allowedMimeTypes[in.MimeType] {
		return CodeUnsupportedImageFormat, false
	}
	if p.cfg.MaxImageBytes > 0 && int64(len(in.Image)) > p.cfg.MaxImageBytes {
		return CodeImageTooLarge, false
	}
	return "", true
}

func (p *Pipeline) failure(rc foodproxy.RequestContext, code Code) Result {
	d := p.descriptors.Lookup(code)
	return Result{
		HTTPStatus: d.HTTPStatus,
		Error: &ErrorResponse{
			Status:      "error",
			ErrorCode:   code,
			UserTitle:   d.UserTitle,
			UserMessage: d.UserMessage,
			UserActions: d.UserActions,
			AllowRetry:  d.AllowRetry,
			TraceID:     rc.TraceID,
		},
	}
}

func classifyRecognitionError(err error) Code {
	switch upstream.Classify(err) {
	case upstream.KindTimeout:
		return CodeUpstreamTimeout
	case upstream.KindRateLimit:
		return CodeRateLimit
	default:
		return CodeUpstreamError
	}
}
