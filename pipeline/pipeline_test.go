package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodproxy"
	"foodproxy/upstream"
)

type mockGate struct {
	decision foodproxy.GateDecision
	err      error
	calls    int
}

func (m *mockGate) Check(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, locale string) (foodproxy.GateDecision, error) {
	m.calls++
	return m.decision, m.err
}

type mockRecognizer struct {
	outcome foodproxy.RecognitionOutcome
	err     error
	calls   int
}

func (m *mockRecognizer) Recognize(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, userComment, locale string) (foodproxy.RecognitionOutcome, error) {
	m.calls++
	return m.outcome, m.err
}

type recordingAudit struct {
	entries []foodproxy.RequestLog
}

func (a *recordingAudit) LogRequest(entry foodproxy.RequestLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func foodDecision(confidence float64) foodproxy.GateDecision {
	return foodproxy.GateDecision{IsFood: boolPtr(true), Confidence: floatPtr(confidence), Reason: "plated meal"}
}

func validOutcome() foodproxy.RecognitionOutcome {
	items := []foodproxy.NutritionItem{
		{Name: "курица", Grams: 150, Kcal: 250, Protein: 30, Fat: 12, Carbohydrates: 0},
		{Name: "рис", Grams: 200, Kcal: 200, Protein: 4, Fat: 1, Carbohydrates: 45},
	}
	return foodproxy.RecognitionOutcome{Items: items, Totals: foodproxy.SumNutrition(items)}
}

func testInput() Input {
	return Input{Image: []byte{1, 2, 3}, MimeType: "image/jpeg", Locale: "ru"}
}

func newTestPipeline(g *mockGate, r *mockRecognizer, audit foodproxy.RequestLogger) *Pipeline {
	return New(g, r, DefaultDescriptors(), Config{
		Thresholds:    Thresholds{Min: 0.4, Med: 0.6},
		MaxImageBytes: 1 << 20,
	}, audit)
}

func TestRunSuccess(t *testing.T) {
	g := &mockGate{decision: foodDecision(0.9)}
	r := &mockRecognizer{outcome: validOutcome()}
	audit := &recordingAudit{}
	p := newTestPipeline(g, r, audit)

	rc := foodproxy.RequestContext{TraceID: "abc123"}
	res := p.Run(context.Background(), rc, testInput())

	require.NotNil(t, res.Success)
	assert.Nil(t, res.Error)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, "success", res.Success.Status)
	assert.True(t, res.Success.IsFood)
	assert.InDelta(t, 0.9, res.Success.Confidence, 1e-9)
	assert.Equal(t, "plated meal", res.Success.GateReason)
	assert.Equal(t, "abc123", res.Success.TraceID)
	assert.Equal(t, 450.0, res.Success.Result.Total.Kcal)
	assert.Len(t, res.Success.Result.Items, 2)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, "abc123", entry.TraceID)
	assert.Equal(t, 2, entry.ItemCount)
	assert.Equal(t, 450.0, entry.TotalKcal)
	assert.Empty(t, entry.ErrorCode)
}

func TestRunNotFood(t *testing.T) {
	g := &mockGate{decision: foodproxy.GateDecision{IsFood: boolPtr(false), Confidence: floatPtr(0.88), Reason: "screenshot"}}
	r := &mockRecognizer{}
	p := newTestPipeline(g, r, nil)

	res := p.Run(context.Background(), foodproxy.RequestContext{TraceID: "t"}, testInput())

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnsupportedContent, res.Error.ErrorCode)
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	assert.Zero(t, r.calls, "recognition must not run when the gate rejects")
}

func TestRunGateConfidenceBelowMin(t *testing.T) {
	g := &mockGate{decision: foodDecision(0.3)}
	r := &mockRecognizer{outcome: validOutcome()}
	p := newTestPipeline(g, r, nil)

	res := p.Run(context.Background(), foodproxy.RequestContext{}, testInput())

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnsupportedContent, res.Error.ErrorCode)
	assert.Zero(t, r.calls)
}

func TestRunGateFailure(t *testing.T) {
	g := &mockGate{err: errors.New("gate: upstream timeout: request timed out")}
	r := &mockRecognizer{}
	p := newTestPipeline(g, r, nil)

	res := p.Run(context.Background(), foodproxy.RequestContext{}, testInput())

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeGateError, res.Error.ErrorCode)
	assert.Equal(t, http.StatusBadGateway, res.HTTPStatus)
	assert.Zero(t, r.calls)
}

func TestRunGateUnparseable(t *testing.T) {
	// Nil IsFood means the gate call succeeded but the answer was garbage:
	// an upstream fault, never a content rejection.
	g := &mockGate{decision: foodproxy.GateDecision{Reason: "invalid_gate_response"}}
	r := &mockRecognizer{}
	p := newTestPipeline(g, r, nil)

	res := p.Run(context.Background(), foodproxy.RequestContext{}, testInput())

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeGateError, res.Error.ErrorCode)
	assert.Zero(t, r.calls)
}

func TestRunEmptyRecognitionBandedByConfidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		expected   Code
	}{
		{"low zone yields LOW_CONFIDENCE", 0.5, CodeLowConfidence},
		{"confident zone yields EMPTY_RESULT", 0.8, CodeEmptyResult},
		{"exactly med is confident", 0.6, CodeEmptyResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &mockGate{decision: foodDecision(tt.confidence)}
			r := &mockRecognizer{outcome: foodproxy.RecognitionOutcome{}}
			p := newTestPipeline(g, r, nil)

			res := p.Run(context.Background(), foodproxy.RequestContext{}, testInput())

			require.NotNil(t, res.Error)
			assert.Equal(t, tt.expected, res.Error.ErrorCode)
			assert.Equal(t, http.StatusUnprocessableEntity, res.HTTPStatus)
		})
	}
}

func TestRunRecognitionErrorClassified(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
		status   int
	}{
		{"timeout", &upstream.Error{Kind: upstream.KindTimeout, Message: "request timed out"}, CodeUpstreamTimeout, http.StatusGatewayTimeout},
		{"rate limit", &upstream.Error{Kind: upstream.KindRateLimit, Status: 429, Message: "slow down"}, CodeRateLimit, http.StatusTooManyRequests},
		{"status", &upstream.Error{Kind: upstream.KindStatus, Status: 502, Message: "bad gateway"}, CodeUpstreamError, http.StatusBadGateway},
		{"protocol", &upstream.Error{Kind: upstream.KindProtocol, Message: "invalid JSON"}, CodeUpstreamError, http.StatusBadGateway},
		{"untyped timeout message", errors.New("context deadline exceeded"), CodeUpstreamTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &mockGate{decision: foodDecision(0.9)}
			r := &mockRecognizer{err: tt.err}
			p := newTestPipeline(g, r, nil)

			res := p.Run(context.Background(), foodproxy.RequestContext{}, testInput())

			require.NotNil(t, res.Error)
			assert.Equal(t, tt.expected, res.Error.ErrorCode)
			assert.Equal(t, tt.status, res.HTTPStatus)
		})
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		expected Code
		status   int
	}{
		{"empty image", Input{MimeType: "image/jpeg"}, CodeInvalidImage, http.StatusBadRequest},
		{"disallowed mime", Input{Image: []byte{1}, MimeType: "image/gif"}, CodeUnsupportedImageFormat, http.StatusBadRequest},
		{"missing mime", Input{Image: []byte{1}}, CodeUnsupportedImageFormat, http.StatusBadRequest},
		{"oversized image", Input{Image: make([]byte, (1<<20)+1), MimeType: "image/png"}, CodeImageTooLarge, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &mockGate{decision: foodDecision(0.9)}
			r := &mockRecognizer{outcome: validOutcome()}
			p := newTestPipeline(g, r, nil)

			res := p.Run(context.Background(), foodproxy.RequestContext{}, tt.in)

			require.NotNil(t, res.Error)
			assert.Equal(t, tt.expected, res.Error.ErrorCode)
			assert.Equal(t, tt.status, res.HTTPStatus)
			assert.Zero(t, g.calls, "no upstream call for invalid input")
			assert.Zero(t, r.calls)
		})
	}
}

type panickingGate struct{}

func (panickingGate) Check(ctx context.Context, rc foodproxy.RequestContext, image []byte, mimeType, locale string) (foodproxy.GateDecision, error) {
	panic("boom")
}

func TestRunPanicRecovered(t *testing.T) {
	audit := &recordingAudit{}
	p := New(panickingGate{}, &mockRecognizer{}, DefaultDescriptors(), Config{
		Thresholds: Thresholds{Min: 0.4, Med: 0.6},
	}, audit)

	res := p.Run(context.Background(), foodproxy.RequestContext{TraceID: "t"}, testInput())

	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUpstreamError, res.Error.ErrorCode)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, string(CodeUpstreamError), audit.entries[0].ErrorCode)
}

func TestRunAuditOnFailure(t *testing.T) {
	g := &mockGate{decision: foodproxy.GateDecision{IsFood: boolPtr(false), Confidence: floatPtr(0.9), Reason: "document"}}
	audit := &recordingAudit{}
	p := newTestPipeline(g, &mockRecognizer{}, audit)

	p.Run(context.Background(), foodproxy.RequestContext{TraceID: "t"}, testInput())

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, string(CodeUnsupportedContent), entry.ErrorCode)
	require.NotNil(t, entry.GateIsFood)
	assert.False(t, *entry.GateIsFood)
	assert.Equal(t, "document", entry.GateReason)
}

func TestDescriptorTable(t *testing.T) {
	table := DefaultDescriptors()

	// Every code in the taxonomy has a complete descriptor.
	codes := []Code{
		CodeUnsupportedImageFormat, CodeInvalidImage, CodeImageTooLarge,
		CodeGateError, CodeUnsupportedContent, CodeLowConfidence,
		CodeEmptyResult, CodeUpstreamError, CodeUpstreamTimeout, CodeRateLimit,
	}
	for _, code := range codes {
		d, ok := table[code]
		require.True(t, ok, "missing descriptor for %s", code)
		assert.NotZero(t, d.HTTPStatus, "code %s", code)
		assert.NotEmpty(t, d.UserTitle, "code %s", code)
		assert.NotEmpty(t, d.UserMessage, "code %s", code)
	}

	// Unknown codes degrade to the generic upstream descriptor.
	fallback := table.Lookup(Code("NO_SUCH_CODE"))
	assert.Equal(t, table[CodeUpstreamError], fallback)
}
