package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodproxy"
	"foodproxy/pipeline"
)

type stubRunner struct {
	result pipeline.Result
	rc     foodproxy.RequestContext
	input  pipeline.Input
	calls  int
}

func (s *stubRunner) Run(ctx context.Context, rc foodproxy.RequestContext, in pipeline.Input) pipeline.Result {
	s.calls++
	s.rc = rc
	s.input = in
	return s.result
}

func successResult(traceID string) pipeline.Result {
	return pipeline.Result{
		HTTPStatus: http.StatusOK,
		Success: &pipeline.SuccessResponse{
			Status:     "success",
			IsFood:     true,
			Confidence: 0.9,
			GateReason: "plated meal",
			TraceID:    traceID,
			Result: pipeline.RecognitionResult{
				Items: []foodproxy.NutritionItem{
					{Name: "борщ", Grams: 300, Kcal: 150, Protein: 5, Fat: 6, Carbohydrates: 18},
				},
				Total: foodproxy.NutritionTotals{Kcal: 150, Protein: 5, Fat: 6, Carbohydrates: 18},
			},
		},
	}
}

func errorResult(code pipeline.Code) pipeline.Result {
	d := pipeline.DefaultDescriptors().Lookup(code)
	return pipeline.Result{
		HTTPStatus: d.HTTPStatus,
		Error: &pipeline.ErrorResponse{
			Status:      "error",
			ErrorCode:   code,
			UserTitle:   d.UserTitle,
			UserMessage: d.UserMessage,
			UserActions: d.UserActions,
			AllowRetry:  d.AllowRetry,
		},
	}
}

func newTestServer(runner Runner, legacy bool) *httptest.Server {
	cfg := foodproxy.ServerConfig{
		Addr:          ":0",
		ProxySecret:   "test-secret",
		MaxImageBytes: 4 << 20,
		LegacyHTTP200: legacy,
	}
	return httptest.NewServer(New(cfg, runner, pipeline.DefaultDescriptors()).Handler())
}

func multipartBody(t *testing.T, image []byte, mimeType string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if image != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func postRecognize(t *testing.T, ts *httptest.Server, body io.Reader, contentType string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/ai/recognize-food", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", "test-secret")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&stubRunner{}, false)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1, 2}, "image/jpeg", nil)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/ai/recognize-food", buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", "wrong-secret")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Invalid or missing API key", body["detail"])
	assert.Zero(t, runner.calls)
}

func TestRecognizeHappyPath(t *testing.T) {
	runner := &stubRunner{result: successResult("trace-1")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{0xFF, 0xD8, 0xFF}, "image/jpeg", map[string]string{
		"user_comment": "курица 150 г",
		"locale":       "en",
	})
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body pipeline.SuccessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Len(t, body.Result.Items, 1)

	require.Equal(t, 1, runner.calls)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, runner.input.Image)
	assert.Equal(t, "image/jpeg", runner.input.MimeType)
	assert.Equal(t, "курица 150 г", runner.input.UserComment)
	assert.Equal(t, "en", runner.input.Locale)
}

func TestRecognizeDefaultLocale(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1}, "image/png", nil)
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, "ru", runner.input.Locale)
}

func TestTraceIDPropagation(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1}, "image/jpeg", nil)
	resp := postRecognize(t, ts, buf, contentType, map[string]string{"X-Request-ID": "req-42"})
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "req-42", runner.rc.TraceID)
}

func TestTraceIDGenerated(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1}, "image/jpeg", nil)
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, resp.Header.Get("X-Request-ID"), runner.rc.TraceID)
}

func TestErrorStatusPassthrough(t *testing.T) {
	runner := &stubRunner{result: errorResult(pipeline.CodeLowConfidence)}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1}, "image/jpeg", nil)
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body pipeline.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, pipeline.CodeLowConfidence, body.ErrorCode)
}

func TestLegacyHTTP200Mode(t *testing.T) {
	// Legacy clients get HTTP 200 for errors; the body stays authoritative.
	runner := &stubRunner{result: errorResult(pipeline.CodeUnsupportedContent)}
	ts := newTestServer(runner, true)
	defer ts.Close()

	buf, contentType := multipartBody(t, []byte{1}, "image/jpeg", nil)
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body pipeline.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, pipeline.CodeUnsupportedContent, body.ErrorCode)
}

func TestMissingImagePart(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	ts := newTestServer(runner, false)
	defer ts.Close()

	buf, contentType := multipartBody(t, nil, "", map[string]string{"user_comment": "no photo"})
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body pipeline.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, pipeline.CodeInvalidImage, body.ErrorCode)
	assert.Zero(t, runner.calls)
}

func TestOversizedUploadRejected(t *testing.T) {
	runner := &stubRunner{result: successResult("t")}
	cfg := foodproxy.ServerConfig{
		Addr:          ":0",
		ProxySecret:   "test-secret",
		MaxImageBytes: 10,
	}
	ts := httptest.NewServer(New(cfg, runner, pipeline.DefaultDescriptors()).Handler())
	defer ts.Close()

	// Body must exceed the image limit plus the multipart overhead slack.
	huge := make([]byte, 2<<20)
	buf, contentType := multipartBody(t, huge, "image/jpeg", nil)
	resp := postRecognize(t, ts, buf, contentType, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var body pipeline.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, pipeline.CodeImageTooLarge, body.ErrorCode)
	assert.Zero(t, runner.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(&stubRunner{}, false)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/v1/ai/recognize-food")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
