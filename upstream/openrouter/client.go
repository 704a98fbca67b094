// Package openrouter implements the upstream.Completer contract against an
// OpenRouter-compatible chat-completions API, with bounded retries and
// per-attempt timeouts.
package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"foodproxy"
	"foodproxy/upstream"
)

type Client struct {
	baseURL    string
	apiKey     string
	referer    string
	appTitle   string
	httpClient foodproxy.HTTPClient
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
}

type ClientOpts struct {
	BaseURL    string
	APIKey     string
	Referer    string
	AppTitle   string
	HTTPClient foodproxy.HTTPClient
	// Retry overrides the default policy when MaxAttempts > 0.
	Retry RetryPolicy
}

func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("invalid base URL")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("invalid API key")
	}
	if opts.HTTPClient == nil {
		return nil, fmt.Errorf("invalid HTTP client")
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		referer:    opts.Referer,
		appTitle:   opts.AppTitle,
		httpClient: opts.HTTPClient,
		retry:      retry,
		sleep:      sleepCtx,
	}, nil
}

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type wireMessage struct {
	Role    string            `json:"role"`
	Content []wireContentPart `json:"content"`
}

type wireRequest struct {
	Model          string            `json:"model"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []wireMessage     `json:"messages"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// RawResponse carries the terminal HTTP status and body of one logical call.
type RawResponse struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Complete sends a strict-JSON-mode vision request and returns the model's
// textual completion. All failures surface as *upstream.Error.
func (c *Client) Complete(ctx context.Context, req upstream.Request) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.Image))

	body := wireRequest{
		Model:          req.Model,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []wireMessage{
			{
				Role: "user",
				Content: []wireContentPart{
					{Type: "text", Text: req.Prompt},
					{Type: "image_url", ImageURL: &wireImageURL{URL: dataURL, Detail: req.Detail}},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &upstream.Error{Kind: upstream.KindProtocol, Message: "failed to encode request", Err: err}
	}

	raw, err := c.send(ctx, "/chat/completions", payload, req.Timeout)
	if err != nil {
		return "", err
	}

	if raw.StatusCode != http.StatusOK {
		kind := upstream.KindStatus
		if raw.StatusCode == http.StatusTooManyRequests {
			kind = upstream.KindRateLimit
		}
		slog.Error("UPSTREAM: API error", "status", raw.StatusCode, "body", snippet(raw.Body, 200))
		return "", &upstream.Error{
			Kind:    kind,
			Status:  raw.StatusCode,
			Message: fmt.Sprintf("API returned %d: %s", raw.StatusCode, snippet(raw.Body, 200)),
		}
	}

	var wr wireResponse
	if err := json.Unmarshal(raw.Body, &wr); err != nil {
		slog.Error("UPSTREAM: response is not JSON", "error", err, "body", snippet(raw.Body, 200))
		return "", &upstream.Error{Kind: upstream.KindProtocol, Message: "API returned invalid JSON", Err: err}
	}

	if wr.Usage != nil {
		slog.Info("UPSTREAM: token usage",
			"prompt_tokens", wr.Usage.PromptTokens,
			"completion_tokens", wr.Usage.CompletionTokens,
			"total_tokens", wr.Usage.TotalTokens,
		)
	}

	if len(wr.Choices) == 0 || wr.Choices[0].Message.Content == "" {
		slog.Error("UPSTREAM: unexpected response structure", "body", snippet(raw.Body, 200))
		return "", &upstream.Error{Kind: upstream.KindProtocol, Message: "response missing choices content"}
	}

	return wr.Choices[0].Message.Content, nil
}

// send runs the retry loop. Retryable statuses consume backoff sleeps; the
// last response is returned as-is after the budget is spent so the caller can
// inspect it. Transport failures on the last attempt are returned as errors.
// Non-retryable statuses return immediately without consuming retry budget.
func (c *Client) send(ctx context.Context, path string, payload []byte, timeout time.Duration) (*RawResponse, error) {
	delays := c.retry.delays()
	var lastErr *upstream.Error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		raw, err := c.attempt(ctx, path, payload, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &upstream.Error{Kind: upstream.KindNetwork, Message: "request canceled", Err: ctx.Err()}
			}
			lastErr = classifyTransport(err)
			if attempt == c.retry.MaxAttempts {
				slog.Error("UPSTREAM: request failed after retries", "attempts", attempt, "error", err)
				return nil, lastErr
			}
			delay := delays.NextBackOff()
			slog.Warn("UPSTREAM: request error, retrying",
				"error", err,
				"delay", delay,
				"attempt", attempt,
				"max_attempts", c.retry.MaxAttempts,
			)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, &upstream.Error{Kind: upstream.KindNetwork, Message: "request canceled during backoff", Err: serr}
			}
			continue
		}

		if c.retry.Retryable[raw.StatusCode] {
			if attempt == c.retry.MaxAttempts {
				slog.Error("UPSTREAM: retryable status persists after retries", "status", raw.StatusCode, "attempts", attempt)
				return raw, nil
			}
			delay := delays.NextBackOff()
			slog.Warn("UPSTREAM: retryable status, retrying",
				"status", raw.StatusCode,
				"delay", delay,
				"attempt", attempt,
				"max_attempts", c.retry.MaxAttempts,
			)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, &upstream.Error{Kind: upstream.KindNetwork, Message: "request canceled during backoff", Err: serr}
			}
			continue
		}

		if nonRetryableStatuses[raw.StatusCode] {
			slog.Warn("UPSTREAM: non-retryable status, not retrying", "status", raw.StatusCode, "attempt", attempt)
		}
		return raw, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &upstream.Error{Kind: upstream.KindProtocol, Message: "unexpected retry loop exit"}
}

// attempt performs a single HTTP round-trip with a fresh timeout budget.
func (c *Client) attempt(ctx context.Context, path string, payload []byte, timeout time.Duration) (*RawResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The body reader is re-created per attempt; a consumed reader must never be reused.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.appTitle != "" {
		req.Header.Set("X-Title", c.appTitle)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &RawResponse{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

func classifyTransport(err error) *upstream.Error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &upstream.Error{Kind: upstream.KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &upstream.Error{Kind: upstream.KindTimeout, Message: "request timed out", Err: err}
	}
	return &upstream.Error{Kind: upstream.KindNetwork, Message: "request failed", Err: err}
}

func snippet(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
