// Package server exposes the recognition pipeline over HTTP: one multipart
// POST endpoint plus a health check, behind API-key auth and trace-id
// propagation middleware.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"foodproxy"
	"foodproxy/pipeline"
)

const recognizePath = "/api/v1/ai/recognize-food"

// Runner is the pipeline as seen by the HTTP layer.
type Runner interface {
	Run(ctx context.Context, rc foodproxy.RequestContext, in pipeline.Input) pipeline.Result
}

type Server struct {
	cfg         foodproxy.ServerConfig
	runner      Runner
	descriptors pipeline.DescriptorTable
	mux         *http.ServeMux
}

func New(cfg foodproxy.ServerConfig, runner Runner, descriptors pipeline.DescriptorTable) *Server {
	s := &Server{
		cfg:         cfg,
		runner:      runner,
		descriptors: descriptors,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("POST "+recognizePath, s.requireAPIKey(http.HandlerFunc(s.recognizeFood)))
	s.mux = mux
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.withTraceID(s.withAccessLog(s.mux))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeResult renders a pipeline result, honoring the legacy flag that
// forces HTTP 200 for error envelopes. The body's status and errorCode stay
// authoritative in that mode.
func (s *Server) writeResult(w http.ResponseWriter, res pipeline.Result) {
	status := res.HTTPStatus
	if res.Error != nil && s.cfg.LegacyHTTP200 {
		status = http.StatusOK
	}
	if res.Success != nil {
		writeJSON(w, status, res.Success)
		return
	}
	writeJSON(w, status, res.Error)
}

// errorResult builds an error envelope for failures detected before the
// pipeline runs (transport-level upload problems).
func (s *Server) errorResult(rc foodproxy.RequestContext, code pipeline.Code) pipeline.Result {
	d := s.descriptors.Lookup(code)
	return pipeline.Result{
		HTTPStatus: d.HTTPStatus,
		Error: &pipeline.ErrorResponse{
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("SERVER: failed to encode response", "error", err)
	}
}
