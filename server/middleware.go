package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"foodproxy"
)

type requestContextKey struct{}

// WithRequestContext stores the per-request context in ctx.
func WithRequestContext(ctx context.Context, rc foodproxy.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom retrieves the per-request context. Handlers behind
// withTraceID always find one; a zero value is returned otherwise.
func RequestContextFrom(ctx context.Context) foodproxy.RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(foodproxy.RequestContext)
	return rc
}

// withTraceID honors an inbound X-Request-ID, generates one otherwise, and
// echoes it on the response so callers can correlate logs.
func (s *Server) withTraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = foodproxy.NewTraceID()
		}
		w.Header().Set("X-Request-ID", traceID)
		rc := foodproxy.RequestContext{TraceID: traceID}
		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		rc := RequestContextFrom(r.Context())
		slog.Info("SERVER: request completed",
			"trace_id", rc.TraceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP(r),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
