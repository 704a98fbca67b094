package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"foodproxy/pipeline"
)

// multipartOverhead is slack on top of the image size limit so that the body
// limiter does not reject uploads whose form framing pushes them past the
// raw image budget.
const multipartOverhead = 1 << 20

func (s *Server) recognizeFood(w http.ResponseWriter, r *http.Request) {
	rc := RequestContextFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+multipartOverhead)

	file, header, err := r.FormFile("image")
	if err != nil {
		code := pipeline.CodeInvalidImage
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			code = pipeline.CodeImageTooLarge
		}
		slog.Warn("SERVER: rejected upload", "trace_id", rc.TraceID, "error", err)
		s.writeResult(w, s.errorResult(rc, code))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		code := pipeline.CodeInvalidImage
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			code = pipeline.CodeImageTooLarge
		}
		slog.Warn("SERVER: failed to read upload", "trace_id", rc.TraceID, "error", err)
		s.writeResult(w, s.errorResult(rc, code))
		return
	}

	locale := r.FormValue("locale")
	if locale == "" {
		locale = "ru"
	}

	in := pipeline.Input{
		Image:       image,
		MimeType:    header.Header.Get("Content-Type"),
		UserComment: r.FormValue("user_comment"),
		Locale:      locale,
	}
	s.writeResult(w, s.runner.Run(r.Context(), rc, in))
}
