package foodproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// NewLogger builds the process-wide JSON slog logger.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// RequestLogger is the interface for per-request audit logging.
type RequestLogger interface {
	LogRequest(entry RequestLog) error
}

// NewRequestLogFilePath returns a file path based on a cleaned up model name or id to make it easier to identify logs produced with various models.
func NewRequestLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(model), ":", "_"),
	)
}

// RequestLog records one recognition request end to end.
type RequestLog struct {
	TraceID        string    `json:"trace_id"`
	Timestamp      time.Time `json:"timestamp"`
	Locale         string    `json:"locale,omitempty"`
	ImageBytes     int       `json:"image_bytes"`
	GateIsFood     *bool     `json:"gate_is_food,omitempty"`
	GateConfidence *float64  `json:"gate_confidence,omitempty"`
	GateReason     string    `json:"gate_reason,omitempty"`
	ItemCount      int       `json:"item_count"`
	TotalKcal      float64   `json:"total_kcal"`
	ErrorCode      string    `json:"error_code,omitempty"`
	Error          string    `json:"error,omitempty"`
	DurationMS     float64   `json:"duration_ms"`
}

// FileRequestLogger logs to a file, accumulating entries and flushing at the
// end. Safe for concurrent use: every HTTP handler goroutine logs through the
// same instance.
type FileRequestLogger struct {
	mu      sync.Mutex
	entries []RequestLog
	writer  io.Writer
}

// NewFileRequestLogger creates a new file-based request logger.
func NewFileRequestLogger(writer io.Writer) *FileRequestLogger {
	return &FileRequestLogger{
		entries: make([]RequestLog, 0),
		writer:  writer,
	}
}

// LogRequest buffers an entry (does not flush immediately).
func (frl *FileRequestLogger) LogRequest(entry RequestLog) error {
	frl.mu.Lock()
	defer frl.mu.Unlock()
	frl.entries = append(frl.entries, entry)
	return nil
}

// Flush writes all accumulated entries to the writer.
func (frl *FileRequestLogger) Flush() error {
	frl.mu.Lock()
	defer frl.mu.Unlock()

	if frl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"recognition_session": map[string]any{
			"timestamp": time.Now(),
			"requests":  frl.entries,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal request log: %w", err)
	}

	if _, err := frl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write request log: %w", err)
	}

	frl.entries = frl.entries[:0]
	return nil
}

// NoOpRequestLogger discards all entries.
type NoOpRequestLogger struct{}

func NewNoOpRequestLogger() *NoOpRequestLogger {
	return &NoOpRequestLogger{}
}

func (nop *NoOpRequestLogger) LogRequest(entry RequestLog) error {
	return nil
}

// StdoutRequestLogger writes each entry as a JSON line to stdout (for Lambda/CloudWatch).
type StdoutRequestLogger struct{}

func NewStdoutRequestLogger() *StdoutRequestLogger {
	return &StdoutRequestLogger{}
}

func (l *StdoutRequestLogger) LogRequest(entry RequestLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
