package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// Kind partitions upstream failures for the decision layer.
type Kind int

const (
	// KindNetwork is a connection-level failure (refused, reset, DNS).
	KindNetwork Kind = iota
	// KindTimeout is a per-attempt deadline expiry.
	KindTimeout
	// KindRateLimit is an upstream 429 or throttling response.
	KindRateLimit
	// KindStatus is any other non-200 status after retries were exhausted.
	KindStatus
	// KindProtocol is a 200 whose envelope or payload could not be used.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindStatus:
		return "status"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the single error type providers surface. Transport and parse
// failures are never downgraded to a success-shaped value; they arrive here.
type Error struct {
	Kind    Kind
	Status  int // HTTP status when Kind is KindStatus or KindRateLimit, else 0
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps any error from an upstream call onto a Kind. Typed errors
// win; message inspection is the fallback for wrapped foreign errors.
func Classify(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "throttl"):
		return KindRateLimit
	default:
		return KindNetwork
	}
}
