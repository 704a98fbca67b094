// Package coerce repairs and validates loosely-structured model output into
// the strict internal data model. It never panics and never returns opaque
// failures: every malformed input is classified, not crashed on.
package coerce

import (
	"encoding/json"
	"strings"
)

// Repair extracts and mends the canonical JSON portion of raw model text.
// Tolerated defects: a markdown code fence (the designated marker -- only
// text after it counts), a free-text preamble before the first brace,
// trailing commas, unterminated strings, and unbalanced brackets at the end.
// The result is best-effort; callers must still validate the parsed value.
func Repair(raw string) string {
	candidate := extractCandidate(raw)
	if candidate == "" {
		return ""
	}

	var (
		out     []byte
		stack   []byte
		inStr   bool
		escaped bool
		lastSig = -1 // index in out of the last significant (non-space) byte
	)

	push := func(b byte) {
		out = append(out, b)
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			lastSig = len(out) - 1
		}
	}

	for i := 0; i < len(candidate); i++ {
		b := candidate[i]

		if inStr {
			push(b)
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inStr = false
			}
			continue
		}

		switch b {
		case '"':
			inStr = true
			push(b)
		case '{':
			stack = append(stack, '}')
			push(b)
		case '[':
			stack = append(stack, ']')
			push(b)
		case '}', ']':
			if len(stack) == 0 {
				continue // stray closer, drop it
			}
			dropTrailingComma(&out, &lastSig)
			push(b)
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return string(out) // root closed; drop trailing prose
			}
		default:
			push(b)
		}
	}

	// Truncated input: close the open string, trim a dangling comma, then
	// close every open bracket.
	if inStr {
		push('"')
	}
	dropTrailingComma(&out, &lastSig)
	for i := len(stack) - 1; i >= 0; i-- {
		push(stack[i])
	}
	return string(out)
}

func dropTrailingComma(out *[]byte, lastSig *int) {
	if *lastSig >= 0 && (*out)[*lastSig] == ',' {
		*out = append((*out)[:*lastSig], (*out)[*lastSig+1:]...)
		*lastSig = -1
		for i := len(*out) - 1; i >= 0; i-- {
			b := (*out)[i]
			if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
				*lastSig = i
				break
			}
		}
	}
}

// extractCandidate returns the slice of raw most likely to hold the JSON
// value: the content of the first code fence when present, else everything
// from the first opening brace or bracket.
func extractCandidate(raw string) string {
	s := raw
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	switch {
	case obj < 0 && arr < 0:
		return ""
	case obj < 0:
		return s[arr:]
	case arr < 0 || obj < arr:
		return s[obj:]
	default:
		return s[arr:]
	}
}

// Object repairs raw and returns its root as a JSON object. ok is false when
// the repaired root is not an object: a bare string, an array, or
// unrepairable garbage.
func Object(raw string) (map[string]any, bool) {
	repaired := Repair(raw)
	if repaired == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}
