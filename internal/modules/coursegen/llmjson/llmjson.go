package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const excerptLimit = 240

// ParseError reports a model reply that could not be decoded as the expected JSON value.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("parse model reply: %v", e.Err)
	}
	return fmt.Sprintf("parse model reply: %v (reply starts %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripFence removes a surrounding markdown code fence (``` or ```json, ```markdown, ...)
// and trims whitespace. Text without a leading fence is only trimmed.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (language tag) on the opening fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, " {[\"") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Decode strips any code fence from raw and decodes the remaining JSON into T.
// Trailing content after the first JSON value is rejected.
func Decode[T any](raw string) (T, error) {
	var out T
	body := StripFence(raw)
	if body == "" {
		return out, &ParseError{Err: fmt.Errorf("empty reply")}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&out); err != nil {
		return out, &ParseError{Excerpt: excerpt(body), Err: err}
	}
	if dec.More() {
		return out, &ParseError{Excerpt: excerpt(body), Err: fmt.Errorf("unexpected content after JSON value")}
	}
	return out, nil
}

func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "..."
}
