package service

import (
	"fmt"
	"strings"
)

// RateLimitError is a sentinel error used to signal that the backend
// rejected a request for rate-limiting reasons. Cascade dispatch recognizes
// it and suppresses it from user-facing surfaces.
type RateLimitError struct {
	Detail string
}

func (e *RateLimitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rate limited by backend: %s", e.Detail)
	}
	return "rate limited by backend"
}

// IsRateLimitError reports whether err signals backend rate limiting,
// either as a typed *RateLimitError or as a provider error mentioning
// HTTP 429 / "rate limit" in its message.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*RateLimitError); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// StreamNotFoundError is returned by operations that require an existing
// registry entry when the id is unknown or already removed.
type StreamNotFoundError struct {
	StreamID string
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream not found: %s", e.StreamID)
}

func IsStreamNotFoundError(err error) bool {
	switch err.(type) {
	case *StreamNotFoundError:
		return true
	default:
		return false
	}
}
