package publishers

import (
	"encoding/json"
	"errors"
	"fmt"

	"PostPilotAPI/models"
)

// ValidationError reports bad input detected before any network call.
// The handler layer maps these to 400-class responses.
type ValidationError struct {
	Platform models.Platform
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Platform, e.Reason)
}

// UpstreamError carries a platform's own error message for a non-2xx
// response. Upstream errors are never retried.
type UpstreamError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform, e.StatusCode, e.Message)
}

// MaxRetriesExceededError is returned when fetchWithRetry exhausts its
// attempts without a single timeout-free request.
type MaxRetriesExceededError struct {
	Attempts int
	Last     error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("request timed out after %d attempts: %v", e.Attempts, e.Last)
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.Last }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// graphErrorMessage extracts the human-readable message from a Graph-style
// error body: {"error": {"message": "...", "code": N}}. Falls back to the
// raw body so upstream detail is never dropped.
func graphErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}
