package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrInvalidOutput = errors.New("model output does not match the review schema")

// APIError is a failed call to the chat endpoint. StatusCode is zero when no
// response was received.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		e.Message = payload.Error.Message
		e.Code = payload.Error.Code
		if e.Code == "" {
			e.Code = payload.Error.Type
		}
	}
	return e
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat completion failed: %v", e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("chat completion failed with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports throttling, exhausted quota and unavailable upstreams.
// Transport errors without a response are retryable too.
func (e *APIError) Retryable() bool {
	if e.Code == "insufficient_quota" {
		return true
	}
	switch e.StatusCode {
	case 0:
		return e.Err != nil
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err carries a retryable APIError.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
