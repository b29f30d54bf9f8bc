package agent

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoChoices is returned when a completion response carries no choices.
	ErrNoChoices = errors.New("completion response has no choices")

	// ErrToolLoop is returned when the model keeps calling tools past the
	// configured iteration limit.
	ErrToolLoop = errors.New("too many consecutive tool calls")

	// ErrUnknownTool is returned when a call names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrInvalidArguments is returned when tool arguments do not decode.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrInvalidBaseURL is returned for a base URL that is not absolute http(s).
	ErrInvalidBaseURL = errors.New("invalid base URL")
)

// APIError is a non-2xx response from the chat completions endpoint.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider error type, if reported.
	Type string

	// Message is the provider error message or the raw body.
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("chat API error: status=%d type=%s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("chat API error: status=%d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
