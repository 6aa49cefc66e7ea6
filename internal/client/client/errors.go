package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Code classifies a failure at the service boundary.
type Code string

const (
	CodeNetwork      Code = "NETWORK_ERROR"
	CodeTimeout      Code = "TIMEOUT_ERROR"
	CodeFileTooLarge Code = "FILE_TOO_LARGE"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeRateLimit    Code = "RATE_LIMIT"
	CodeServer       Code = "SERVER_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeUnknown      Code = "UNKNOWN_ERROR"
)

// Sentinels that match any *APIError with the same code via errors.Is.
var (
	ErrNetwork      = &APIError{Code: CodeNetwork}
	ErrTimeout      = &APIError{Code: CodeTimeout}
	ErrFileTooLarge = &APIError{Code: CodeFileTooLarge}
	ErrBadRequest   = &APIError{Code: CodeBadRequest}
	ErrRateLimit    = &APIError{Code: CodeRateLimit}
	ErrServer       = &APIError{Code: CodeServer}
	ErrUnauthorized = &APIError{Code: CodeUnauthorized}
	ErrUnknown      = &APIError{Code: CodeUnknown}

	// ErrNotFound matches responses with HTTP 404.
	ErrNotFound = errors.New("not found")
)

// ErrorDetail is the structured body the service sends for rejected uploads.
type ErrorDetail struct {
	Error      string  `json:"error"`
	Message    string  `json:"message,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	FileSizeMB float64 `json:"file_size_mb,omitempty"`
	MaxSizeMB  float64 `json:"max_size_mb,omitempty"`
}

// APIError is the single error type returned by HTTPClient.
type APIError struct {
	Code    Code
	Message string
	Status  int
	Detail  *ErrorDetail
	Err     error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches sentinels by code, and ErrNotFound by status.
func (e *APIError) Is(target error) bool {
	if target == ErrNotFound {
		return e.Status == http.StatusNotFound
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Status == 0 && t.Message == ""
}

// Title is a short heading for the failure.
func (e *APIError) Title() string {
	switch e.Code {
	case CodeNetwork:
		return "Network connection error"
	case CodeTimeout:
		return "Request timed out"
	case CodeFileTooLarge:
		return "File too large"
	case CodeBadRequest:
		return "Invalid file"
	case CodeRateLimit:
		return "Too many requests"
	case CodeServer:
		return "Server error"
	case CodeUnauthorized:
		return "Access denied"
	}
	return "Upload failed"
}

// NextStep tells the user what to do about the failure.
func (e *APIError) NextStep() string {
	switch e.Code {
	case CodeNetwork:
		return "Check your Wi-Fi or mobile data connection and try again."
	case CodeTimeout:
		return "The connection is slow. Wait a moment and try again."
	case CodeFileTooLarge:
		return "Files up to 10MB are supported. Try a smaller file."
	case CodeBadRequest:
		return "Only PDF files can be uploaded. Pick a valid PDF."
	case CodeRateLimit:
		return "Wait a minute before retrying."
	case CodeServer:
		return "The service has a temporary problem. Try again later."
	case CodeUnauthorized:
		return "Start a new session and try again."
	}
	return "Something went wrong. Try again."
}

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	switch e.Code {
	case CodeNetwork, CodeTimeout, CodeServer, CodeRateLimit, CodeUnknown:
		return true
	}
	return false
}

// classifyTransport maps a failure of http.Client.Do.
func classifyTransport(err error) *APIError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &APIError{Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{Code: CodeNetwork, Message: "network request failed", Err: err}
}

// classifyResponse maps a non-2xx response. body may be empty.
func classifyResponse(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	e.Detail, e.Message = parseErrorBody(body)

	switch {
	case status == http.StatusRequestEntityTooLarge:
		e.Code = CodeFileTooLarge
	case e.Detail != nil && e.Detail.Error == "FILE_SIZE_EXCEEDED":
		e.Code = CodeFileTooLarge
	case status == http.StatusBadRequest, status == http.StatusUnsupportedMediaType, status == http.StatusUnprocessableEntity:
		e.Code = CodeBadRequest
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Code = CodeUnauthorized
	case status == http.StatusRequestTimeout:
		e.Code = CodeTimeout
	case status >= 500:
		e.Code = CodeServer
	default:
		e.Code = CodeUnknown
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// parseErrorBody accepts {"detail": {...}}, {"detail": "text"} and plain text.
func parseErrorBody(body []byte) (*ErrorDetail, string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, ""
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return nil, trimmed
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return nil, text
	}

	var d ErrorDetail
	if err := json.Unmarshal(envelope.Detail, &d); err == nil {
		msg := d.Message
		if msg == "" {
			msg = d.Error
		}
		return &d, msg
	}
	return nil, trimmed
}
