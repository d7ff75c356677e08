package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// BridgeError represents an error that can be returned to clients at the
// HTTP edge (unknown route, bad method, unreadable body). The router core
// itself reports failures through message.Response, never through panics.
type BridgeError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	underlying error
}

func (e *BridgeError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
// For base errors (no details), uses pre-serialized JSON to avoid allocations.
func (e *BridgeError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Common errors
var (
	ErrNotFound = &BridgeError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrMethodNotAllowed = &BridgeError{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
	}

	ErrUnauthorized = &BridgeError{
		Code:    http.StatusUnauthorized,
		Message: "Unauthorized",
	}

	ErrTooManyRequests = &BridgeError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
	}

	ErrBadRequest = &BridgeError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrRequestTimeout = &BridgeError{
		Code:    http.StatusRequestTimeout,
		Message: "Request Timeout",
	}

	ErrInternalServer = &BridgeError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*BridgeError][]byte

func init() {
	bases := []*BridgeError{
		ErrNotFound, ErrMethodNotAllowed, ErrUnauthorized,
		ErrTooManyRequests, ErrBadRequest, ErrRequestTimeout,
		ErrInternalServer,
	}
	preSerialized = make(map[*BridgeError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new BridgeError
func New(code int, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code int, message string) *BridgeError {
	return &BridgeError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails adds details to the error
func (e *BridgeError) WithDetails(details string) *BridgeError {
	return &BridgeError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		underlying: e.underlying,
	}
}

// IsBridgeError checks if an error is a BridgeError
func IsBridgeError(err error) (*BridgeError, bool) {
	if be, ok := err.(*BridgeError); ok {
		return be, true
	}
	return nil, false
}
