// Package errors defines the failure taxonomy shared by the data source
// clients, the resilience layer, and the CLI. Every failure surfaced to a
// caller is an *Error with a stable Kind; retry decisions switch on the
// Kind, never on the concrete Go type.
package errors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a failure. The set is closed: downstream code is allowed
// to switch exhaustively over these values.
type Kind string

const (
	// KindConnection covers unreachable hosts, timeouts, and 5xx responses.
	KindConnection Kind = "connection"

	// KindRateLimit covers remote throttling (HTTP 429 and friends).
	KindRateLimit Kind = "rate_limit"

	// KindAuthentication covers invalid or missing credentials.
	KindAuthentication Kind = "authentication"

	// KindValidation covers malformed caller input.
	KindValidation Kind = "validation"

	// KindDataRetrieval covers well-formed requests the source could not
	// satisfy with usable data.
	KindDataRetrieval Kind = "data_retrieval"

	// KindConfiguration covers missing or invalid setup.
	KindConfiguration Kind = "configuration"
)

// Context keys written by the resilience layer and the HTTP clients.
const (
	CtxAttempt           = "attempt"
	CtxEndpoint          = "endpoint"
	CtxStatusCode        = "status_code"
	CtxRetryAfterSeconds = "retry_after_seconds"
	CtxSource            = "source"
	CtxVariables         = "variables"
	CtxField             = "field"
	CtxExpected          = "expected"
	CtxActual            = "actual"
	CtxConfigKey         = "config_key"
	CtxWrapped           = "wrapped_error"
)

// Error is the structured failure record carried through retries and up to
// the caller. Kind is fixed at construction; Context is append-only.
type Error struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	ErrorID    string         `json:"error_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`

	cause error
}

// New creates an Error of the given kind with a fresh error ID.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		ErrorID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Context:   map[string]any{},
	}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind that records the underlying error
// in its context and unwraps to it.
func Wrap(kind Kind, cause error, message string) *Error {
	e := New(kind, message)
	if cause != nil {
		e.cause = cause
		e.Context[CtxWrapped] = cause.Error()
	}
	return e
}

// Error implements the error interface with the kind as a prefix.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithSuggestion attaches an actionable hint and returns the same error.
func (e *Error) WithSuggestion(suggestion string) *Error {
	if e == nil {
		return nil
	}
	e.Suggestion = suggestion
	return e
}

// WithContext appends a key to the error context and returns the same
// error. Existing context entries are never removed.
func (e *Error) WithContext(key string, value any) *Error {
	if e == nil {
		return nil
	}
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// ContextValue reads a context entry.
func (e *Error) ContextValue(key string) (any, bool) {
	if e == nil || e.Context == nil {
		return nil, false
	}
	value, ok := e.Context[key]
	return value, ok
}

// RetryAfter reports the server-provided wait hint, when one was recorded.
func (e *Error) RetryAfter() (time.Duration, bool) {
	value, ok := e.ContextValue(CtxRetryAfterSeconds)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case time.Duration:
		return v, v > 0
	case float64:
		return time.Duration(v * float64(time.Second)), v > 0
	case int:
		return time.Duration(v) * time.Second, v > 0
	case int64:
		return time.Duration(v) * time.Second, v > 0
	default:
		return 0, false
	}
}

// ToMap flattens the error for structured logging and JSON responses.
func (e *Error) ToMap() map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{
		"kind":      string(e.Kind),
		"message":   e.Message,
		"error_id":  e.ErrorID,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.Suggestion != "" {
		out["suggestion"] = e.Suggestion
	}
	if len(e.Context) > 0 {
		ctx := make(map[string]any, len(e.Context))
		for key, value := range e.Context {
			ctx[key] = value
		}
		out["context"] = ctx
	}
	return out
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	for {
		if typed, ok := err.(*Error); ok {
			return typed, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
		if err == nil {
			return nil, false
		}
	}
}

// KindOf reports the taxonomy kind of an error. Errors from outside the
// taxonomy report KindConnection so transient plumbing failures stay
// eligible for retry.
func KindOf(err error) Kind {
	if typed, ok := As(err); ok {
		return typed.Kind
	}
	return KindConnection
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	typed, ok := As(err)
	return ok && typed.Kind == kind
}

// Convenience constructors for the common failure shapes.

// NewConnection records a connectivity failure against an endpoint.
func NewConnection(message, endpoint string, statusCode int) *Error {
	e := New(KindConnection, message)
	if endpoint != "" {
		e.Context[CtxEndpoint] = endpoint
	}
	if statusCode != 0 {
		e.Context[CtxStatusCode] = statusCode
	}
	return e
}

// NewRateLimit records remote throttling, optionally with the server's
// Retry-After hint.
func NewRateLimit(message string, retryAfter time.Duration) *Error {
	e := New(KindRateLimit, message)
	if retryAfter > 0 {
		e.Context[CtxRetryAfterSeconds] = retryAfter.Seconds()
	}
	return e.WithSuggestion("reduce request rate or wait for the limit window to reset")
}

// NewAuthentication records a credential failure for a data source.
func NewAuthentication(message, source, keyHint string) *Error {
	e := New(KindAuthentication, message)
	if source != "" {
		e.Context[CtxSource] = source
	}
	if keyHint != "" {
		e.Context["api_key_hint"] = keyHint
	}
	return e.WithSuggestion("check the API credentials for " + source)
}

// NewValidation records malformed caller input.
func NewValidation(message, field string, expected, actual any) *Error {
	e := New(KindValidation, message)
	if field != "" {
		e.Context[CtxField] = field
	}
	if expected != nil {
		e.Context[CtxExpected] = expected
	}
	if actual != nil {
		e.Context[CtxActual] = actual
	}
	return e
}

// NewDataRetrieval records a request the source answered without usable data.
func NewDataRetrieval(message string, variables []string, statusCode int) *Error {
	e := New(KindDataRetrieval, message)
	if len(variables) > 0 {
		e.Context[CtxVariables] = variables
	}
	if statusCode != 0 {
		e.Context[CtxStatusCode] = statusCode
	}
	return e
}

// NewConfiguration records missing or invalid setup.
func NewConfiguration(message, configKey string) *Error {
	e := New(KindConfiguration, message)
	if configKey != "" {
		e.Context[CtxConfigKey] = configKey
	}
	return e
}
