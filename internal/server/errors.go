package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

type errorEnvelope struct {
	Error     map[string]any `json:"error"`
	RequestID string         `json:"request_id,omitempty"`
}

// writeError maps a taxonomy error onto an HTTP response. Rate limit
// errors carry a Retry-After header when the upstream provided one.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(apperrors.KindConnection, err, "request failed")
	}

	status := statusForKind(appErr.Kind)
	if appErr.Kind == apperrors.KindRateLimit {
		if retryAfter, ok := appErr.RetryAfter(); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
		}
	}

	s.logger.Warn("request failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("kind", string(appErr.Kind)),
		zap.Int("status", status),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:     appErr.ToMap(),
		RequestID: GetRequestID(r.Context()),
	})
}

// writeErrorStatus writes a fixed-status error that did not come from
// the taxonomy (404, 405, panics).
func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: map[string]any{
			"kind":    kind,
			"message": message,
		},
		RequestID: GetRequestID(r.Context()),
	})
}

// statusForKind maps error kinds to HTTP status codes. Authentication
// and connection failures are upstream problems, so they surface as 502.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindRateLimit:
		return http.StatusTooManyRequests
	case apperrors.KindAuthentication:
		return http.StatusBadGateway
	case apperrors.KindConnection:
		return http.StatusBadGateway
	case apperrors.KindDataRetrieval:
		return http.StatusNotFound
	case apperrors.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
