package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

// classifyStatus maps a non-2xx HTTP response onto the failure taxonomy.
// The body is not consumed here; callers close it.
func classifyStatus(sourceName, endpoint string, resp *http.Response) *apperrors.Error {
	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return apperrors.NewRateLimit(sourceName+" rate limit exceeded", retryAfter).
			WithContext(apperrors.CtxEndpoint, endpoint).
			WithContext(apperrors.CtxStatusCode, status).
			WithContext(apperrors.CtxSource, sourceName)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.NewAuthentication(sourceName+" authentication failed", sourceName, "").
			WithContext(apperrors.CtxEndpoint, endpoint).
			WithContext(apperrors.CtxStatusCode, status)
	case status >= 500:
		return apperrors.NewConnection(sourceName+" server error", endpoint, status)
	case status == http.StatusNotFound:
		return apperrors.NewDataRetrieval(sourceName+" resource not found", nil, status).
			WithContext(apperrors.CtxEndpoint, endpoint)
	default:
		return apperrors.NewDataRetrieval(sourceName+" request rejected", nil, status).
			WithContext(apperrors.CtxEndpoint, endpoint)
	}
}

// classifyTransport maps a transport-level failure (no HTTP response) onto
// the taxonomy. Timeouts and refused connections are retryable Connection
// failures; context cancellation passes through untouched.
func classifyTransport(sourceName, endpoint string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.KindConnection, err, sourceName+" request timed out").
			WithContext(apperrors.CtxEndpoint, endpoint)
	}
	return apperrors.Wrap(apperrors.KindConnection, err, "failed to reach "+sourceName).
		WithContext(apperrors.CtxEndpoint, endpoint)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
