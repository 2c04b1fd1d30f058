package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

func newTestExecutor(t *testing.T, sleeps *[]time.Duration) *Executor {
	t.Helper()
	clock := newFakeClock()
	return &Executor{
		Policy: DefaultPolicy(),
		Clock:  clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			clock.Advance(d)
			return nil
		},
		Rand: func() float64 { return 0 },
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	calls := 0
	value, err := ExecuteValue(context.Background(), e, "test.op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.Equal(t, 1, calls)
	require.Empty(t, sleeps)
}

func TestExecuteRetriesConnectionFailures(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	calls := 0
	value, err := ExecuteValue(context.Background(), e, "test.op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.NewConnection("server unavailable", "https://example.test", 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 3, calls)

	// Exponential backoff with zero jitter: 1s then 2s.
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestExecuteNonRetryableFailsFast(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		return apperrors.NewValidation("bad variable", "variables", "alphanumeric", "???")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, sleeps)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	typed, ok := apperrors.As(err)
	require.True(t, ok)
	attempts, ok := typed.ContextValue(apperrors.CtxAttempt)
	require.True(t, ok)
	require.Equal(t, 1, attempts)
}

func TestExecuteHonorsRetryAfterHint(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.NewRateLimit("throttled", 5*time.Second)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	// The server hint is honored verbatim, not fed into the backoff formula.
	require.Equal(t, []time.Duration{5 * time.Second}, sleeps)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		return apperrors.NewConnection("server unavailable", "https://example.test", 502)
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, sleeps, 2)
	require.True(t, apperrors.IsKind(err, apperrors.KindConnection))

	typed, ok := apperrors.As(err)
	require.True(t, ok)
	attempts, ok := typed.ContextValue(apperrors.CtxAttempt)
	require.True(t, ok)
	require.Equal(t, 3, attempts)
	opID, ok := typed.ContextValue("operation_id")
	require.True(t, ok)
	require.NotEmpty(t, opID)
}

func TestExecuteWrapsForeignErrors(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	cause := errors.New("connection reset by peer")
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		return cause
	})
	require.Error(t, err)

	// Unclassified errors are treated as connection failures, so they
	// retried to exhaustion and unwrap to the original cause.
	require.Len(t, sleeps, 2)
	require.True(t, apperrors.IsKind(err, apperrors.KindConnection))
	require.ErrorIs(t, err, cause)
}

func TestExecuteContextCancelled(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Execute(ctx, "test.op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestExecuteEveryAttemptConsumesSlot(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(10, time.Minute)
	limiter.Clock = clock.Now

	var sleeps []time.Duration
	e := &Executor{
		Limiter: limiter,
		Policy:  DefaultPolicy(),
		Clock:   clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
		Rand: func() float64 { return 0 },
	}

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewConnection("flaky", "https://example.test", 500)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, limiter.Status().Used)
}

func TestExecuteOnAttemptHook(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)

	var recorded []AttemptRecord
	e.OnAttempt = func(operation string, rec AttemptRecord) {
		require.Equal(t, "test.op", operation)
		recorded = append(recorded, rec)
	}

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.NewConnection("flaky", "https://example.test", 500)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	require.Error(t, recorded[0].Err)
	require.NoError(t, recorded[1].Err)
	require.Equal(t, 2, recorded[1].Attempt)
}

func TestPolicyBaseDelayCapped(t *testing.T) {
	p := Policy{MaxAttempts: 5, BackoffBase: time.Second, BackoffMax: 4 * time.Second}

	require.Equal(t, time.Second, p.BaseDelay(1))
	require.Equal(t, 2*time.Second, p.BaseDelay(2))
	require.Equal(t, 4*time.Second, p.BaseDelay(3))
	require.Equal(t, 4*time.Second, p.BaseDelay(4))
	require.Equal(t, 4*time.Second, p.BaseDelay(5))
}

func TestJitterUpperBound(t *testing.T) {
	var sleeps []time.Duration
	e := newTestExecutor(t, &sleeps)
	e.Rand = func() float64 { return 1.0 }

	calls := 0
	err := e.Execute(context.Background(), "test.op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.NewConnection("flaky", "https://example.test", 500)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, sleeps, 1)

	// Full jitter at 10%: 1s * 1.1.
	require.Equal(t, 1100*time.Millisecond, sleeps[0])
}

func TestDefaultPolicyRetryableKinds(t *testing.T) {
	p := DefaultPolicy()
	require.True(t, p.Retryable(apperrors.KindConnection))
	require.True(t, p.Retryable(apperrors.KindRateLimit))
	require.False(t, p.Retryable(apperrors.KindValidation))
	require.False(t, p.Retryable(apperrors.KindAuthentication))
	require.False(t, p.Retryable(apperrors.KindDataRetrieval))
	require.False(t, p.Retryable(apperrors.KindConfiguration))
}
