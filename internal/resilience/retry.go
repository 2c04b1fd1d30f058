package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

// Policy is the immutable retry configuration shared by all invocations of
// an Executor. Attempt 1 is the original call; MaxAttempts-1 retries may
// follow.
type Policy struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	JitterFraction float64
	RetryableKinds map[apperrors.Kind]bool
}

// DefaultPolicy mirrors the conservative defaults the data sources ship
// with: three attempts, exponential backoff from one second capped at
// thirty, a tenth of jitter, retrying connection and throttling failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
		JitterFraction: 0.1,
		RetryableKinds: map[apperrors.Kind]bool{
			apperrors.KindConnection: true,
			apperrors.KindRateLimit:  true,
		},
	}
}

// Retryable reports whether failures of the given kind may be re-attempted.
func (p Policy) Retryable(kind apperrors.Kind) bool {
	return p.RetryableKinds[kind]
}

// BaseDelay returns the pre-jitter backoff for the given attempt number
// (1-based): min(BackoffBase * 2^(attempt-1), BackoffMax).
func (p Policy) BaseDelay(attempt int) time.Duration {
	if p.BackoffBase <= 0 || attempt < 1 {
		return 0
	}
	delay := p.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.BackoffMax > 0 && delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}

// Executor runs fallible operations under a Policy, consulting the Limiter
// before every attempt. The zero value is usable: it runs one attempt with
// no admission control.
type Executor struct {
	Limiter *Limiter
	Policy  Policy
	Logger  *zap.Logger

	// Clock, Sleep and Rand exist for tests; nil means real time and
	// math/rand jitter.
	Clock func() time.Time
	Sleep func(context.Context, time.Duration) error
	Rand  func() float64

	// OnAttempt, when set, receives every attempt record as it happens.
	// It must not block; it exists for metrics collection.
	OnAttempt func(operation string, rec AttemptRecord)
}

// Execute runs work under the executor's policy and returns the final
// error after retries are exhausted or a non-retryable failure occurs.
func (e *Executor) Execute(ctx context.Context, operation string, work func(context.Context) error) error {
	_, err := ExecuteValue(ctx, e, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}

// ExecuteValue is Execute for operations that produce a value. It is a
// package function because Go methods cannot be generic.
func ExecuteValue[T any](ctx context.Context, e *Executor, operation string, work func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if e == nil {
		e = &Executor{}
	}

	maxAttempts := e.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	op := Begin(operation)
	op.Clock = e.Clock
	op.Start = e.now()
	logger := e.logger()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		// Every attempt consumes a rate limit slot, retries included.
		if err := e.Limiter.Acquire(ctx); err != nil {
			return zero, err
		}

		start := e.now()
		value, err := work(ctx)
		rec := AttemptRecord{Attempt: attempt, Err: err, Duration: e.now().Sub(start)}
		op.Record(rec.Attempt, rec.Err, rec.Duration)
		if e.OnAttempt != nil {
			e.OnAttempt(operation, rec)
		}

		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", op.Fields()...)
			}
			op.Finish()
			return value, nil
		}
		lastErr = err

		kind := apperrors.KindOf(err)
		if !e.Policy.Retryable(kind) {
			logger.Debug("operation failed, not retryable",
				zap.String("operation", operation),
				zap.String("kind", string(kind)),
				zap.Int("attempt", attempt),
			)
			break
		}
		if attempt == maxAttempts {
			logger.Warn("operation failed, retries exhausted", op.Fields()...)
			break
		}

		delay := e.delayFor(err, attempt)
		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	op.Finish()
	return zero, e.finalize(lastErr, op)
}

// delayFor computes the wait before the next attempt. A server-provided
// Retry-After hint wins over the exponential formula and is honored
// verbatim.
func (e *Executor) delayFor(err error, attempt int) time.Duration {
	if typed, ok := apperrors.As(err); ok {
		if hint, ok := typed.RetryAfter(); ok {
			return hint
		}
	}

	delay := e.Policy.BaseDelay(attempt)
	if jitter := e.Policy.JitterFraction; jitter > 0 && delay > 0 {
		delay = time.Duration(float64(delay) * (1 + e.random()*jitter))
	}
	return delay
}

// finalize enriches the terminal error with the attempt history so a
// caller can tell "gave up after retrying" from "failed immediately".
func (e *Executor) finalize(err error, op *OpContext) error {
	if err == nil {
		return nil
	}
	if typed, ok := apperrors.As(err); ok {
		typed.WithContext(apperrors.CtxAttempt, op.AttemptCount())
		typed.WithContext("operation_id", op.ID)
		return typed
	}
	return apperrors.Wrap(apperrors.KindConnection, err, "operation failed").
		WithContext(apperrors.CtxAttempt, op.AttemptCount()).
		WithContext("operation_id", op.ID)
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (e *Executor) random() float64 {
	if e.Rand != nil {
		return e.Rand()
	}
	return rand.Float64()
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}
