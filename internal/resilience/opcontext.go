package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

// AttemptRecord captures the outcome of one attempt of a logical operation.
type AttemptRecord struct {
	Attempt  int
	Err      error
	Duration time.Duration
}

// OpContext correlates all attempts of one logical call for logging. It is
// purely diagnostic: recording never fails and never affects control flow.
type OpContext struct {
	ID    string
	Name  string
	Start time.Time

	Clock func() time.Time

	mu       sync.Mutex
	attempts []AttemptRecord
	end      time.Time
}

// Begin opens an operation context with a fresh operation ID.
func Begin(name string) *OpContext {
	op := &OpContext{
		ID:   uuid.New().String(),
		Name: name,
	}
	op.Start = op.now()
	return op
}

// Record appends one attempt outcome. Safe on a nil receiver; any internal
// failure is swallowed so diagnostics can never sink a primary operation.
func (o *OpContext) Record(attempt int, err error, duration time.Duration) {
	if o == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, AttemptRecord{
		Attempt:  attempt,
		Err:      err,
		Duration: duration,
	})
}

// Finish stamps the end of the operation and returns its total duration.
func (o *OpContext) Finish() time.Duration {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.end = o.now()
	return o.end.Sub(o.Start)
}

// Attempts returns a copy of the attempt history.
func (o *OpContext) Attempts() []AttemptRecord {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]AttemptRecord, len(o.attempts))
	copy(out, o.attempts)
	return out
}

// AttemptCount returns the number of recorded attempts.
func (o *OpContext) AttemptCount() int {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.attempts)
}

// Fields renders the context as structured log fields: one entry per
// attempt with its taxonomy kind and duration.
func (o *OpContext) Fields() []zap.Field {
	if o == nil {
		return nil
	}

	attempts := o.Attempts()
	kinds := make([]string, 0, len(attempts))
	durations := make([]time.Duration, 0, len(attempts))
	for _, rec := range attempts {
		if rec.Err == nil {
			kinds = append(kinds, "success")
		} else {
			kinds = append(kinds, string(apperrors.KindOf(rec.Err)))
		}
		durations = append(durations, rec.Duration)
	}

	return []zap.Field{
		zap.String("operation_id", o.ID),
		zap.String("operation", o.Name),
		zap.Int("attempts", len(attempts)),
		zap.Strings("attempt_kinds", kinds),
		zap.Durations("attempt_durations", durations),
	}
}

func (o *OpContext) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
