// Package resilience implements the request admission and retry layer that
// every outbound data source call passes through: a sliding-window rate
// limiter, a kind-aware retry executor, and a per-operation attempt record
// for diagnostics.
package resilience

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most MaxRequests operations per rolling Window. One
// Limiter is shared by all callers hitting the same endpoint; Acquire
// blocks until the window has capacity.
//
// Admission is not FIFO: when a slot frees, any blocked caller may win it.
type Limiter struct {
	MaxRequests int
	Window      time.Duration

	// Clock and Sleep exist for tests; nil means real time.
	Clock func() time.Time
	Sleep func(context.Context, time.Duration) error

	mu       sync.Mutex
	admitted []time.Time
}

// NewLimiter returns a limiter enforcing maxRequests per window.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{MaxRequests: maxRequests, Window: window}
}

// Acquire blocks until the caller may issue the next request, then records
// the admission. It returns early only when ctx is cancelled. A limiter
// with a non-positive budget or window admits everything.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.MaxRequests <= 0 || l.Window <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.admitted) < l.MaxRequests {
			l.admitted = append(l.admitted, now)
			l.mu.Unlock()
			return nil
		}
		// Oldest admission ages out of the window first; wait for it.
		// The lock is released before sleeping so other callers can
		// observe and race for the freed slot.
		wait := l.admitted[0].Add(l.Window).Sub(now)
		l.mu.Unlock()

		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// Status reports current window usage for operator-facing output.
type Status struct {
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
	Used        int           `json:"used"`
	Remaining   int           `json:"remaining"`
	ResetIn     time.Duration `json:"reset_in"`
}

// Status returns a snapshot of the window.
func (l *Limiter) Status() Status {
	if l == nil {
		return Status{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	status := Status{
		MaxRequests: l.MaxRequests,
		Window:      l.Window,
		Used:        len(l.admitted),
		Remaining:   l.MaxRequests - len(l.admitted),
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if len(l.admitted) > 0 {
		status.ResetIn = l.admitted[0].Add(l.Window).Sub(now)
		if status.ResetIn < 0 {
			status.ResetIn = 0
		}
	}
	return status
}

// prune drops admissions older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.Window)
	kept := l.admitted[:0]
	for _, ts := range l.admitted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.admitted = kept
}

func (l *Limiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
