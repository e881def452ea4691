package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates the start of remote fetches. Wait blocks until the caller may
// proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter builds the limiter selected by mode, admitting at most perSecond
// operations in any trailing one-second window.
func NewLimiter(mode string, perSecond int) (Limiter, error) {
	if perSecond < 1 {
		return nil, fmt.Errorf("rate limit must be >= 1, got %d", perSecond)
	}
	switch mode {
	case RateModeWindow, "":
		return NewWindowLimiter(perSecond, time.Second), nil
	case RateModePaced:
		return NewPacedLimiter(perSecond), nil
	default:
		return nil, fmt.Errorf("unknown rate mode %q", mode)
	}
}

// WindowLimiter keeps a log of recent admission times and admits a caller only
// while fewer than limit admissions fall inside the trailing window.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func (l *WindowLimiter) Wait(ctx context.Context) error {
	_, err := l.admit(ctx)
	return err
}

// admit retries until a slot frees up and returns the recorded admission time.
// Other callers may take the slot first, so every wake-up re-checks.
func (l *WindowLimiter) admit(ctx context.Context) (time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		at, wait, ok := l.tryAdmit()
		if ok {
			return at, nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return time.Time{}, err
		}
	}
}

// tryAdmit is the only place the log is read or written.
func (l *WindowLimiter) tryAdmit() (time.Time, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	keep := l.stamps[:0]
	for _, t := range l.stamps {
		if now.Sub(t) < l.window {
			keep = append(keep, t)
		}
	}
	l.stamps = keep

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return now, 0, true
	}
	// stamps are appended in admission order, so the first one leaves first.
	wait := l.window - now.Sub(l.stamps[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return time.Time{}, wait, false
}

// PacedLimiter spaces admissions about 1/perSecond apart. Late timers can let
// the bucket admit perSecond+1 within one second, so a window check follows it.
type PacedLimiter struct {
	lim    *rate.Limiter
	window *WindowLimiter
}

func NewPacedLimiter(perSecond int) *PacedLimiter {
	return &PacedLimiter{
		lim:    rate.NewLimiter(rate.Limit(perSecond), 1),
		window: NewWindowLimiter(perSecond, time.Second),
	}
}

func (l *PacedLimiter) Wait(ctx context.Context) error {
	_, err := l.admit(ctx)
	return err
}

func (l *PacedLimiter) admit(ctx context.Context) (time.Time, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return time.Time{}, err
	}
	return l.window.admit(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
