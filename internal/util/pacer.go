package util

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces successive turns at least interval apart.
type Pacer struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func NewPacer(interval time.Duration) *Pacer {
	if interval < 0 {
		interval = 0
	}
	return &Pacer{interval: interval}
}

// WaitTurn blocks until the next turn is due or ctx is done.
func (p *Pacer) WaitTurn(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	scheduled := now
	if p.nextAllowedAt.After(now) {
		scheduled = p.nextAllowedAt
	}
	p.nextAllowedAt = scheduled.Add(p.interval)
	p.mu.Unlock()

	return Sleep(ctx, time.Until(scheduled))
}

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitFor polls cond every interval until it reports true or timeout elapses.
// It returns whether cond was satisfied; cond errors count as unsatisfied.
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if interval < remaining {
			remaining = interval
		}
		if err := Sleep(ctx, remaining); err != nil {
			return false, err
		}
	}
}
