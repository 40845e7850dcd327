package forecast

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("forecast breaker is open; fast-fail")

type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

func (s breakerState) String() string {
	switch s {
	case closed:
		return "closed"
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker stops calling the collaborator after maxFailures consecutive
// failures and lets a single trial call through once resetTimeout passed.
type breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

func newBreaker(maxFailures int, resetTimeout time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &breaker{maxFailures: maxFailures, resetTimeout: resetTimeout, now: time.Now}
}

func (b *breaker) execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.state == open {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = halfOpen
	} else if b.state == halfOpen {
		// a trial call is already in flight
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = closed
		b.failures = 0
		return nil
	}
	b.failures++
	if b.state == halfOpen || b.failures >= b.maxFailures {
		b.state = open
		b.openedAt = b.now()
	}
	return err
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
