// Package util contains utility analyzer functionality.
package util

import (
	"context"
	"fmt"
	"time"
)

// Backoff implements retry backoff on failure.
type Backoff struct {
	initialTimeout time.Duration
	currentTimeout time.Duration
	maximumTimeout time.Duration
}

// NewBackoff returns a new backoff. The first Timeout() is zero, so that
// a loop waiting on it starts immediately.
func NewBackoff(initialTimeout time.Duration, maximumTimeout time.Duration) (*Backoff, error) {
	if initialTimeout <= 0 {
		return nil, fmt.Errorf("initial timeout %v must be positive", initialTimeout)
	}
	if maximumTimeout < initialTimeout {
		return nil, fmt.Errorf("maximum timeout %v less than initial timeout %v", maximumTimeout, initialTimeout)
	}
	return &Backoff{initialTimeout: initialTimeout, maximumTimeout: maximumTimeout}, nil
}

// Failure doubles the timeout, up to the maximum.
func (b *Backoff) Failure() {
	if b.currentTimeout == 0 {
		b.currentTimeout = b.initialTimeout
		return
	}
	b.currentTimeout *= 2
	if b.currentTimeout > b.maximumTimeout {
		b.currentTimeout = b.maximumTimeout
	}
}

// Success resets the timeout so that the next iteration runs immediately.
func (b *Backoff) Success() {
	b.currentTimeout = 0
}

// Reset is an alias of Success.
func (b *Backoff) Reset() {
	b.Success()
}

// Timeout returns the current backoff timeout.
func (b *Backoff) Timeout() time.Duration {
	return b.currentTimeout
}

// Wait sleeps for the current timeout, or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	select {
	case <-time.After(b.currentTimeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
