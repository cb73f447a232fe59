package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffFailure(t *testing.T) {
	backoff, err := NewBackoff(time.Millisecond, 10*time.Second)
	require.NoError(t, err)
	require.Zero(t, backoff.Timeout())
	for i := 0; i < 11; i++ {
		backoff.Failure()
	}
	require.Equal(t, 1024*time.Millisecond, backoff.Timeout())
}

func TestBackoffSuccess(t *testing.T) {
	backoff, err := NewBackoff(time.Millisecond, 10*time.Second)
	require.NoError(t, err)
	backoff.Failure()
	backoff.Failure()
	backoff.Success()
	require.Zero(t, backoff.Timeout())
}

func TestBackoffMaximum(t *testing.T) {
	backoff, err := NewBackoff(time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		backoff.Failure()
	}
	require.Equal(t, 10*time.Millisecond, backoff.Timeout())
}

func TestBackoffInvalid(t *testing.T) {
	_, err := NewBackoff(0, time.Second)
	require.Error(t, err)
	_, err = NewBackoff(time.Second, time.Millisecond)
	require.Error(t, err)
}

func TestBackoffWaitCanceled(t *testing.T) {
	backoff, err := NewBackoff(time.Hour, time.Hour)
	require.NoError(t, err)
	backoff.Failure()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, backoff.Wait(ctx), context.Canceled)
}
