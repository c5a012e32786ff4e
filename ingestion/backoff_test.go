package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Attempts: 4, BaseDelay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
}

func TestBackoff_Do(t *testing.T) {
	errTemporary := errors.New("temporary error")

	tests := []struct {
		name      string
		attempts  int
		failUntil int // calls that fail before the first success; -1 never succeeds
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, failUntil: 0, wantCalls: 1},
		{name: "eventual success", attempts: 5, failUntil: 2, wantCalls: 3},
		{name: "all attempts fail", attempts: 3, failUntil: -1, wantCalls: 3, wantErr: errTemporary},
		{name: "zero attempts", attempts: 0, failUntil: -1, wantCalls: 0, wantErr: ErrInvalidMaxAttempts},
		{name: "negative attempts", attempts: -1, failUntil: -1, wantCalls: 0, wantErr: ErrInvalidMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			b := Backoff{Attempts: tt.attempts, BaseDelay: time.Millisecond}
			err := b.Do(context.Background(), func(context.Context) error {
				calls++
				if tt.failUntil < 0 || calls <= tt.failUntil {
					return errTemporary
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBackoff_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 10, BaseDelay: 10 * time.Millisecond}

	err := b.Do(ctx, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestBackoff_StopsAtDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	b := Backoff{Attempts: 10, BaseDelay: 10 * time.Millisecond}
	err := b.Do(ctx, func(context.Context) error {
		calls++
		time.Sleep(30 * time.Millisecond)
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, calls, 3)
}

func TestBackoff_DelaysGrow(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	calls := 0

	b := Backoff{Attempts: 5, BaseDelay: 10 * time.Millisecond}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		if calls > 1 {
			gaps = append(gaps, time.Since(last))
		}
		last = time.Now()
		if calls < 4 {
			return errors.New("error")
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, gaps, 3)
	assert.GreaterOrEqual(t, gaps[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[2], 40*time.Millisecond)
}
