// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"log/slog"
	"time"
)

// Backoff is a retry policy: up to Attempts calls, sleeping BaseDelay
// after the first failure and doubling the sleep after each one after that.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	Logger    *slog.Logger
}

// DefaultBackoff is the embedding retry policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay returns the sleep that follows failed attempt n, counting from 1.
func (b Backoff) Delay(n int) time.Duration {
	return b.BaseDelay << (n - 1)
}

// Do calls op until it succeeds, the attempts run out, or ctx ends.
// It returns nil, the last error from op, or ctx's error.
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if n > 1 {
				logger.Debug("succeeded after retry", "attempt", n)
			}
			return nil
		}
		if n == b.Attempts {
			return err
		}

		delay := b.Delay(n)
		logger.Debug("attempt failed, backing off", "attempt", n, "attempts", b.Attempts, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
