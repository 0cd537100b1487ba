package txn

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/sethvargo/go-retry"
)

// transientSignatures are lowercase message fragments of lock-wait,
// deadlock and serialization failures across the supported engines.
var transientSignatures = []string{
	"deadlock",
	"lock wait timeout",
	"database is locked",
	"database table is locked",
	"could not serialize",
	"try restarting transaction",
}

// IsTransient reports whether err is a lock or deadlock failure worth
// retrying. The connection's typed detector is consulted first.
func (m *Manager) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if d, ok := m.conn.(adapter.TransientErrorDetector); ok && d.IsTransient(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// RunWithRetry runs fn in a transaction, retrying the whole transaction on
// transient failures with a constant delay. maxAttempts and delay fall back
// to the manager defaults when zero. The last error is returned once the
// attempts are exhausted; non-transient errors are returned immediately.
func (m *Manager) RunWithRetry(ctx context.Context, maxAttempts int, delay time.Duration, fn Func) error {
	if maxAttempts <= 0 {
		maxAttempts = m.maxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if delay <= 0 {
		delay = m.retryDelay
	}

	constant := retry.BackoffFunc(func() (time.Duration, bool) { return delay, false })
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), constant)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.Run(ctx, fn)
		if err == nil {
			return nil
		}
		if !m.IsTransient(err) {
			return err
		}
		m.logger.Warn("transient transaction failure",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
}

// DoWithRetry is RunWithRetry returning fn's value.
func DoWithRetry[T any](ctx context.Context, m *Manager, maxAttempts int, delay time.Duration, fn func(ctx context.Context, tx *Manager) (T, error)) (T, error) {
	var out T
	err := m.RunWithRetry(ctx, maxAttempts, delay, func(ctx context.Context, tx *Manager) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
