// Package txn implements nested transactions over a single Connection.
//
// The engine sees at most one real transaction. Nesting is emulated with
// savepoints: the outermost Begin issues BEGIN, every inner Begin issues a
// uniquely named SAVEPOINT, and Commit/Rollback unwind one level at a time.
// After-commit and after-rollback callbacks fire only when the outermost
// level completes.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
)

// Defaults for RunWithRetry.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 100 * time.Millisecond
)

// Func is the unit of work run inside a transaction.
type Func func(ctx context.Context, tx *Manager) error

// Callback is queued with AfterCommit or AfterRollback.
type Callback func(ctx context.Context) error

// Manager tracks the transaction state of one connection.
type Manager struct {
	conn   adapter.Connection
	logger *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
	suffix      func() string

	mu            sync.Mutex
	level         int
	savepoints    []string
	counter       uint64
	afterCommit   []Callback
	afterRollback []Callback
	isolation     string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRetry sets the default attempt count and delay used by RunWithRetry.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(m *Manager) {
		m.maxAttempts = maxAttempts
		m.retryDelay = delay
	}
}

// WithSavepointSuffix replaces the random part of generated savepoint names.
func WithSavepointSuffix(fn func() string) Option {
	return func(m *Manager) { m.suffix = fn }
}

// NewManager creates a transaction manager for conn.
func NewManager(conn adapter.Connection, opts ...Option) *Manager {
	m := &Manager{
		conn:        conn,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		suffix:      func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// Level returns the current nesting level. Zero means no transaction.
func (m *Manager) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// InTransaction reports whether a transaction is active.
func (m *Manager) InTransaction() bool {
	return m.Level() > 0
}

// IsolationLevel returns the last isolation level set, or "".
func (m *Manager) IsolationLevel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isolation
}

func (m *Manager) exec(ctx context.Context, sql string) error {
	_, err := m.conn.Exec(ctx, sql)
	return err
}

// Begin starts a transaction, or a savepoint when one is already active.
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.level == 0 {
		if err := m.exec(ctx, "BEGIN"); err != nil {
			return &core.TransactionError{Op: "begin", Level: 0, Err: err}
		}
		m.level = 1
		m.logger.Debug("transaction started", slog.Int("level", m.level))
		return nil
	}

	m.counter++
	name := sanitize(fmt.Sprintf("level%d_%d_%s", m.level+1, m.counter, m.suffix()))
	if err := m.exec(ctx, "SAVEPOINT "+name); err != nil {
		return &core.TransactionError{Op: "begin", Level: m.level, Err: err}
	}
	m.savepoints = append(m.savepoints, name)
	m.level++
	m.logger.Debug("savepoint created", slog.Int("level", m.level), slog.String("savepoint", name))
	return nil
}

// Commit commits the outermost transaction or releases the innermost
// savepoint. After-commit callbacks run once the outermost level commits.
func (m *Manager) Commit(ctx context.Context) error {
	m.mu.Lock()

	switch {
	case m.level == 0:
		m.mu.Unlock()
		return &core.TransactionError{Op: "commit", Level: 0, Err: core.ErrNoActiveTransaction}

	case m.level == 1:
		if err := m.exec(ctx, "COMMIT"); err != nil {
			m.mu.Unlock()
			return &core.TransactionError{Op: "commit", Level: 1, Err: err}
		}
		callbacks := m.finish()
		m.afterRollback = nil
		m.afterCommit = nil
		m.mu.Unlock()

		m.logger.Debug("transaction committed")
		m.runCallbacks(ctx, "after commit", callbacks)
		return nil

	default:
		name := m.savepoints[len(m.savepoints)-1]
		if err := m.exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			level := m.level
			m.mu.Unlock()
			return &core.TransactionError{Op: "release savepoint", Level: level, Err: err}
		}
		m.pop()
		m.logger.Debug("savepoint released", slog.Int("level", m.level), slog.String("savepoint", name))
		m.mu.Unlock()
		return nil
	}
}

// Rollback rolls back the outermost transaction or the innermost savepoint.
// It is a no-op without an active transaction and is always safe to call.
// The nesting level is unwound even when the engine reports a failure, so
// the manager stays usable either way. Such a failure is logged and returned
// for diagnostics only; callers on a cleanup path may ignore it.
func (m *Manager) Rollback(ctx context.Context) error {
	m.mu.Lock()

	switch {
	case m.level == 0:
		m.mu.Unlock()
		return nil

	case m.level == 1:
		err := m.exec(ctx, "ROLLBACK")
		m.finish()
		callbacks := m.afterRollback
		m.afterRollback = nil
		m.afterCommit = nil
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("rollback failed", slog.String("error", err.Error()))
			err = &core.TransactionError{Op: "rollback", Level: 1, Err: err}
		} else {
			m.logger.Debug("transaction rolled back")
		}
		m.runCallbacks(ctx, "after rollback", callbacks)
		return err

	default:
		name := m.savepoints[len(m.savepoints)-1]
		level := m.level
		err := m.exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
		m.pop()
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("rollback to savepoint failed",
				slog.String("savepoint", name), slog.String("error", err.Error()))
			return &core.TransactionError{Op: "rollback", Level: level, Err: err}
		}
		m.logger.Debug("rolled back to savepoint", slog.Int("level", level-1), slog.String("savepoint", name))
		return nil
	}
}

// finish resets the state after the outermost commit or rollback and
// returns the after-commit queue. Must hold mu.
func (m *Manager) finish() []Callback {
	callbacks := m.afterCommit
	m.level = 0
	m.savepoints = nil
	return callbacks
}

// pop drops the innermost savepoint. Must hold mu.
func (m *Manager) pop() {
	m.savepoints = m.savepoints[:len(m.savepoints)-1]
	m.level--
}

func (m *Manager) runCallbacks(ctx context.Context, kind string, callbacks []Callback) {
	for i, cb := range callbacks {
		if err := m.callSafely(ctx, cb); err != nil {
			m.logger.Warn(kind+" callback failed", slog.Int("index", i), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) callSafely(ctx context.Context, cb Callback) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return cb(ctx)
}

// AfterCommit queues cb to run after the outermost commit. Without an
// active transaction cb runs immediately.
func (m *Manager) AfterCommit(ctx context.Context, cb Callback) {
	m.mu.Lock()
	if m.level > 0 {
		m.afterCommit = append(m.afterCommit, cb)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.runCallbacks(ctx, "after commit", []Callback{cb})
}

// AfterRollback queues cb to run after the outermost rollback. Without an
// active transaction cb is dropped.
func (m *Manager) AfterRollback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level == 0 {
		m.logger.Debug("no active transaction, dropping after rollback callback")
		return
	}
	m.afterRollback = append(m.afterRollback, cb)
}

// Run executes fn between Begin and Commit. An error from fn rolls back and
// is returned unchanged; a panic rolls back and is re-panicked.
func (m *Manager) Run(ctx context.Context, fn Func) error {
	if err := m.Begin(ctx); err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			_ = m.Rollback(ctx)
		}
	}()

	if err := fn(ctx, m); err != nil {
		done = true
		_ = m.Rollback(ctx)
		return err
	}
	if err := m.Commit(ctx); err != nil {
		done = true
		_ = m.Rollback(ctx)
		return err
	}
	done = true
	return nil
}

// Do runs fn in a transaction and returns its value.
func Do[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, tx *Manager) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, func(ctx context.Context, tx *Manager) error {
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

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// sanitize reduces a savepoint name to [A-Za-z0-9_]; savepoint names are
// interpolated, never bound.
func sanitize(name string) string {
	name = nonIdent.ReplaceAllString(name, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "sp_" + name
	}
	return name
}

func (m *Manager) requireActive(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level == 0 {
		return &core.TransactionError{Op: op, Level: 0, Err: core.ErrNoActiveTransaction}
	}
	return nil
}

// Savepoint creates a named savepoint inside the active transaction.
// Explicit savepoints do not change the nesting level.
func (m *Manager) Savepoint(ctx context.Context, name string) error {
	return m.savepointOp(ctx, "savepoint", "SAVEPOINT ", name)
}

// RollbackTo rolls back to a named savepoint.
func (m *Manager) RollbackTo(ctx context.Context, name string) error {
	return m.savepointOp(ctx, "rollback to savepoint", "ROLLBACK TO SAVEPOINT ", name)
}

// ReleaseSavepoint releases a named savepoint.
func (m *Manager) ReleaseSavepoint(ctx context.Context, name string) error {
	return m.savepointOp(ctx, "release savepoint", "RELEASE SAVEPOINT ", name)
}

func (m *Manager) savepointOp(ctx context.Context, op, prefix, name string) error {
	if err := m.requireActive(op); err != nil {
		return err
	}
	name = sanitize(name)
	if err := m.exec(ctx, prefix+name); err != nil {
		return &core.TransactionError{Op: op, Level: m.Level(), Err: err}
	}
	m.logger.Debug(op, slog.String("savepoint", name))
	return nil
}

// SetIsolationLevel sets the session isolation level. It is rejected while
// a transaction is active.
func (m *Manager) SetIsolationLevel(ctx context.Context, level string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.level > 0 {
		return &core.TransactionError{
			Op:    "set isolation level",
			Level: m.level,
			Err:   errors.New("cannot change isolation level inside an active transaction"),
		}
	}
	stmt, err := m.conn.Dialect().IsolationStatement(level)
	if err != nil {
		return &core.TransactionError{Op: "set isolation level", Err: err}
	}
	if err := m.exec(ctx, stmt); err != nil {
		return &core.TransactionError{Op: "set isolation level", Err: err}
	}
	m.isolation = strings.ToUpper(strings.TrimSpace(level))
	m.logger.Debug("isolation level set", slog.String("isolation", m.isolation))
	return nil
}
