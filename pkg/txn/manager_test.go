package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leapstack-labs/dbal/internal/testutil"
	"github.com/leapstack-labs/dbal/pkg/adapters/memory"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSuffix() string { return "abcd1234" }

func newSpy(opts ...memory.Option) (*Manager, *memory.Adapter) {
	conn := memory.New(opts...)
	return NewManager(conn, WithSavepointSuffix(fixedSuffix), WithRetry(3, time.Millisecond)), conn
}

func TestNestedBeginCommitRollback(t *testing.T) {
	ctx := context.Background()
	m, conn := newSpy()

	require.NoError(t, m.Begin(ctx))
	require.NoError(t, m.Begin(ctx))
	assert.Equal(t, 2, m.Level())
	require.NoError(t, m.Commit(ctx))
	assert.Equal(t, 1, m.Level())
	require.NoError(t, m.Rollback(ctx))
	assert.Equal(t, 0, m.Level())

	assert.Equal(t, []string{
		"BEGIN",
		"SAVEPOINT level2_1_abcd1234",
		"RELEASE SAVEPOINT level2_1_abcd1234",
		"ROLLBACK",
	}, conn.SQL())
}

func TestSavepointNamesAreUnique(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	require.NoError(t, m.Begin(ctx))
	seen := map[string]bool{}
	for range 3 {
		require.NoError(t, m.Begin(ctx))
		name := m.savepoints[len(m.savepoints)-1]
		assert.Regexp(t, `^level2_\d+_[0-9a-f]{8}$`, name)
		assert.False(t, seen[name], "savepoint %s reused", name)
		seen[name] = true
		require.NoError(t, m.Rollback(ctx))
	}
	require.NoError(t, m.Rollback(ctx))
}

func TestSavepointNameKeepsFormatForAnySuffix(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		want   string
	}{
		{name: "leading digit", suffix: "9fd1d2c7", want: "SAVEPOINT level2_1_9fd1d2c7"},
		{name: "leading letter", suffix: "abcd1234", want: "SAVEPOINT level2_1_abcd1234"},
		{name: "unsafe characters", suffix: "ab-c;d", want: "SAVEPOINT level2_1_ab_c_d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			conn := memory.New()
			m := NewManager(conn, WithSavepointSuffix(func() string { return tt.suffix }))

			require.NoError(t, m.Begin(ctx))
			require.NoError(t, m.Begin(ctx))
			assert.Equal(t, []string{"BEGIN", tt.want}, conn.SQL())
		})
	}
}

func TestDeepNestingUnwindsInOrder(t *testing.T) {
	ctx := context.Background()
	m, conn := newSpy()

	for range 3 {
		require.NoError(t, m.Begin(ctx))
	}
	require.NoError(t, m.Rollback(ctx))
	require.NoError(t, m.Commit(ctx))
	require.NoError(t, m.Commit(ctx))

	assert.Equal(t, []string{
		"BEGIN",
		"SAVEPOINT level2_1_abcd1234",
		"SAVEPOINT level3_2_abcd1234",
		"ROLLBACK TO SAVEPOINT level3_2_abcd1234",
		"RELEASE SAVEPOINT level2_1_abcd1234",
		"COMMIT",
	}, conn.SQL())
	assert.Equal(t, 0, m.Level())
}

func TestCommitWithoutTransaction(t *testing.T) {
	m, conn := newSpy()

	err := m.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoActiveTransaction)

	var te *core.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "commit", te.Op)
	assert.Empty(t, conn.SQL())
}

func TestRollbackWithoutTransactionIsNoop(t *testing.T) {
	m, conn := newSpy()
	require.NoError(t, m.Rollback(context.Background()))
	require.NoError(t, m.Rollback(context.Background()))
	assert.Empty(t, conn.SQL())
	assert.Equal(t, 0, m.Level())
}

func TestRollbackFailureStillUnwinds(t *testing.T) {
	ctx := context.Background()
	logger, logs := testutil.CaptureLogger()
	conn := memory.New().FailOn("ROLLBACK", errors.New("connection lost"), -1)
	m := NewManager(conn, WithLogger(logger))

	require.NoError(t, m.Begin(ctx))
	err := m.Rollback(ctx)
	require.Error(t, err)
	var te *core.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "rollback", te.Op)
	assert.Equal(t, 0, m.Level())
	assert.True(t, logs.Contains("rollback failed"))

	// Further rollbacks are no-ops and the manager can start over.
	require.NoError(t, m.Rollback(ctx))
	require.NoError(t, m.Begin(ctx))
	assert.Equal(t, 1, m.Level())
	assert.Equal(t, "BEGIN", conn.SQL()[len(conn.SQL())-1])
}

func TestBeginFailureKeepsLevel(t *testing.T) {
	conn := memory.New().FailOn("BEGIN", errors.New("too many connections"), 1)
	m := NewManager(conn)

	err := m.Begin(context.Background())
	var te *core.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "begin", te.Op)
	assert.Equal(t, 0, m.Level())

	require.NoError(t, m.Begin(context.Background()))
	assert.Equal(t, 1, m.Level())
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fn      Func
		wantErr error
		wantSQL []string
	}{
		{
			name:    "commit on success",
			fn:      func(ctx context.Context, tx *Manager) error { return nil },
			wantSQL: []string{"BEGIN", "COMMIT"},
		},
		{
			name:    "rollback on error",
			fn:      func(ctx context.Context, tx *Manager) error { return boom },
			wantErr: boom,
			wantSQL: []string{"BEGIN", "ROLLBACK"},
		},
		{
			name: "nested run uses savepoints",
			fn: func(ctx context.Context, tx *Manager) error {
				_ = tx.Run(ctx, func(ctx context.Context, tx *Manager) error { return boom })
				return tx.Run(ctx, func(ctx context.Context, tx *Manager) error { return nil })
			},
			wantSQL: []string{
				"BEGIN",
				"SAVEPOINT level2_1_abcd1234",
				"ROLLBACK TO SAVEPOINT level2_1_abcd1234",
				"SAVEPOINT level2_2_abcd1234",
				"RELEASE SAVEPOINT level2_2_abcd1234",
				"COMMIT",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, conn := newSpy()
			err := m.Run(ctx, tt.fn)
			if tt.wantErr != nil {
				assert.Same(t, tt.wantErr, err, "error is returned unchanged")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSQL, conn.SQL())
			assert.Equal(t, 0, m.Level())
		})
	}
}

func TestRunRollsBackOnPanic(t *testing.T) {
	m, conn := newSpy()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.Run(context.Background(), func(ctx context.Context, tx *Manager) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, conn.SQL())
	assert.Equal(t, 0, m.Level())
}

func TestRunCommitFailureRollsBack(t *testing.T) {
	conn := memory.New().FailOn("COMMIT", errors.New("disk full"), 1)
	m := NewManager(conn)

	err := m.Run(context.Background(), func(ctx context.Context, tx *Manager) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"BEGIN", "COMMIT", "ROLLBACK"}, conn.SQL())
	assert.Equal(t, 0, m.Level())
}

func TestDo(t *testing.T) {
	m, _ := newSpy()

	id, err := Do(context.Background(), m, func(ctx context.Context, tx *Manager) (int64, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = Do(context.Background(), m, func(ctx context.Context, tx *Manager) (int64, error) {
		return 7, errors.New("nope")
	})
	require.Error(t, err)
	assert.Zero(t, id)
}

func TestCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("after commit fires once at outermost commit", func(t *testing.T) {
		m, _ := newSpy()
		var fired []string

		require.NoError(t, m.Begin(ctx))
		m.AfterCommit(ctx, func(context.Context) error { fired = append(fired, "outer"); return nil })
		require.NoError(t, m.Begin(ctx))
		m.AfterCommit(ctx, func(context.Context) error { fired = append(fired, "inner"); return nil })
		m.AfterRollback(func(context.Context) error { fired = append(fired, "rollback"); return nil })

		require.NoError(t, m.Commit(ctx))
		assert.Empty(t, fired)
		require.NoError(t, m.Commit(ctx))
		assert.Equal(t, []string{"outer", "inner"}, fired)

		require.NoError(t, m.Begin(ctx))
		require.NoError(t, m.Commit(ctx))
		assert.Equal(t, []string{"outer", "inner"}, fired, "queues are cleared")
	})

	t.Run("after rollback fires at outermost rollback", func(t *testing.T) {
		m, _ := newSpy()
		var fired []string

		require.NoError(t, m.Begin(ctx))
		m.AfterCommit(ctx, func(context.Context) error { fired = append(fired, "commit"); return nil })
		m.AfterRollback(func(context.Context) error { fired = append(fired, "rollback"); return nil })
		require.NoError(t, m.Rollback(ctx))
		assert.Equal(t, []string{"rollback"}, fired)
	})

	t.Run("outside a transaction", func(t *testing.T) {
		m, _ := newSpy()
		var fired []string

		m.AfterCommit(ctx, func(context.Context) error { fired = append(fired, "commit"); return nil })
		m.AfterRollback(func(context.Context) error { fired = append(fired, "rollback"); return nil })
		assert.Equal(t, []string{"commit"}, fired)

		require.NoError(t, m.Begin(ctx))
		require.NoError(t, m.Rollback(ctx))
		assert.Equal(t, []string{"commit"}, fired)
	})

	t.Run("failures are logged and swallowed", func(t *testing.T) {
		logger, logs := testutil.CaptureLogger()
		m := NewManager(memory.New(), WithLogger(logger))
		ran := false

		require.NoError(t, m.Begin(ctx))
		m.AfterCommit(ctx, func(context.Context) error { return errors.New("mailer down") })
		m.AfterCommit(ctx, func(context.Context) error { panic("observer bug") })
		m.AfterCommit(ctx, func(context.Context) error { ran = true; return nil })

		require.NoError(t, m.Commit(ctx))
		assert.True(t, ran)
		assert.True(t, logs.Contains("mailer down"))
		assert.True(t, logs.Contains("observer bug"))
	})
}

func TestExplicitSavepoints(t *testing.T) {
	ctx := context.Background()
	m, conn := newSpy()

	err := m.Savepoint(ctx, "before_import")
	assert.ErrorIs(t, err, core.ErrNoActiveTransaction)
	assert.ErrorIs(t, m.RollbackTo(ctx, "x"), core.ErrNoActiveTransaction)
	assert.ErrorIs(t, m.ReleaseSavepoint(ctx, "x"), core.ErrNoActiveTransaction)

	require.NoError(t, m.Begin(ctx))
	require.NoError(t, m.Savepoint(ctx, "before import; DROP TABLE users"))
	require.NoError(t, m.RollbackTo(ctx, "before import; DROP TABLE users"))
	require.NoError(t, m.ReleaseSavepoint(ctx, "1st"))
	assert.Equal(t, 1, m.Level())
	require.NoError(t, m.Commit(ctx))

	assert.Equal(t, []string{
		"BEGIN",
		"SAVEPOINT before_import__DROP_TABLE_users",
		"ROLLBACK TO SAVEPOINT before_import__DROP_TABLE_users",
		"RELEASE SAVEPOINT sp_1st",
		"COMMIT",
	}, conn.SQL())
}

func TestSetIsolationLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("mysql", func(t *testing.T) {
		m, conn := newSpy()
		require.NoError(t, m.SetIsolationLevel(ctx, "read committed"))
		assert.Equal(t, "READ COMMITTED", m.IsolationLevel())
		assert.Equal(t, []string{"SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED"}, conn.SQL())
	})

	t.Run("rejected inside a transaction", func(t *testing.T) {
		m, conn := newSpy()
		require.NoError(t, m.Begin(ctx))
		err := m.SetIsolationLevel(ctx, "SERIALIZABLE")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inside an active transaction")
		assert.Equal(t, []string{"BEGIN"}, conn.SQL())
	})

	t.Run("unsupported level", func(t *testing.T) {
		m, _ := newSpy(memory.WithDialect(dialect.SQLite))
		err := m.SetIsolationLevel(ctx, "REPEATABLE READ")
		assert.ErrorIs(t, err, core.ErrUnsupported)
	})
}

func TestRunWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries deadlocks until success", func(t *testing.T) {
		m, conn := newSpy()
		calls := 0
		v, err := DoWithRetry(ctx, m, 3, time.Millisecond, func(ctx context.Context, tx *Manager) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("Error 1213: Deadlock found when trying to get lock; try restarting transaction")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []string{"BEGIN", "ROLLBACK", "BEGIN", "ROLLBACK", "BEGIN", "COMMIT"}, conn.SQL())
	})

	t.Run("non-retryable fails first time", func(t *testing.T) {
		m, conn := newSpy()
		calls := 0
		dup := errors.New("Error 1062: Duplicate entry 'a' for key 'PRIMARY'")
		err := m.RunWithRetry(ctx, 3, time.Millisecond, func(ctx context.Context, tx *Manager) error {
			calls++
			return dup
		})
		assert.Same(t, dup, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, conn.SQL())
	})

	t.Run("exhausted attempts return last error", func(t *testing.T) {
		m, _ := newSpy()
		calls := 0
		err := m.RunWithRetry(ctx, 0, 0, func(ctx context.Context, tx *Manager) error {
			calls++
			return fmt.Errorf("attempt %d: Lock wait timeout exceeded", calls)
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls, "manager default attempts")
		assert.Equal(t, "attempt 3: Lock wait timeout exceeded", err.Error())
	})

	t.Run("typed detector", func(t *testing.T) {
		serialization := errors.New("engine code 40001")
		conn := memory.New(memory.WithTransientDetector(func(err error) bool { return errors.Is(err, serialization) }))
		m := NewManager(conn)
		calls := 0
		err := m.RunWithRetry(ctx, 2, time.Millisecond, func(ctx context.Context, tx *Manager) error {
			calls++
			if calls == 1 {
				return serialization
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}

func TestIsTransient(t *testing.T) {
	m, _ := newSpy()

	tests := []struct {
		msg  string
		want bool
	}{
		{"Deadlock found when trying to get lock", true},
		{"Lock wait timeout exceeded; try restarting transaction", true},
		{"database is locked (5) (SQLITE_BUSY)", true},
		{"could not serialize access due to concurrent update", true},
		{"Duplicate entry '1' for key 'PRIMARY'", false},
		{"syntax error at or near \"SELEC\"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsTransient(errors.New(tt.msg)))
		})
	}
	assert.False(t, m.IsTransient(nil))
}
