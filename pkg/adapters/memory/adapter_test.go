package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsStatements(t *testing.T) {
	ctx := context.Background()
	a := New()

	_, err := a.Exec(ctx, "DELETE FROM `t` WHERE `id` = ?", 5)
	require.NoError(t, err)
	_, err = a.Query(ctx, "SELECT * FROM `t`")
	require.NoError(t, err)

	stmts := a.Statements()
	require.Len(t, stmts, 2)
	assert.False(t, stmts[0].Query)
	assert.Equal(t, []any{5}, stmts[0].Args)
	assert.True(t, stmts[1].Query)
	assert.Equal(t, []string{"DELETE FROM `t` WHERE `id` = ?", "SELECT * FROM `t`"}, a.SQL())

	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM `t`", last.SQL)

	a.Reset()
	assert.Empty(t, a.Statements())
}

func TestScriptedResponses(t *testing.T) {
	ctx := context.Background()
	row := core.NewRow([]string{"id"}, []core.Value{core.Int(1)})
	a := New().
		OnQuery("FROM `users`", row).
		OnExec("INSERT", adapter.Result{RowsAffected: 1, LastInsertID: 9})

	rows, err := a.Query(ctx, "SELECT * FROM `users`")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = a.Query(ctx, "SELECT * FROM `posts`")
	require.NoError(t, err)
	assert.Empty(t, rows)

	res, err := a.Exec(ctx, "INSERT INTO `users` (`id`) VALUES (?)", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.LastInsertID)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("deadlock found")
	a := New().FailOn("UPDATE", boom, 2)

	for i := 0; i < 2; i++ {
		_, err := a.Exec(ctx, "UPDATE t SET v = 1")
		assert.ErrorIs(t, err, boom)
	}
	_, err := a.Exec(ctx, "UPDATE t SET v = 1")
	assert.NoError(t, err)
	assert.Len(t, a.Statements(), 3, "failed statements are still recorded")
}

func TestConnectOptions(t *testing.T) {
	a := New()
	require.NoError(t, a.Connect(context.Background(), adapter.Config{
		TablePrefix: "wp_",
		Charset:     "utf8mb4",
		Options:     map[string]string{"dialect": "postgres"},
	}))

	assert.Equal(t, "postgres", a.Dialect().Name)
	assert.Equal(t, "wp_options", a.QualifyTable("options"))
	assert.Equal(t, "utf8mb4", a.Charset())

	err := a.Connect(context.Background(), adapter.Config{Options: map[string]string{"dialect": "oracle"}})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	a := New()
	require.NoError(t, a.Close())
	assert.True(t, a.Closed())
}
