package database

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/dbal/internal/testutil"
	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/adapters/memory"
	"github.com/leapstack-labs/dbal/pkg/schema"
	"github.com/leapstack-labs/dbal/pkg/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEntities(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Schema().CreateTable(ctx, "entities", []schema.Column{
		{Name: "id", Type: "INTEGER", AutoIncrement: true},
		{Name: "kind", Type: "VARCHAR(32)"},
	}, schema.TableOptions{})
	require.NoError(t, err)
	_, err = db.Schema().CreateTable(ctx, "attributes", []schema.Column{
		{Name: "entity_id", Type: "INTEGER"},
		{Name: "name", Type: "VARCHAR(64)"},
		{Name: "value", Type: "TEXT", Nullable: true},
	}, schema.TableOptions{
		PrimaryKey:  []string{"entity_id", "name"},
		ForeignKeys: []schema.ForeignKey{{Name: "fk_attr_entity", Column: "entity_id", RefTable: "entities", RefColumn: "id", OnDelete: "CASCADE"}},
	})
	require.NoError(t, err)
}

// createEntity writes an entity and its attributes as one unit.
func createEntity(ctx context.Context, db *DB, kind string, attrs map[string]any, fail error) (int64, error) {
	return txn.Do(ctx, db.Tx(), func(ctx context.Context, tx *txn.Manager) (int64, error) {
		rs, err := db.Table("entities").Insert(ctx, map[string]any{"kind": kind})
		if err != nil {
			return 0, err
		}
		id := rs.LastInsertID()
		for name, value := range attrs {
			if _, err := db.Table("attributes").Insert(ctx, map[string]any{"entity_id": id, "name": name, "value": value}); err != nil {
				return 0, err
			}
		}
		return id, fail
	})
}

func TestEntityWritesCommitTogether(t *testing.T) {
	ctx := context.Background()
	db := New(testutil.OpenSQLite(t, adapter.Config{TablePrefix: "app_"}), WithLogger(testutil.NewTestLogger(t)))
	setupEntities(t, db)

	id, err := createEntity(ctx, db, "post", map[string]any{"title": "Hello", "status": "draft"}, nil)
	require.NoError(t, err)
	assert.Positive(t, id)

	n, err := db.Table("attributes").Where("entity_id", "=", id).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	title, err := db.Table("attributes").Where("entity_id", "=", id).Where("name", "=", "title").Value(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "Hello", title.Text())
}

func TestEntityWritesRollBackTogether(t *testing.T) {
	ctx := context.Background()
	db := New(testutil.OpenSQLite(t, adapter.Config{}))
	setupEntities(t, db)

	_, err := createEntity(ctx, db, "post", map[string]any{"title": "Hello", "status": "draft"}, errors.New("validation failed"))
	require.EqualError(t, err, "validation failed")
	assert.Equal(t, 0, db.Tx().Level())

	for _, table := range []string{"entities", "attributes"} {
		n, err := db.Table(table).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "%s must be empty after rollback", table)
	}
}

func TestOpenByDriverName(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, adapter.Config{Type: "sqlite", Path: ":memory:"}, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	setupEntities(t, db)
	_, err = db.Table("entities").InsertBatch(ctx, []map[string]any{{"kind": "post"}, {"kind": "page"}})
	require.NoError(t, err)
	kinds, err := db.Table("entities").OrderBy("kind", "ASC").Pluck(ctx, "kind")
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	assert.Equal(t, "page", kinds[0].Text())

	_, err = Open(ctx, adapter.Config{Type: "oracle"})
	var unknown *adapter.UnknownAdapterError
	assert.ErrorAs(t, err, &unknown)
}

func TestOpenAppliesIsolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, adapter.Config{Type: "memory"}, WithIsolation("repeatable read"))
	require.NoError(t, err)

	spy := db.Conn().(*memory.Adapter)
	assert.Equal(t, []string{"SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"}, spy.SQL())
	assert.Equal(t, "REPEATABLE READ", db.Tx().IsolationLevel())
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	ctx := context.Background()
	spy := memory.New()
	db := New(spy)

	require.NoError(t, db.Tx().Begin(ctx))
	require.NoError(t, db.Tx().Begin(ctx))
	require.NoError(t, db.Close())

	sql := spy.SQL()
	assert.Equal(t, "ROLLBACK", sql[len(sql)-1])
	assert.True(t, spy.Closed())
}

func TestTransactionShorthand(t *testing.T) {
	spy := memory.New()
	db := New(spy)

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *txn.Manager) error {
		_, err := db.Table("options").Where("name", "=", "siteurl").Update(ctx, map[string]any{"value": "x"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BEGIN",
		"UPDATE `options` SET `value` = ? WHERE `name` = ?",
		"COMMIT",
	}, spy.SQL())
}
