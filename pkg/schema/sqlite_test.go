package schema

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/leapstack-labs/dbal/internal/testutil"
	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entityColumns() []Column {
	return []Column{
		{Name: "id", Type: "INTEGER", AutoIncrement: true},
		{Name: "name", Type: "VARCHAR(191)"},
		{Name: "status", Type: "VARCHAR(20)", Default: "draft"},
	}
}

func TestSQLiteCreateTableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{TablePrefix: "app_"}), WithLogger(testutil.NewTestLogger(t)))

	created, err := m.CreateTable(ctx, "entities", entityColumns(), TableOptions{
		Indexes: []Index{{Name: "uniq_entity_name", Columns: []string{"name"}, Type: "unique"}},
	})
	require.NoError(t, err)
	assert.True(t, created)

	before, err := m.GetColumns(ctx, "entities")
	require.NoError(t, err)

	created, err = m.CreateTable(ctx, "entities", []Column{{Name: "other", Type: "TEXT"}}, TableOptions{})
	require.NoError(t, err)
	assert.False(t, created)

	after, err := m.GetColumns(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	tables, err := m.GetTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "app_entities")
}

func TestSQLiteIntrospection(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}))

	_, err := m.CreateTable(ctx, "entities", entityColumns(), TableOptions{})
	require.NoError(t, err)
	_, err = m.CreateTable(ctx, "attributes", []Column{
		{Name: "entity_id", Type: "INTEGER"},
		{Name: "attr", Type: "VARCHAR(64)"},
		{Name: "value", Type: "TEXT", Nullable: true},
	}, TableOptions{
		PrimaryKey:  []string{"entity_id", "attr"},
		ForeignKeys: []ForeignKey{{Name: "fk_attr_entity", Column: "entity_id", RefTable: "entities", RefColumn: "id", OnDelete: "cascade"}},
		Indexes:     []Index{{Name: "idx_attr", Columns: []string{"attr", "value"}}},
	})
	require.NoError(t, err)

	cols, err := m.GetColumns(ctx, "attributes")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "entity_id", cols[0].Name)
	assert.Equal(t, "PRI", cols[0].Key)
	assert.False(t, cols[0].Nullable)
	assert.True(t, cols[2].Nullable)

	cols, err = m.GetColumns(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, "'draft'", cols[2].Default.Text())

	idx, err := m.GetIndexes(ctx, "attributes")
	require.NoError(t, err)
	var found *IndexInfo
	for i := range idx {
		if idx[i].Name == "idx_attr" {
			found = &idx[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"attr", "value"}, found.Columns)
	assert.False(t, found.Unique)

	checks := []struct {
		name string
		fn   func() (bool, error)
		want bool
	}{
		{"table", func() (bool, error) { return m.TableExists(ctx, "attributes") }, true},
		{"missing table", func() (bool, error) { return m.TableExists(ctx, "nope") }, false},
		{"column", func() (bool, error) { return m.ColumnExists(ctx, "attributes", "attr") }, true},
		{"missing column", func() (bool, error) { return m.ColumnExists(ctx, "attributes", "nope") }, false},
		{"index", func() (bool, error) { return m.IndexExists(ctx, "attributes", "idx_attr") }, true},
		{"missing index", func() (bool, error) { return m.IndexExists(ctx, "attributes", "nope") }, false},
		{"foreign key", func() (bool, error) { return m.ForeignKeyExists(ctx, "attributes", "fk_attr_entity") }, true},
		{"missing foreign key", func() (bool, error) { return m.ForeignKeyExists(ctx, "attributes", "nope") }, false},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.fn()
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	// Declared inline at creation, so adding it again is a no-op.
	require.NoError(t, m.AddForeignKey(ctx, "attributes", ForeignKey{Name: "fk_attr_entity", Column: "entity_id", RefTable: "entities", RefColumn: "id"}))

	err = m.AddForeignKey(ctx, "attributes", ForeignKey{Name: "fk_new", Column: "entity_id", RefTable: "entities", RefColumn: "id"})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	assert.False(t, m.AddCheckConstraint(ctx, "attributes", "chk_attr", "length(attr) > 0"))
}

func TestSQLiteAlterColumns(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}))

	_, err := m.CreateTable(ctx, "entities", entityColumns(), TableOptions{})
	require.NoError(t, err)

	require.NoError(t, m.AddColumn(ctx, "entities", Column{Name: "note", Type: "TEXT", Nullable: true}, "name"))
	require.NoError(t, m.AddColumn(ctx, "entities", Column{Name: "note", Type: "TEXT", Nullable: true}, ""))
	ok, err := m.ColumnExists(ctx, "entities", "note")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.RenameColumn(ctx, "entities", "note", "remark"))
	require.NoError(t, m.RenameColumn(ctx, "entities", "note", "remark"))
	ok, err = m.ColumnExists(ctx, "entities", "remark")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.DropColumn(ctx, "entities", "remark"))
	require.NoError(t, m.DropColumn(ctx, "entities", "remark"))
	ok, err = m.ColumnExists(ctx, "entities", "remark")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.AddIndex(ctx, "entities", Index{Columns: []string{"status"}}))
	require.NoError(t, m.AddIndex(ctx, "entities", Index{Columns: []string{"status"}}))
	ok, err = m.IndexExists(ctx, "entities", "entities_status_idx")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.DropIndex(ctx, "entities", "entities_status_idx"))
	ok, err = m.IndexExists(ctx, "entities", "entities_status_idx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteDropTableIgnoresOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}))

	_, err := m.CreateTable(ctx, "parents", []Column{{Name: "id", Type: "INTEGER", AutoIncrement: true}}, TableOptions{})
	require.NoError(t, err)
	_, err = m.CreateTable(ctx, "children", []Column{
		{Name: "id", Type: "INTEGER", AutoIncrement: true},
		{Name: "parent_id", Type: "INTEGER"},
	}, TableOptions{ForeignKeys: []ForeignKey{{Name: "fk_parent", Column: "parent_id", RefTable: "parents", RefColumn: "id"}}})
	require.NoError(t, err)

	require.NoError(t, m.DropTable(ctx, "parents", "children", "never_created"))

	tables, err := m.GetTables(ctx)
	require.NoError(t, err)
	assert.NotContains(t, tables, "parents")
	assert.NotContains(t, tables, "children")
}

func TestSchemaVersionSurvivesDrop(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{TablePrefix: "wp_"}))

	v, err := m.GetSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, m.SetSchemaVersion(ctx, "1.0.0"))
	require.NoError(t, m.SetSchemaVersion(ctx, "1.1.0"))

	_, err = m.CreateTable(ctx, "entities", entityColumns(), TableOptions{})
	require.NoError(t, err)
	require.NoError(t, m.DropTable(ctx, "entities"))

	v, err = m.GetSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v)

	ok, err := m.TableExists(ctx, DefaultMetaTable)
	require.NoError(t, err)
	assert.True(t, ok, "meta table is prefixed like any other")
}

func TestMigrateAndRollbackBatches(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}))

	createTable := func(name string) Migration {
		return Migration{
			Version: "2024_01_01_" + name,
			Name:    "create " + name,
			Up: func(ctx context.Context, m *Manager) error {
				_, err := m.CreateTable(ctx, name, []Column{{Name: "id", Type: "INTEGER", AutoIncrement: true}}, TableOptions{})
				return err
			},
			Down: func(ctx context.Context, m *Manager) error {
				return m.DropTable(ctx, name)
			},
		}
	}

	m.Register(createTable("b_things"), createTable("a_users"))
	ran, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_01_01_a_users", "2024_01_01_b_things"}, ran)

	ran, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	m.Register(createTable("c_posts"))
	ran, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_01_01_c_posts"}, ran)

	applied, err := m.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, int64(1), applied[0].Batch)
	assert.Equal(t, int64(2), applied[2].Batch)
	assert.NotEmpty(t, applied[2].AppliedAt)

	reverted, err := m.RollbackMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_01_01_c_posts"}, reverted)

	ok, err := m.TableExists(ctx, "c_posts")
	require.NoError(t, err)
	assert.False(t, ok)

	reverted, err = m.RollbackMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024_01_01_b_things", "2024_01_01_a_users"}, reverted)

	reverted, err = m.RollbackMigration(ctx)
	require.NoError(t, err)
	assert.Empty(t, reverted)
}

func TestMigrateRejectsDuplicateVersions(t *testing.T) {
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}))
	m.Register(Migration{Version: "1"}, Migration{Version: "1"})

	_, err := m.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version")
}

func TestFileMigrations(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}), WithLogger(testutil.NewTestLogger(t)))

	fsys := fstest.MapFS{
		"migrations/00001_create_notes.sql": &fstest.MapFile{Data: []byte(`-- +goose Up
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);

-- +goose Down
DROP TABLE notes;
`)},
	}

	require.NoError(t, m.MigrateFS(ctx, fsys, "migrations"))

	version, err := m.FSVersion(ctx, fsys)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	ok, err := m.TableExists(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.RollbackFS(ctx, fsys, "migrations"))

	version, err = m.FSVersion(ctx, fsys)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	ok, err = m.TableExists(ctx, "notes")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileMigrationsRestoreGooseTable(t *testing.T) {
	ctx := context.Background()
	before := goose.TableName()
	fsys := fstest.MapFS{
		"migrations/00001_create_tags.sql": &fstest.MapFile{Data: []byte(`-- +goose Up
CREATE TABLE tags (id INTEGER PRIMARY KEY);

-- +goose Down
DROP TABLE tags;
`)},
	}

	tests := []struct {
		name string
		run  func(*Manager) error
	}{
		{name: "migrate", run: func(m *Manager) error { return m.MigrateFS(ctx, fsys, "migrations") }},
		{name: "version", run: func(m *Manager) error { _, err := m.FSVersion(ctx, fsys); return err }},
		{name: "rollback", run: func(m *Manager) error { return m.RollbackFS(ctx, fsys, "migrations") }},
	}

	m := NewManager(testutil.OpenSQLite(t, adapter.Config{}), WithGooseTable("custom_goose_versions"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.run(m))
			assert.Equal(t, before, goose.TableName())
		})
	}

	ok, err := m.TableExists(ctx, "custom_goose_versions")
	require.NoError(t, err)
	assert.True(t, ok)
}
