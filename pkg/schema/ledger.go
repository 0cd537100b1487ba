package schema

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/query"
)

const versionKey = "schema_version"

// Migration is one ordered, reversible schema change.
type Migration struct {
	// Version orders migrations lexically, e.g. "2024_05_01_000001".
	Version string
	Name    string
	Up      func(ctx context.Context, m *Manager) error
	Down    func(ctx context.Context, m *Manager) error
}

// AppliedMigration is a row of the migration ledger.
type AppliedMigration struct {
	Version   string `db:"migration"`
	Batch     int64  `db:"batch"`
	AppliedAt string `db:"applied_at"`
}

func (m *Manager) ensureMeta(ctx context.Context) error {
	_, err := m.CreateTable(ctx, m.metaTable, []Column{
		{Name: "meta_key", Type: "VARCHAR(191)", PrimaryKey: true},
		{Name: "meta_value", Type: "TEXT", Nullable: true},
	}, TableOptions{})
	return err
}

// GetSchemaVersion returns the recorded schema version, or "" when none
// was set. The version lives in its own table so dropping and recreating
// the managed tables keeps it.
func (m *Manager) GetSchemaVersion(ctx context.Context) (string, error) {
	if err := m.ensureMeta(ctx); err != nil {
		return "", err
	}
	v, err := query.Table(m.conn, m.metaTable, query.WithLogger(m.logger)).
		Where("meta_key", "=", versionKey).
		Value(ctx, "meta_value")
	if err != nil {
		return "", &core.SchemaError{Op: "get schema version", Table: m.metaTable, Err: err}
	}
	return v.Text(), nil
}

// SetSchemaVersion records the schema version.
func (m *Manager) SetSchemaVersion(ctx context.Context, version string) error {
	if err := m.ensureMeta(ctx); err != nil {
		return err
	}
	b := query.Table(m.conn, m.metaTable, query.WithLogger(m.logger)).OnConflict("meta_key")
	_, err := b.Upsert(ctx,
		map[string]any{"meta_key": versionKey, "meta_value": version},
		map[string]any{"meta_value": b.Excluded("meta_value")})
	if err != nil {
		return &core.SchemaError{Op: "set schema version", Table: m.metaTable, Err: err}
	}
	m.logger.Info("schema version set", slog.String("version", version))
	return nil
}

// Register adds migrations to run with Migrate.
func (m *Manager) Register(migrations ...Migration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrations = append(m.migrations, migrations...)
}

func (m *Manager) registered() ([]Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.migrations)
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %q", out[i].Version)
		}
	}
	return out, nil
}

func (m *Manager) ensureLedger(ctx context.Context) error {
	_, err := m.CreateTable(ctx, m.migrationsTable, []Column{
		{Name: "migration", Type: "VARCHAR(191)", PrimaryKey: true},
		{Name: "batch", Type: "INTEGER"},
		{Name: "applied_at", Type: "VARCHAR(32)"},
	}, TableOptions{})
	return err
}

func (m *Manager) ledger() *query.Builder {
	return query.Table(m.conn, m.migrationsTable, query.WithLogger(m.logger))
}

// AppliedMigrations returns the ledger in version order.
func (m *Manager) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rs, err := m.ledger().OrderBy("migration", "ASC").Get(ctx)
	if err != nil {
		return nil, &core.SchemaError{Op: "read migrations", Table: m.migrationsTable, Err: err}
	}
	var out []AppliedMigration
	if err := rs.Decode(&out); err != nil {
		return nil, &core.SchemaError{Op: "read migrations", Table: m.migrationsTable, Err: err}
	}
	return out, nil
}

// Migrate applies every registered migration not yet in the ledger, in
// version order, as one new batch. It returns the applied versions.
func (m *Manager) Migrate(ctx context.Context) ([]string, error) {
	pending, err := m.registered()
	if err != nil {
		return nil, &core.SchemaError{Op: "migrate", Err: err}
	}
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(applied))
	var batch int64
	for _, a := range applied {
		done[a.Version] = true
		batch = max(batch, a.Batch)
	}
	batch++

	var ran []string
	for _, mig := range pending {
		if done[mig.Version] {
			continue
		}
		m.logger.Info("applying migration", slog.String("version", mig.Version), slog.String("name", mig.Name))
		if mig.Up != nil {
			if err := mig.Up(ctx, m); err != nil {
				return ran, &core.SchemaError{Op: "migrate", Err: fmt.Errorf("migration %s: %w", mig.Version, err)}
			}
		}
		_, err := m.ledger().Insert(ctx, map[string]any{
			"migration":  mig.Version,
			"batch":      batch,
			"applied_at": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return ran, &core.SchemaError{Op: "migrate", Table: m.migrationsTable, Err: err}
		}
		ran = append(ran, mig.Version)
	}
	return ran, nil
}

// RollbackMigration reverts the most recent batch in reverse version order
// and returns the reverted versions.
func (m *Manager) RollbackMigration(ctx context.Context) ([]string, error) {
	known, err := m.registered()
	if err != nil {
		return nil, &core.SchemaError{Op: "rollback migration", Err: err}
	}
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}

	var last int64
	for _, a := range applied {
		last = max(last, a.Batch)
	}
	byVersion := make(map[string]Migration, len(known))
	for _, mig := range known {
		byVersion[mig.Version] = mig
	}

	var reverted []string
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if a.Batch != last {
			continue
		}
		mig, ok := byVersion[a.Version]
		if !ok {
			return reverted, &core.SchemaError{Op: "rollback migration", Err: fmt.Errorf("migration %s is not registered", a.Version)}
		}
		m.logger.Info("reverting migration", slog.String("version", mig.Version), slog.String("name", mig.Name))
		if mig.Down != nil {
			if err := mig.Down(ctx, m); err != nil {
				return reverted, &core.SchemaError{Op: "rollback migration", Err: fmt.Errorf("migration %s: %w", mig.Version, err)}
			}
		}
		if _, err := m.ledger().Where("migration", "=", a.Version).Delete(ctx); err != nil {
			return reverted, &core.SchemaError{Op: "rollback migration", Table: m.migrationsTable, Err: err}
		}
		reverted = append(reverted, a.Version)
	}
	return reverted, nil
}
