package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// CreateTable creates the table unless it already exists. It returns true
// when the table was created. Indexes in opts are created afterwards.
func (m *Manager) CreateTable(ctx context.Context, name string, columns []Column, opts TableOptions) (bool, error) {
	exists, err := m.TableExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		m.logger.Debug("table exists, skipping create", slog.String("table", name))
		return false, nil
	}
	if len(columns) == 0 {
		return false, &core.SchemaError{Op: "create table", Table: name, Err: errors.New("no columns defined")}
	}

	d := m.dialect()
	defs := make([]string, 0, len(columns)+len(opts.ForeignKeys)+1)
	var pk []string
	for _, col := range columns {
		def, err := m.columnDef(col)
		if err != nil {
			return false, &core.SchemaError{Op: "create table", Table: name, Column: col.Name, Err: err}
		}
		defs = append(defs, def)
		if col.PrimaryKey && !col.AutoIncrement {
			pk = append(pk, col.Name)
		}
	}
	pk = append(pk, opts.PrimaryKey...)
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+d.QuoteAll(pk)+")")
	}
	for _, fk := range opts.ForeignKeys {
		clause, err := m.foreignKeyClause(fk)
		if err != nil {
			return false, &core.SchemaError{Op: "create table", Table: name, Constraint: fk.Name, Err: err}
		}
		defs = append(defs, clause)
	}

	sql := "CREATE TABLE " + m.table(name) + " (" + strings.Join(defs, ", ") + ")"
	suffix, err := m.tableOptions(opts)
	if err != nil {
		return false, &core.SchemaError{Op: "create table", Table: name, Err: err}
	}
	sql += suffix

	if err := m.exec(ctx, "create table", name, "", "", sql); err != nil {
		return false, err
	}
	for _, idx := range opts.Indexes {
		if err := m.AddIndex(ctx, name, idx); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (m *Manager) columnDef(col Column) (string, error) {
	if col.Name == "" {
		return "", errors.New("column name is required")
	}
	if err := validateType(col.Type); err != nil {
		return "", err
	}
	d := m.dialect()

	var sb strings.Builder
	sb.WriteString(d.Quote(col.Name))
	sb.WriteString(" ")
	sb.WriteString(col.Type)
	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(dialect.Literal(col.Default))
	}
	if col.AutoIncrement {
		if d.AutoIncrement == "" {
			return "", fmt.Errorf("auto increment: %w", core.ErrUnsupported)
		}
		if d.Name == dialect.SQLite {
			sb.WriteString(" PRIMARY KEY " + d.AutoIncrement)
		} else {
			sb.WriteString(" " + d.AutoIncrement + " PRIMARY KEY")
		}
	}
	if col.Unique {
		sb.WriteString(" UNIQUE")
	}
	return sb.String(), nil
}

func (m *Manager) tableOptions(opts TableOptions) (string, error) {
	if !m.dialect().SupportsTableOptions {
		return "", nil
	}
	charset := opts.Charset
	if charset == "" {
		charset = m.conn.Charset()
	}
	collation := opts.Collation
	if collation == "" {
		collation = m.conn.Collation()
	}

	var parts []string
	for _, o := range []struct{ key, value string }{
		{"ENGINE", opts.Engine},
		{"DEFAULT CHARSET", charset},
		{"COLLATE", collation},
		{"ROW_FORMAT", opts.RowFormat},
	} {
		if o.value == "" {
			continue
		}
		if !optionValue.MatchString(o.value) {
			return "", fmt.Errorf("invalid table option %s=%q", o.key, o.value)
		}
		parts = append(parts, o.key+"="+o.value)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " " + strings.Join(parts, " "), nil
}

// AddColumn adds a column unless it exists. after positions the column on
// engines that support it and is ignored elsewhere.
func (m *Manager) AddColumn(ctx context.Context, table string, col Column, after string) error {
	exists, err := m.ColumnExists(ctx, table, col.Name)
	if err != nil {
		return err
	}
	if exists {
		m.logger.Debug("column exists, skipping add", slog.String("table", table), slog.String("column", col.Name))
		return nil
	}
	def, err := m.columnDef(col)
	if err != nil {
		return &core.SchemaError{Op: "add column", Table: table, Column: col.Name, Err: err}
	}
	sql := "ALTER TABLE " + m.table(table) + " ADD COLUMN " + def
	if after != "" && m.dialect().SupportsAfterColumn {
		sql += " AFTER " + m.dialect().Quote(after)
	}
	return m.exec(ctx, "add column", table, col.Name, "", sql)
}

// ModifyColumn changes a column's type, nullability and default.
func (m *Manager) ModifyColumn(ctx context.Context, table string, col Column) error {
	d := m.dialect()
	schemaErr := func(err error) error {
		return &core.SchemaError{Op: "modify column", Table: table, Column: col.Name, Err: err}
	}

	switch d.Modify {
	case dialect.ModifyColumnClause:
		def, err := m.columnDef(col)
		if err != nil {
			return schemaErr(err)
		}
		return m.exec(ctx, "modify column", table, col.Name, "", "ALTER TABLE "+m.table(table)+" MODIFY COLUMN "+def)

	case dialect.ModifyAlterColumn:
		if err := validateType(col.Type); err != nil {
			return schemaErr(err)
		}
		prefix := "ALTER TABLE " + m.table(table) + " ALTER COLUMN " + d.Quote(col.Name)
		stmts := []string{prefix + " TYPE " + col.Type}
		if col.Nullable {
			stmts = append(stmts, prefix+" DROP NOT NULL")
		} else {
			stmts = append(stmts, prefix+" SET NOT NULL")
		}
		if col.Default != nil {
			stmts = append(stmts, prefix+" SET DEFAULT "+dialect.Literal(col.Default))
		} else {
			stmts = append(stmts, prefix+" DROP DEFAULT")
		}
		for _, s := range stmts {
			if err := m.exec(ctx, "modify column", table, col.Name, "", s); err != nil {
				return err
			}
		}
		return nil

	default:
		return schemaErr(core.ErrUnsupported)
	}
}

// DropColumn drops a column if it exists.
func (m *Manager) DropColumn(ctx context.Context, table, column string) error {
	exists, err := m.ColumnExists(ctx, table, column)
	if err != nil || !exists {
		return err
	}
	sql := "ALTER TABLE " + m.table(table) + " DROP COLUMN " + m.dialect().Quote(column)
	return m.exec(ctx, "drop column", table, column, "", sql)
}

// RenameColumn renames from to to. It is skipped when from is gone and to
// already exists.
func (m *Manager) RenameColumn(ctx context.Context, table, from, to string) error {
	fromExists, err := m.ColumnExists(ctx, table, from)
	if err != nil {
		return err
	}
	if !fromExists {
		toExists, err := m.ColumnExists(ctx, table, to)
		if err != nil {
			return err
		}
		if toExists {
			return nil
		}
	}
	d := m.dialect()
	sql := "ALTER TABLE " + m.table(table) + " RENAME COLUMN " + d.Quote(from) + " TO " + d.Quote(to)
	return m.exec(ctx, "rename column", table, from, "", sql)
}

// AddIndex creates an index unless one with the same name exists.
// An empty name is derived from the table and columns.
func (m *Manager) AddIndex(ctx context.Context, table string, idx Index) error {
	d := m.dialect()
	typ := strings.ToLower(strings.TrimSpace(idx.Type))
	if typ == "" {
		typ = "index"
	}
	if len(idx.Columns) == 0 {
		return &core.SchemaError{Op: "add index", Table: table, Constraint: idx.Name, Err: errors.New("no columns")}
	}
	if !indexTypes[typ] {
		return &core.SchemaError{Op: "add index", Table: table, Constraint: idx.Name, Err: fmt.Errorf("invalid index type %q", idx.Type)}
	}
	if !d.SupportsIndexType(typ) {
		return &core.SchemaError{Op: "add index", Table: table, Constraint: idx.Name, Err: fmt.Errorf("%s index: %w", typ, core.ErrUnsupported)}
	}
	name := idx.Name
	if name == "" {
		name = sanitizeName(m.conn.QualifyTable(table) + "_" + strings.Join(idx.Columns, "_") + "_idx")
	}

	exists, err := m.IndexExists(ctx, table, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	kind := "INDEX"
	if typ != "index" {
		kind = strings.ToUpper(typ) + " INDEX"
	}
	sql := "CREATE " + kind + " " + d.QuoteName(name) + " ON " + m.table(table) + " (" + d.QuoteAll(idx.Columns) + ")"
	return m.exec(ctx, "add index", table, "", name, sql)
}

// DropIndex drops an index if it exists.
func (m *Manager) DropIndex(ctx context.Context, table, name string) error {
	exists, err := m.IndexExists(ctx, table, name)
	if err != nil || !exists {
		return err
	}
	d := m.dialect()
	sql := "DROP INDEX " + d.QuoteName(name)
	if d.DropIndexOnTable {
		sql += " ON " + m.table(table)
	}
	return m.exec(ctx, "drop index", table, "", name, sql)
}

func (m *Manager) foreignKeyClause(fk ForeignKey) (string, error) {
	if fk.Name == "" || fk.Column == "" || fk.RefTable == "" || fk.RefColumn == "" {
		return "", errors.New("foreign key requires name, column, referenced table and column")
	}
	onDelete, err := normalizeAction(fk.OnDelete)
	if err != nil {
		return "", err
	}
	onUpdate, err := normalizeAction(fk.OnUpdate)
	if err != nil {
		return "", err
	}
	d := m.dialect()
	clause := "CONSTRAINT " + d.QuoteName(fk.Name) + " FOREIGN KEY (" + d.Quote(fk.Column) + ") REFERENCES " +
		m.table(fk.RefTable) + " (" + d.Quote(fk.RefColumn) + ")"
	if onDelete != "" {
		clause += " ON DELETE " + onDelete
	}
	if onUpdate != "" {
		clause += " ON UPDATE " + onUpdate
	}
	return clause, nil
}

// AddForeignKey adds a named foreign key unless it already exists.
func (m *Manager) AddForeignKey(ctx context.Context, table string, fk ForeignKey) error {
	clause, err := m.foreignKeyClause(fk)
	if err != nil {
		return &core.SchemaError{Op: "add foreign key", Table: table, Column: fk.Column, Constraint: fk.Name, Err: err}
	}
	exists, err := m.ForeignKeyExists(ctx, table, fk.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !m.dialect().SupportsAddForeignKey {
		return &core.SchemaError{Op: "add foreign key", Table: table, Column: fk.Column, Constraint: fk.Name, Err: core.ErrUnsupported}
	}
	return m.exec(ctx, "add foreign key", table, fk.Column, fk.Name, "ALTER TABLE "+m.table(table)+" ADD "+clause)
}

// DropForeignKey drops a named foreign key if it exists.
func (m *Manager) DropForeignKey(ctx context.Context, table, name string) error {
	exists, err := m.ForeignKeyExists(ctx, table, name)
	if err != nil || !exists {
		return err
	}
	d := m.dialect()
	if d.DropForeignKeyFormat == "" {
		return &core.SchemaError{Op: "drop foreign key", Table: table, Constraint: name, Err: core.ErrUnsupported}
	}
	sql := fmt.Sprintf(d.DropForeignKeyFormat, m.table(table), d.QuoteName(name))
	return m.exec(ctx, "drop foreign key", table, "", name, sql)
}

// AddCheckConstraint adds a CHECK constraint on a best-effort basis.
// Failures are logged and reported as false; support varies by engine and
// version.
func (m *Manager) AddCheckConstraint(ctx context.Context, table, name, condition string) bool {
	if !m.dialect().SupportsCheck {
		m.logger.Warn("check constraints not supported, skipping",
			slog.String("table", table), slog.String("constraint", name))
		return false
	}
	sql := "ALTER TABLE " + m.table(table) + " ADD CONSTRAINT " + m.dialect().QuoteName(name) + " CHECK (" + condition + ")"
	if err := m.exec(ctx, "add check constraint", table, "", name, sql); err != nil {
		m.logger.Warn("failed to add check constraint",
			slog.String("table", table), slog.String("constraint", name), slog.String("error", err.Error()))
		return false
	}
	return true
}

// DropTable drops the tables if they exist. Foreign key checks are disabled
// for the duration so tables can be dropped in any order.
func (m *Manager) DropTable(ctx context.Context, tables ...string) error {
	d := m.dialect()
	if d.DisableForeignKeys != "" {
		if err := m.exec(ctx, "disable foreign keys", "", "", "", d.DisableForeignKeys); err != nil {
			return err
		}
		defer func() {
			if enableErr := m.exec(ctx, "enable foreign keys", "", "", "", d.EnableForeignKeys); enableErr != nil {
				m.logger.Warn("failed to re-enable foreign key checks", slog.String("error", enableErr.Error()))
			}
		}()
	}

	for _, t := range tables {
		sql := "DROP TABLE IF EXISTS " + m.table(t)
		if d.DropCascade {
			sql += " CASCADE"
		}
		if err := m.exec(ctx, "drop table", t, "", "", sql); err != nil {
			return err
		}
	}
	return nil
}
