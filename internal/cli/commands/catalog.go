package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/database"
	"github.com/leapstack-labs/dbal/pkg/schema"
	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return listTables(cmd.Context(), cmdCtx.DB, cmdCtx.Renderer)
		},
	}
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the columns and indexes of a table",
		Long: `Show the columns and indexes of a table.

The table may be given with or without the configured table prefix.`,
		Example: `  dbal describe posts
  dbal describe wp_posts -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			table := logicalName(cmdCtx.Cfg.Connection.TablePrefix, args[0])
			return describeTable(cmd.Context(), cmdCtx.DB, cmdCtx.Renderer, table)
		},
	}
}

// logicalName strips the table prefix from a physical table name.
func logicalName(prefix, name string) string {
	if prefix != "" && strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
		return name[len(prefix):]
	}
	return name
}

func listTables(ctx context.Context, db *database.DB, r *output.Renderer) error {
	tables, err := db.Schema().GetTables(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, len(tables))
	for i, t := range tables {
		rows[i] = []string{t}
	}
	return r.Object(tables, []string{"table"}, rows)
}

// tableDescription is the structured form of describe output.
type tableDescription struct {
	Name    string              `json:"name" yaml:"name"`
	Columns []schema.ColumnInfo `json:"columns" yaml:"columns"`
	Indexes []schema.IndexInfo  `json:"indexes" yaml:"indexes"`
}

// describeTable renders the columns and indexes of a logical table. CSV
// output carries the columns only.
func describeTable(ctx context.Context, db *database.DB, r *output.Renderer, table string) error {
	exists, err := db.Schema().TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %q not found", db.Conn().QualifyTable(table))
	}

	columns, err := db.Schema().GetColumns(ctx, table)
	if err != nil {
		return err
	}
	indexes, err := db.Schema().GetIndexes(ctx, table)
	if err != nil {
		return err
	}
	if indexes == nil {
		indexes = []schema.IndexInfo{}
	}

	desc := tableDescription{Name: db.Conn().QualifyTable(table), Columns: columns, Indexes: indexes}
	if r.Mode() == output.ModeJSON || r.Mode() == output.ModeYAML {
		return r.Object(desc, nil, nil)
	}

	colRows := make([][]string, len(columns))
	for i, c := range columns {
		colRows[i] = []string{c.Name, c.Type, yesNo(c.Nullable), output.FormatValue(c.Default), c.Key}
	}
	if r.Mode() == output.ModeTable {
		r.Println("Table: " + desc.Name)
	}
	if err := r.Object(desc, []string{"column", "type", "nullable", "default", "key"}, colRows); err != nil {
		return err
	}
	if r.Mode() != output.ModeTable || len(indexes) == 0 {
		return nil
	}

	idxRows := make([][]string, len(indexes))
	for i, idx := range indexes {
		idxRows[i] = []string{idx.Name, strings.Join(idx.Columns, ", "), strconv.FormatBool(idx.Unique), idx.Type}
	}
	r.Println()
	r.Println("Indexes:")
	return r.Object(desc, []string{"index", "columns", "unique", "type"}, idxRows)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
