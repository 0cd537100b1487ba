package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/database"
	"github.com/leapstack-labs/dbal/pkg/result"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Input string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against the configured database",
		Long: `Run SQL statements against the configured database connection.

Statements that return rows are rendered in the selected output format;
other statements report the affected row count. Several statements
separated by semicolons run in order.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  dbal query "SELECT * FROM wp_options LIMIT 5"

  # Run a script
  dbal query -i seed.sql

  # Pipe SQL and get JSON
  echo "SELECT COUNT(*) AS n FROM posts" | dbal query -o json

  # Interactive mode
  dbal query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Determine SQL source
	var sqlText string

	switch {
	case len(args) > 0:
		sqlText = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlText = string(content)
	case !isTerminal(cmd.InOrStdin()):
		// Read from stdin (piped input)
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlText = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, cmdCtx)
	}

	return executeAndRender(cmd.Context(), cmdCtx.DB, cmdCtx.Renderer, sqlText)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// executeAndRender runs every statement of sqlText in order and renders
// each outcome. It stops at the first failing statement.
func executeAndRender(ctx context.Context, db *database.DB, r *output.Renderer, sqlText string) error {
	stmts := splitStatements(sqlText)
	if len(stmts) == 0 {
		return fmt.Errorf("no SQL statement given")
	}
	for i, stmt := range stmts {
		if err := executeStatement(ctx, db, r, stmt); err != nil {
			if len(stmts) > 1 {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
			return err
		}
	}
	return nil
}

func executeStatement(ctx context.Context, db *database.DB, r *output.Renderer, stmt string) error {
	if returnsRows(stmt) {
		rows, err := db.Conn().Query(ctx, stmt)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return r.Rows(result.FromRows(rows))
	}

	res, err := db.Conn().Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return r.Affected(result.Write(res.RowsAffected, res.LastInsertID))
}

// rowKeywords are the leading keywords of statements that produce rows.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"PRAGMA":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
	"VALUES":   true,
	"TABLE":    true,
}

// returnsRows reports whether stmt is a read statement, judged by its
// first keyword.
func returnsRows(stmt string) bool {
	stmt = strings.TrimLeft(stmt, " \t\r\n(")
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(stmt)
	}
	return rowKeywords[strings.ToUpper(stmt[:end])]
}

// splitStatements splits sqlText on semicolons outside quotes and
// comments. Empty statements are dropped.
func splitStatements(sqlText string) []string {
	var (
		out     []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			current.WriteRune(c)
			if c == quote {
				// A doubled quote is an escaped quote.
				if i+1 < len(runes) && runes[i+1] == quote {
					current.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteRune(c)
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case c == ';':
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return out
}
