package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/dbal/internal/cli/output"
	"github.com/leapstack-labs/dbal/pkg/database"
	"github.com/spf13/cobra"
)

const (
	replPrompt             = "dbal> "
	replContinuationPrompt = " ...> "
)

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext) error {
	ctx := cmd.Context()
	db := cmdCtx.DB

	// Setup history file (project-local)
	historyFile := filepath.Join(cmdCtx.Cfg.ProjectRoot, ".dbal_history")

	// Configure readline
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newTableCompleter(ctx, db),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Print welcome message
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dbal query REPL (%s)\n", cmdCtx.Cfg.Connection.Driver)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	// REPL loop
	var buffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buffer.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Dot-commands only at the start of a statement
		if buffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(ctx, cmd, db, cmdCtx.Renderer, line); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buffer.WriteString("\n")
			rl.SetPrompt(replContinuationPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sqlText := buffer.String()
		buffer.Reset()

		if err := executeAndRender(ctx, db, cmdCtx.Renderer, sqlText); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

// handleDotCommand runs a REPL dot-command and reports whether the REPL
// should exit.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, db *database.DB, r *output.Renderer, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".tables":
		if err := listTables(ctx, db, r); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}

	case ".describe", ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .describe <table>")
			return false
		}
		if err := describeTable(ctx, db, r, parts[1]); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}

	case ".clear":
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .tables           List all tables
  .describe <name>  Show columns and indexes of a table
  .clear            Clear the screen
  .quit / .exit     Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for table names
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter creates a readline completer for table names.
func newTableCompleter(ctx context.Context, db *database.DB) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	// Ignore errors: completion is optional
	if tables, err := db.Schema().GetTables(ctx); err == nil {
		for _, name := range tables {
			items = append(items, readline.PcItem(name))
		}
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".describe"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
