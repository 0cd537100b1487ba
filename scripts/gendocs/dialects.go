package main

import (
	"log"
	"strings"

	"github.com/leapstack-labs/dbal/pkg/dialect"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return InlineCode(s)
}

// generateDialectDocs writes the capability matrix of the built-in dialects.
func generateDialectDocs(outDir string) error {
	log.Printf("Generating dialect reference to %s", outDir)

	names := dialect.List()
	dialects := make([]*dialect.Dialect, 0, len(names))
	for _, name := range names {
		dialects = append(dialects, dialect.MustGet(name))
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Dialects", "SQL dialect capabilities")
	w.GeneratedMarker()

	w.Header(1, "Dialects")
	w.Paragraph("Statements are generated per dialect. Operations a dialect cannot express fail with an unsupported error before reaching the database.")

	headers := append([]string{"Capability"}, names...)
	row := func(label string, fn func(d *dialect.Dialect) string) []string {
		r := []string{label}
		for _, d := range dialects {
			r = append(r, fn(d))
		}
		return r
	}

	rows := [][]string{
		row("Identifier quote", func(d *dialect.Dialect) string {
			return InlineCode(d.Identifiers.Quote + d.Identifiers.QuoteEnd)
		}),
		row("Placeholder", func(d *dialect.Dialect) string { return InlineCode(d.FormatPlaceholder(1)) }),
		row("Default schema", func(d *dialect.Dialect) string { return orDash(d.DefaultSchema) }),
		row("Upsert", func(d *dialect.Dialect) string {
			if d.Upsert == dialect.UpsertOnDuplicateKey {
				return "ON DUPLICATE KEY UPDATE"
			}
			if d.UpsertRequiresTarget {
				return "ON CONFLICT (target required)"
			}
			return "ON CONFLICT"
		}),
		row("Auto increment", func(d *dialect.Dialect) string { return orDash(d.AutoIncrement) }),
		row("Table options", func(d *dialect.Dialect) string { return yesNo(d.SupportsTableOptions) }),
		row("ADD COLUMN ... AFTER", func(d *dialect.Dialect) string { return yesNo(d.SupportsAfterColumn) }),
		row("Add foreign key", func(d *dialect.Dialect) string { return yesNo(d.SupportsAddForeignKey) }),
		row("Drop foreign key", func(d *dialect.Dialect) string { return yesNo(d.DropForeignKeyFormat != "") }),
		row("Check constraints", func(d *dialect.Dialect) string { return yesNo(d.SupportsCheck) }),
		row("Modify column", func(d *dialect.Dialect) string {
			switch d.Modify {
			case dialect.ModifyColumnClause:
				return "MODIFY COLUMN"
			case dialect.ModifyAlterColumn:
				return "ALTER COLUMN"
			default:
				return "no"
			}
		}),
		row("Index types", func(d *dialect.Dialect) string {
			if len(d.IndexTypes) == 0 {
				return "-"
			}
			return strings.Join(d.IndexTypes, ", ")
		}),
		row("Isolation levels", func(d *dialect.Dialect) string { return yesNo(len(d.Isolation) > 0) }),
		row("Migration dialect", func(d *dialect.Dialect) string { return orDash(d.GooseDialect) }),
	}
	w.Table(headers, rows)

	return writePage(outDir, "dialects.md", w)
}
