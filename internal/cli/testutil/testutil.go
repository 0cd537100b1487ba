// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/dbal/internal/cli/output"
)

// initialMigration creates the table used by CLI tests.
const initialMigration = `-- +goose Up
CREATE TABLE wp_posts (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft'
);
CREATE INDEX wp_posts_status_idx ON wp_posts (status);

-- +goose Down
DROP TABLE wp_posts;
`

// SetupTestProject creates a temporary project: a dbal.yaml pointing at a
// sqlite file with table prefix wp_, and a migrations directory holding
// one migration. Returns the project root.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "migrations"), 0o755); err != nil {
		t.Fatalf("failed to create migrations directory: %v", err)
	}

	cfg := `connection:
  driver: sqlite
  path: app.db
  table_prefix: wp_
migrations:
  dir: migrations
output: json
`
	if err := os.WriteFile(filepath.Join(tmpDir, "dbal.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("failed to create dbal.yaml: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "migrations", "00001_create_posts.sql"),
		[]byte(initialMigration), 0o644); err != nil {
		t.Fatalf("failed to create migration: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRenderer(out, errOut, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
