// Package memory provides an in-process Connection that records every
// statement it receives and answers with scripted results.
//
// It is the test double for code that depends on adapter.Connection:
// builders, the schema manager and the transaction manager can be exercised
// without an engine, and their exact statement sequences asserted.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// Statement is one recorded call.
type Statement struct {
	Query bool
	SQL   string
	Args  []any
}

type queryScript struct {
	match string
	rows  []core.Row
}

type execScript struct {
	match  string
	result adapter.Result
}

type failure struct {
	match string
	err   error
	times int // <0 fails forever
}

// Adapter is a scripted spy Connection.
type Adapter struct {
	mu         sync.Mutex
	logger     *slog.Logger
	dialect    *dialect.Dialect
	cfg        adapter.Config
	statements []Statement
	queries    []queryScript
	execs      []execScript
	failures   []*failure
	transient  func(error) bool
	closed     bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDialect selects the dialect the adapter reports. Defaults to mysql.
func WithDialect(name string) Option {
	return func(a *Adapter) { a.dialect = dialect.MustGet(name) }
}

// WithTablePrefix sets the prefix used by QualifyTable.
func WithTablePrefix(prefix string) Option {
	return func(a *Adapter) { a.cfg.TablePrefix = prefix }
}

// WithCharset sets the reported charset and collation.
func WithCharset(charset, collation string) Option {
	return func(a *Adapter) {
		a.cfg.Charset = charset
		a.cfg.Collation = collation
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithTransientDetector makes the adapter implement typed transient
// detection with fn.
func WithTransientDetector(fn func(error) bool) Option {
	return func(a *Adapter) { a.transient = fn }
}

// New creates a memory adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{dialect: dialect.MustGet(dialect.MySQL)}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// Name returns the registry name of the adapter.
func (a *Adapter) Name() string { return "memory" }

// Connect applies cfg. The "dialect" option selects the reported dialect.
func (a *Adapter) Connect(_ context.Context, cfg adapter.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name, ok := cfg.Options["dialect"]; ok {
		d, found := dialect.Get(name)
		if !found {
			return fmt.Errorf("unknown dialect %q", name)
		}
		a.dialect = d
	}
	a.cfg = cfg
	a.closed = false
	return nil
}

// OnQuery scripts the rows returned for queries whose SQL contains match.
// The first matching script wins.
func (a *Adapter) OnQuery(match string, rows ...core.Row) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, queryScript{match: match, rows: rows})
	return a
}

// OnExec scripts the result of statements whose SQL contains match.
func (a *Adapter) OnExec(match string, result adapter.Result) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execs = append(a.execs, execScript{match: match, result: result})
	return a
}

// FailOn makes the next n statements containing match fail with err.
// A negative n fails every matching statement.
func (a *Adapter) FailOn(match string, err error, n int) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, &failure{match: match, err: err, times: n})
	return a
}

// Exec records the statement and returns the scripted result.
func (a *Adapter) Exec(_ context.Context, query string, args ...any) (adapter.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record(false, query, args)
	if err := a.failure(query); err != nil {
		return adapter.Result{}, err
	}
	for _, s := range a.execs {
		if strings.Contains(query, s.match) {
			return s.result, nil
		}
	}
	return adapter.Result{}, nil
}

// Query records the statement and returns the scripted rows.
func (a *Adapter) Query(_ context.Context, query string, args ...any) ([]core.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record(true, query, args)
	if err := a.failure(query); err != nil {
		return nil, err
	}
	for _, s := range a.queries {
		if strings.Contains(query, s.match) {
			out := make([]core.Row, len(s.rows))
			copy(out, s.rows)
			return out, nil
		}
	}
	return nil, nil
}

func (a *Adapter) record(isQuery bool, query string, args []any) {
	a.logger.Debug("recording statement", slog.String("sql", query), slog.Int("bindings", len(args)))
	cp := make([]any, len(args))
	copy(cp, args)
	a.statements = append(a.statements, Statement{Query: isQuery, SQL: query, Args: cp})
}

func (a *Adapter) failure(query string) error {
	for _, f := range a.failures {
		if f.times == 0 || !strings.Contains(query, f.match) {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

// IsTransient delegates to the detector installed with WithTransientDetector.
func (a *Adapter) IsTransient(err error) bool {
	if a.transient == nil {
		return false
	}
	return a.transient(err)
}

// Dialect returns the configured dialect.
func (a *Adapter) Dialect() *dialect.Dialect { return a.dialect }

// QualifyTable prepends the configured prefix.
func (a *Adapter) QualifyTable(name string) string {
	return adapter.QualifyName(a.cfg.TablePrefix, name)
}

// Charset returns the configured charset.
func (a *Adapter) Charset() string { return a.cfg.Charset }

// Collation returns the configured collation.
func (a *Adapter) Collation() string { return a.cfg.Collation }

// Close marks the adapter closed. Recorded statements are kept.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Statements returns a copy of every recorded statement.
func (a *Adapter) Statements() []Statement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Statement, len(a.statements))
	copy(out, a.statements)
	return out
}

// SQL returns the recorded statement texts in order.
func (a *Adapter) SQL() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.statements))
	for i, s := range a.statements {
		out[i] = s.SQL
	}
	return out
}

// Last returns the most recent statement.
func (a *Adapter) Last() (Statement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.statements) == 0 {
		return Statement{}, false
	}
	return a.statements[len(a.statements)-1], true
}

// Reset forgets recorded statements. Scripts and failures are kept.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statements = nil
}

var (
	_ adapter.Adapter                = (*Adapter)(nil)
	_ adapter.TransientErrorDetector = (*Adapter)(nil)
)
