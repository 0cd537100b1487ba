// Package mysql provides a MySQL/MariaDB database adapter.
//
// It behaves like the host CMS client: every logical table name gets the
// configured prefix and DDL helpers see the connection charset and collation.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/dbal/pkg/adapter"
	"github.com/leapstack-labs/dbal/pkg/dialect"
)

// Defaults applied when the config leaves them empty.
const (
	DefaultCharset   = "utf8mb4"
	DefaultCollation = "utf8mb4_unicode_ci"
	DefaultPort      = 3306
)

// Server error numbers that are safe to retry.
const (
	errLockWaitTimeout uint16 = 1205
	errLockDeadlock    uint16 = 1213
)

// Adapter implements the adapter.Adapter interface for MySQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:     logger,
			SQLDialect: dialect.MustGet(dialect.MySQL),
		},
	}
}

// Name returns the registry name of the adapter.
func (a *Adapter) Name() string {
	return "mysql"
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	cfg = withDefaults(cfg)

	a.Logger.Debug("connecting to mysql",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
		slog.String("prefix", cfg.TablePrefix))

	db, err := sql.Open("mysql", buildMySQLDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mysql: %w", err)
	}

	return a.Attach(ctx, db, cfg)
}

// IsTransient reports deadlocks and lock wait timeouts.
func (a *Adapter) IsTransient(err error) bool {
	var myErr *driver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTimeout
	}
	return false
}

func withDefaults(cfg adapter.Config) adapter.Config {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Charset == "" {
		cfg.Charset = DefaultCharset
	}
	if cfg.Collation == "" {
		cfg.Collation = DefaultCollation
	}
	return cfg
}

// buildMySQLDSN constructs a go-sql-driver DSN. Extra options become
// connection parameters.
func buildMySQLDSN(cfg adapter.Config) string {
	dc := driver.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dc.DBName = cfg.Database
	dc.Collation = cfg.Collation
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": cfg.Charset}
	for k, v := range cfg.Options {
		dc.Params[k] = v
	}
	return dc.FormatDSN()
}

var (
	_ adapter.Adapter                = (*Adapter)(nil)
	_ adapter.TransientErrorDetector = (*Adapter)(nil)
	_ adapter.SQLDBProvider          = (*Adapter)(nil)
)
