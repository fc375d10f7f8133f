package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/retry"
	"github.com/loykin/migcheck/internal/store/postgresql"
	"github.com/loykin/migcheck/internal/store/sqlite"
	"github.com/loykin/migcheck/internal/util"
)

// Dialect is the per-database SQL surface used by the schema accessor and
// the engines.
type Dialect interface {
	Name() string
	Placeholder(index int) string
	QuoteIdent(parts ...string) string
	DefaultSchema() string
	ColumnsQuery(schema, table string) (string, []any)
	TablesQuery(schema string) (string, []any)
	Connect(dsn string) (*sql.DB, error)
}

var (
	_ Dialect = (*sqlite.Dialect)(nil)
	_ Dialect = (*postgresql.Dialect)(nil)
)

// Config selects and configures the database under test.
type Config struct {
	Driver   string            `mapstructure:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgresql postgres pg"`
	SQLite   sqlite.Config     `mapstructure:"sqlite"`
	Postgres postgresql.Config `mapstructure:"postgres"`
	// Retry controls how long Open waits for the database to answer.
	Retry *retry.Config `mapstructure:"retry"`
}

// NormalizeDriver maps driver aliases to their canonical name. Empty means sqlite.
func NormalizeDriver(name string) (string, error) {
	switch util.TrimAndLower(name) {
	case "", "sqlite", "sqlite3":
		return constants.DriverSQLite, nil
	case "postgres", "pg", "postgresql":
		return constants.DriverPostgreSQL, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", name)
	}
}

// DialectFor returns the dialect for a driver name or alias.
func DialectFor(driver string) (Dialect, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if name == constants.DriverPostgreSQL {
		return postgresql.NewDialect(), nil
	}
	return sqlite.NewDialect(), nil
}

// DataSourceName resolves the DSN for the configured driver.
func (c Config) DataSourceName() (string, error) {
	name, err := NormalizeDriver(c.Driver)
	if err != nil {
		return "", err
	}
	if name == constants.DriverPostgreSQL {
		return c.Postgres.DataSourceName()
	}
	return c.SQLite.DataSourceName(), nil
}

// Open connects to the configured database and waits until it answers a ping.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, nil, err
	}

	logger := common.GetLogger().WithStore(dialect.Name())
	logger.Debug("opening database", "dsn", common.MaskDSN(dsn))

	db, err := dialect.Connect(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := retry.Ping(ctx, cfg.Retry, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name(), err)
	}

	logger.Info("database connection established")
	return db, dialect, nil
}
