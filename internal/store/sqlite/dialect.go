package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/loykin/migcheck/internal/constants"

	_ "modernc.org/sqlite"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name returns the driver name for logging
func (s *Dialect) Name() string {
	return constants.DriverSQLite
}

// Placeholder returns SQLite-style placeholders (?)
func (s *Dialect) Placeholder(int) string {
	return "?"
}

// QuoteIdent quotes each non-empty part and joins them with dots.
func (s *Dialect) QuoteIdent(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(p, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, ".")
}

// DefaultSchema is the schema of the primary database file.
func (s *Dialect) DefaultSchema() string {
	return constants.DefaultSQLiteSchema
}

// ColumnsQuery lists the columns of schema.table in declaration order.
// Attached databases are addressed by their schema name.
func (s *Dialect) ColumnsQuery(schema, table string) (string, []any) {
	if schema == "" {
		schema = s.DefaultSchema()
	}
	return "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", []any{table, schema}
}

// TablesQuery lists user tables of a schema.
func (s *Dialect) TablesQuery(schema string) (string, []any) {
	if schema == "" {
		schema = s.DefaultSchema()
	}
	q := fmt.Sprintf("SELECT name FROM %s WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name",
		s.QuoteIdent(schema, "sqlite_master"))
	return q, nil
}

// Connect opens a SQLite handle with connection pooling. In-memory databases
// keep their single connection alive for the lifetime of the handle.
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	if IsMemory(dsn) {
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
		db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)
	}

	return db, nil
}
