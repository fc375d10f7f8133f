package postgresql

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/loykin/migcheck/internal/constants"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name returns the driver name for logging
func (p *Dialect) Name() string {
	return constants.DriverPostgreSQL
}

// Placeholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// QuoteIdent quotes a possibly schema-qualified identifier.
func (p *Dialect) QuoteIdent(parts ...string) string {
	id := make(pgx.Identifier, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			id = append(id, part)
		}
	}
	return id.Sanitize()
}

// DefaultSchema is empty: unqualified names resolve through search_path.
func (p *Dialect) DefaultSchema() string {
	return ""
}

// ColumnsQuery lists the columns of schema.table in ordinal order. An empty
// schema means current_schema().
func (p *Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`, []any{schema, table}
}

// TablesQuery lists base tables of a schema.
func (p *Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_type = 'BASE TABLE'
ORDER BY table_name`, []any{schema}
}

// Connect opens a PostgreSQL handle with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)
	return db, nil
}
