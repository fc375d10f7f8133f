package constants

import "time"

// Revision sentinels
const (
	RevisionBase  = "base"
	RevisionHeads = "heads"
	RevisionHead  = "head"
)

// Fixture constants
const (
	// TableNameKey is the reserved fixture row key carrying the target table.
	TableNameKey = "__tablename__"
)

// Database Constants
const (
	DriverSQLite     = "sqlite"
	DriverPostgreSQL = "postgresql"

	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// SQLite defaults
	DefaultSQLiteSchema      = "main"
	DefaultSQLiteBusyTimeout = 5000 // milliseconds

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// Default table names
	DefaultVersionTable = "migcheck_version"
	// golang-migrate keeps its own bookkeeping table
	DefaultGoMigrateTable = "schema_migrations"
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// Engine types
const (
	EngineSQLFile   = "sqlfile"
	EngineGoMigrate = "golang-migrate"
)

// Session modes
const (
	SessionTx   = "tx"
	SessionConn = "conn"
	SessionPool = "pool"
)
