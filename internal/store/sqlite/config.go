package sqlite

import (
	"fmt"
	"strings"

	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/util"
)

const foreignKeysParam = "_pragma=foreign_keys(1)"

// Config selects a SQLite database either by file path or by raw DSN.
// An empty config opens a private in-memory database.
type Config struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// DataSourceName returns the DSN for modernc.org/sqlite. An explicit DSN wins
// over Path.
func (c Config) DataSourceName() string {
	if dsn, ok := util.TrimEmptyCheck(c.DSN); ok {
		return dsn
	}
	if path, ok := util.TrimEmptyCheck(c.Path); ok {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&%s", path, constants.DefaultSQLiteBusyTimeout, foreignKeysParam)
	}
	return ":memory:"
}

// IsMemory reports whether dsn points at an in-memory database.
func IsMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
