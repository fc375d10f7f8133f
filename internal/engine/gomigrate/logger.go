package gomigrate

import (
	"fmt"
	"strings"

	"github.com/loykin/migcheck/internal/common"
)

// migrateLogger routes golang-migrate output into the structured logger.
type migrateLogger struct {
	logger *common.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Level() >= common.LogLevelDebug
}
