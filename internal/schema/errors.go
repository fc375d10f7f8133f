package schema

import (
	"fmt"
	"strings"

	"github.com/loykin/migcheck/internal/util"
)

// MissingTableNameError reports a fixture row that names no table and has no
// default to fall back on.
type MissingTableNameError struct {
	Revision string
	// Row is the position of the row within the batch being inserted.
	Row int
}

func (e *MissingTableNameError) Error() string {
	return fmt.Sprintf("fixture row %d at revision %q has no %s and no default table was given",
		e.Row, e.Revision, "__tablename__")
}

// TableNotFoundError reports a table with no visible columns at a revision.
type TableNotFoundError struct {
	Revision string
	Schema   string
	Name     string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q does not exist at revision %q", util.Qualified(e.Schema, e.Name), e.Revision)
}

// UnknownColumnError reports fixture columns the live table does not have.
type UnknownColumnError struct {
	Revision string
	Table    string
	Columns  []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("table %q at revision %q has no column(s): %s",
		e.Table, e.Revision, strings.Join(e.Columns, ", "))
}
