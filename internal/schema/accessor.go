// Package schema resolves live table shapes per revision and inserts
// fixture rows against them.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/fixture"
	"github.com/loykin/migcheck/internal/util"
)

// Dialect is the SQL surface the accessor needs.
type Dialect interface {
	Placeholder(index int) string
	QuoteIdent(parts ...string) string
	ColumnsQuery(schema, table string) (string, []any)
	TablesQuery(schema string) (string, []any)
}

// Table is the column set of a table as seen at one revision.
type Table struct {
	Schema  string
	Name    string
	Columns []string
	index   map[string]bool
}

// HasColumn reports whether the table has column c.
func (t *Table) HasColumn(c string) bool { return t.index[c] }

// QualifiedName returns schema.name, or name without a schema.
func (t *Table) QualifiedName() string { return util.Qualified(t.Schema, t.Name) }

// Model maps table name to its ordered columns.
type Model map[string][]string

type cacheKey struct {
	revision string
	schema   string
	name     string
}

// Accessor caches table handles per (revision, schema, name). Each
// orchestrator owns one; it is never shared.
type Accessor struct {
	dialect Dialect
	mu      sync.Mutex
	cache   map[cacheKey]*Table
}

// NewAccessor creates an accessor with an empty cache.
func NewAccessor(d Dialect) *Accessor {
	return &Accessor{dialect: d, cache: make(map[cacheKey]*Table)}
}

// Cached returns the number of cached handles.
func (a *Accessor) Cached() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cache)
}

// Table returns the handle of schema.name as of revision, introspecting the
// live database on first use. Missing tables are not cached.
func (a *Accessor) Table(ctx context.Context, ex dbctx.Execer, revision, schema, name string) (*Table, error) {
	key := cacheKey{revision: revision, schema: schema, name: name}
	a.mu.Lock()
	t, ok := a.cache[key]
	a.mu.Unlock()
	if ok {
		return t, nil
	}

	cols, err := a.columns(ctx, ex, schema, name)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", util.Qualified(schema, name), err)
	}
	if len(cols) == 0 {
		return nil, &TableNotFoundError{Revision: revision, Schema: schema, Name: name}
	}

	t = &Table{Schema: schema, Name: name, Columns: cols, index: make(map[string]bool, len(cols))}
	for _, c := range cols {
		t.index[c] = true
	}
	common.GetLogger().WithComponent("schema").WithRevision(revision).WithTable(schema, name).
		Debug("table introspected", "columns", len(cols))

	a.mu.Lock()
	a.cache[key] = t
	a.mu.Unlock()
	return t, nil
}

func (a *Accessor) columns(ctx context.Context, ex dbctx.Execer, schema, name string) ([]string, error) {
	q, args := a.dialect.ColumnsQuery(schema, name)
	return queryStrings(ctx, ex, q, args...)
}

func queryStrings(ctx context.Context, ex dbctx.Execer, q string, args ...any) ([]string, error) {
	rows, err := ex.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insert writes each row with one single-row INSERT. The row's table tag
// wins over defaultTable; a dotted name with no explicit schema is split
// into schema and table.
func (a *Accessor) Insert(ctx context.Context, ex dbctx.Execer, revision string, rows []fixture.Row, defaultTable, defaultSchema string) error {
	logger := common.GetLogger().WithComponent("schema").WithRevision(revision)
	for i, row := range rows {
		name := defaultTable
		if tag, ok := row.TableName(); ok {
			name = tag
		}
		if name == "" {
			return &MissingTableNameError{Revision: revision, Row: i}
		}
		schema := defaultSchema
		if schema == "" && strings.Contains(name, ".") {
			schema, name = util.SplitQualified(name)
		}

		t, err := a.Table(ctx, ex, revision, schema, name)
		if err != nil {
			return err
		}
		q, args, err := a.insertStatement(revision, t, row.Payload())
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s at revision %s: %w", t.QualifiedName(), revision, err)
		}
		logger.Debug("fixture row inserted", "table", t.QualifiedName())
	}
	return nil
}

func (a *Accessor) insertStatement(revision string, t *Table, payload fixture.Row) (string, []any, error) {
	var unknown []string
	for k := range payload {
		if !t.HasColumn(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", nil, &UnknownColumnError{Revision: revision, Table: t.QualifiedName(), Columns: unknown}
	}

	target := a.dialect.QuoteIdent(t.Schema, t.Name)
	if len(payload) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", target), nil, nil
	}

	cols := make([]string, 0, len(payload))
	marks := make([]string, 0, len(payload))
	args := make([]any, 0, len(payload))
	for _, c := range t.Columns {
		v, ok := payload[c]
		if !ok {
			continue
		}
		cols = append(cols, a.dialect.QuoteIdent(c))
		args = append(args, v)
		marks = append(marks, a.dialect.Placeholder(len(args)))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return q, args, nil
}

// Tables lists the live tables of schema, minus exclude. Never cached.
func (a *Accessor) Tables(ctx context.Context, ex dbctx.Execer, schema string, exclude ...string) ([]string, error) {
	q, args := a.dialect.TablesQuery(schema)
	names, err := queryStrings(ctx, ex, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(exclude) == 0 {
		return names, nil
	}
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	out := names[:0]
	for _, n := range names {
		if !skip[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Snapshot returns the live table/column model of schema, minus exclude.
func (a *Accessor) Snapshot(ctx context.Context, ex dbctx.Execer, schema string, exclude ...string) (Model, error) {
	names, err := a.Tables(ctx, ex, schema, exclude...)
	if err != nil {
		return nil, err
	}
	m := make(Model, len(names))
	for _, n := range names {
		cols, err := a.columns(ctx, ex, schema, n)
		if err != nil {
			return nil, fmt.Errorf("introspect %s: %w", util.Qualified(schema, n), err)
		}
		m[n] = cols
	}
	return m, nil
}
