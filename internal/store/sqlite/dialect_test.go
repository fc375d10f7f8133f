package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDialect_Basics(t *testing.T) {
	d := NewDialect()
	if d.Name() != "sqlite" {
		t.Errorf("Name() = %q", d.Name())
	}
	if d.Placeholder(3) != "?" {
		t.Errorf("Placeholder() = %q", d.Placeholder(3))
	}
	if d.DefaultSchema() != "main" {
		t.Errorf("DefaultSchema() = %q", d.DefaultSchema())
	}
}

func TestDialect_QuoteIdent(t *testing.T) {
	d := NewDialect()
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"foo"}, `"foo"`},
		{[]string{"meow", "foo"}, `"meow"."foo"`},
		{[]string{"", "foo"}, `"foo"`},
		{[]string{`we"ird`}, `"we""ird"`},
	}
	for _, tt := range tests {
		if got := d.QuoteIdent(tt.parts...); got != tt.want {
			t.Errorf("QuoteIdent(%v) = %s, want %s", tt.parts, got, tt.want)
		}
	}
}

func TestDialect_Queries(t *testing.T) {
	d := NewDialect()

	q, args := d.ColumnsQuery("", "foo")
	if !strings.Contains(q, "pragma_table_info") {
		t.Errorf("ColumnsQuery() = %q", q)
	}
	if !reflect.DeepEqual(args, []any{"foo", "main"}) {
		t.Errorf("ColumnsQuery() args = %v", args)
	}

	q, _ = d.TablesQuery("meow")
	if !strings.Contains(q, `"meow"."sqlite_master"`) {
		t.Errorf("TablesQuery() = %q", q)
	}
}

func TestConfig_DataSourceName(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty is memory", Config{}, ":memory:"},
		{"dsn wins", Config{DSN: "file:x.db", Path: "y.db"}, "file:x.db"},
		{"path", Config{Path: " /tmp/app.db "}, "file:/tmp/app.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DataSourceName(); got != tt.want {
				t.Errorf("DataSourceName() = %q, want %q", got, tt.want)
			}
		})
	}
	if !IsMemory(":memory:") || !IsMemory("file:x?mode=memory&cache=shared") || IsMemory("file:x.db") {
		t.Error("IsMemory() misclassified a DSN")
	}
}

func TestDialect_ConnectIntrospect(t *testing.T) {
	d := NewDialect()
	path := filepath.Join(t.TempDir(), "introspect.db")
	db, err := d.Connect(Config{Path: path}.DataSourceName())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE foo (id INTEGER PRIMARY KEY, name TEXT, qty INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	q, args := d.ColumnsQuery("", "foo")
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		t.Fatalf("columns query: %v", err)
	}
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			t.Fatalf("scan: %v", err)
		}
		cols = append(cols, c)
	}
	_ = rows.Close()
	if !reflect.DeepEqual(cols, []string{"id", "name", "qty"}) {
		t.Errorf("columns = %v", cols)
	}

	q, args = d.TablesQuery("")
	var name string
	if err := db.QueryRowContext(ctx, q, args...).Scan(&name); err != nil || name != "foo" {
		t.Errorf("tables query = %q, %v", name, err)
	}
}
