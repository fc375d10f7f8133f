package runner

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/engine/sqlfile"
	"github.com/loykin/migcheck/internal/fixture"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/schema"
	"github.com/loykin/migcheck/internal/store/sqlite"
)

var scenario = map[string]string{
	"aaaa.yaml": `revision: aaaa
message: create foo
up: CREATE TABLE foo (id INTEGER PRIMARY KEY)
down: DROP TABLE foo
`,
	"bbbb.yaml": `revision: bbbb
down_revision: aaaa
message: add name
up: ALTER TABLE foo ADD COLUMN name TEXT NOT NULL DEFAULT 'unnamed'
down: ALTER TABLE foo DROP COLUMN name
`,
	"cccc.yaml": `revision: cccc
down_revision: bbbb
message: create bar
up: CREATE TABLE bar (id INTEGER PRIMARY KEY, foo_id INTEGER)
down: DROP TABLE bar
`,
}

type harness struct {
	db     *sql.DB
	eng    *sqlfile.Engine
	runner *Runner
}

func newHarness(t *testing.T, files map[string]string, opts Options, prepare ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	d := sqlite.NewDialect()
	db, err := d.Connect(":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range prepare {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("prepare %q: %v", stmt, err)
		}
	}
	eng, err := sqlfile.New(sqlfile.Config{Dir: dir}, d)
	if err != nil {
		t.Fatalf("sqlfile.New() error = %v", err)
	}
	r, err := New(context.Background(), eng, dbctx.NewSession(db, dbctx.ModeTx), d, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{db: db, eng: eng, runner: r}
}

func mustFixtures(t *testing.T, before, at map[string]any) *fixture.Index {
	t.Helper()
	ix, err := fixture.FromMaps(before, at)
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	return ix
}

func TestSQLite_BeforeDataUsesPreviousSchema(t *testing.T) {
	data := mustFixtures(t, map[string]any{
		"bbbb": map[string]any{"__tablename__": "foo", "id": 9},
	}, nil)
	h := newHarness(t, scenario, Options{Fixtures: data})

	cur, err := h.runner.MigrateUpTo(context.Background(), "bbbb")
	if err != nil || cur != "bbbb" {
		t.Fatalf("MigrateUpTo(bbbb) = %q, %v", cur, err)
	}

	rows, err := h.db.Query("SELECT id, name FROM foo")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var got [][2]any
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, [2]any{id, name})
	}
	if len(got) != 1 || got[0][0] != 9 || got[0][1] != "unnamed" {
		t.Errorf("foo rows = %v, want one row with id 9", got)
	}
}

func TestSQLite_AtDataUsesNewSchema(t *testing.T) {
	data := mustFixtures(t, nil, map[string]any{
		"bbbb": []any{
			map[string]any{"__tablename__": "foo", "id": 1, "name": "one"},
			map[string]any{"__tablename__": "foo", "id": 2, "name": "two"},
		},
	})
	h := newHarness(t, scenario, Options{Fixtures: data})
	if _, err := h.runner.MigrateUpTo(context.Background(), "heads"); err != nil {
		t.Fatalf("MigrateUpTo() error = %v", err)
	}
	var n int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM foo WHERE name IN ('one', 'two')").Scan(&n); err != nil || n != 2 {
		t.Errorf("count = %d, %v", n, err)
	}
}

func TestSQLite_QualifiedTableName(t *testing.T) {
	files := map[string]string{
		"aaaa.yaml": `revision: aaaa
up: CREATE TABLE meow.foo (id INTEGER PRIMARY KEY)
down: DROP TABLE meow.foo
`,
	}
	data := mustFixtures(t, nil, map[string]any{
		"aaaa": map[string]any{"__tablename__": "meow.foo", "id": 9},
	})
	h := newHarness(t, files, Options{Fixtures: data}, "ATTACH DATABASE ':memory:' AS meow")

	if _, err := h.runner.MigrateUpTo(context.Background(), "aaaa"); err != nil {
		t.Fatalf("MigrateUpTo() error = %v", err)
	}
	var id int
	if err := h.db.QueryRow("SELECT id FROM meow.foo").Scan(&id); err != nil || id != 9 {
		t.Errorf("meow.foo id = %d, %v", id, err)
	}
}

func TestSQLite_UnknownColumnFailsTheStep(t *testing.T) {
	data := mustFixtures(t, map[string]any{
		"bbbb": map[string]any{"__tablename__": "foo", "id": 9, "name": "too early"},
	}, nil)
	h := newHarness(t, scenario, Options{Fixtures: data})
	_, err := h.runner.MigrateUpTo(context.Background(), "bbbb")
	if err == nil {
		t.Fatal("expected unknown column error")
	}
	if cur, _ := h.runner.CurrentRevision(context.Background()); cur != history.Base {
		t.Errorf("transaction should roll back, current = %q", cur)
	}
}

func TestSQLite_SoftStop(t *testing.T) {
	files := map[string]string{
		"aaaa.yaml": scenario["aaaa.yaml"],
		"bbbb.yaml": `revision: bbbb
down_revision: aaaa
up: CREATE TABLE baz (id INTEGER)
`,
		"cccc.yaml": scenario["cccc.yaml"],
	}
	var warnings int
	h := newHarness(t, files, Options{OnWarning: func(Warning) { warnings++ }})
	ctx := context.Background()

	if _, err := h.runner.MigrateUpTo(ctx, "heads"); err != nil {
		t.Fatalf("MigrateUpTo() error = %v", err)
	}
	res, err := h.runner.MigrateDownTo(ctx, "aaaa")
	if err != nil {
		t.Fatalf("MigrateDownTo() error = %v", err)
	}
	if !res.Halted || res.Current != "bbbb" || warnings != 1 {
		t.Errorf("MigrateDownTo() = %+v, warnings = %d", res, warnings)
	}
	if cur, _ := h.runner.CurrentRevision(ctx); cur != "bbbb" {
		t.Errorf("CurrentRevision() = %q, want bbbb", cur)
	}
}

func TestSQLite_EngineFailureRollsBack(t *testing.T) {
	files := map[string]string{
		"aaaa.yaml": scenario["aaaa.yaml"],
		"bbbb.yaml": `revision: bbbb
down_revision: aaaa
up: CREATE TABLE foo (id INTEGER)
down: []
`,
	}
	h := newHarness(t, files, Options{})
	ctx := context.Background()

	_, err := h.runner.MigrateUpTo(ctx, "heads")
	var ee *EngineExecutionError
	if !errors.As(err, &ee) || ee.Revision != "bbbb" || ee.Direction != "up" {
		t.Fatalf("error = %v, want EngineExecutionError for bbbb", err)
	}
	if cur, _ := h.runner.CurrentRevision(ctx); cur != history.Base {
		t.Errorf("CurrentRevision() = %q, want base after rollback", cur)
	}
}

func TestSQLite_RoundtripEveryRevision(t *testing.T) {
	h := newHarness(t, scenario, Options{})
	ctx := context.Background()
	steps := 0
	for {
		moved, err := h.runner.RoundtripNextRevision(ctx)
		if err != nil {
			t.Fatalf("roundtrip %d: %v", steps, err)
		}
		if !moved {
			break
		}
		steps++
	}
	if steps != 3 {
		t.Errorf("roundtrips = %d, want 3", steps)
	}
	if cur, _ := h.runner.CurrentRevision(ctx); cur != "cccc" {
		t.Errorf("CurrentRevision() = %q", cur)
	}
}

func TestSQLite_GenerateRefreshesHistory(t *testing.T) {
	h := newHarness(t, scenario, Options{})
	ctx := context.Background()

	res, err := h.runner.Generate(ctx, engine.GenerateOptions{
		Message: "create qux",
		Up:      []string{"CREATE TABLE qux (id INTEGER)"},
		Down:    []string{"DROP TABLE qux"},
	})
	if err != nil || res.Status != engine.StatusGenerated {
		t.Fatalf("Generate() = %+v, %v", res, err)
	}
	if h.runner.History().Tip() != res.Revision {
		t.Fatalf("history tip = %q, want %q", h.runner.History().Tip(), res.Revision)
	}
	cur, err := h.runner.MigrateUpTo(ctx, "heads")
	if err != nil || cur != res.Revision {
		t.Fatalf("MigrateUpTo() = %q, %v", cur, err)
	}
	if head, err := h.runner.SingleHead(ctx); err != nil || head != res.Revision {
		t.Errorf("SingleHead() = %q, %v", head, err)
	}
}

func TestSQLite_Stamp(t *testing.T) {
	h := newHarness(t, scenario, Options{})
	ctx := context.Background()
	if err := h.runner.Stamp(ctx, "head"); err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	if cur, _ := h.runner.CurrentRevision(ctx); cur != "cccc" {
		t.Errorf("CurrentRevision() = %q", cur)
	}
}

func TestSQLite_InsertInto(t *testing.T) {
	h := newHarness(t, scenario, Options{})
	ctx := context.Background()
	if _, err := h.runner.MigrateUpTo(ctx, "bbbb"); err != nil {
		t.Fatalf("MigrateUpTo() error = %v", err)
	}
	rows := []fixture.Row{
		{"id": 100, "name": "bare"},
		{fixture.TableNameKey: "foo", "id": 101},
	}
	if err := h.runner.InsertInto(ctx, "foo", rows...); err != nil {
		t.Fatalf("InsertInto() error = %v", err)
	}
	var n int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM foo WHERE id IN (100, 101)").Scan(&n); err != nil || n != 2 {
		t.Errorf("count = %d, %v", n, err)
	}

	var missing *schema.MissingTableNameError
	if err := h.runner.InsertInto(ctx, "", fixture.Row{"id": 102}); !errors.As(err, &missing) {
		t.Errorf("InsertInto() without table error = %v", err)
	}
}
