package sqlfile

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/store/sqlite"
)

const (
	revA = `revision: aaaa
down_revision: null
message: create foo
up: CREATE TABLE foo (id INTEGER PRIMARY KEY)
down: DROP TABLE foo
`
	revB = `revision: bbbb
down_revision: aaaa
message: add name
up:
  - ALTER TABLE foo ADD COLUMN name TEXT
down:
  - ALTER TABLE foo DROP COLUMN name
`
	revC = `revision: cccc
down_revision: bbbb
message: create bar
up: CREATE TABLE bar (id INTEGER)
down: DROP TABLE bar
`
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func setup(t *testing.T, files map[string]string) (*Engine, *sql.DB) {
	t.Helper()
	d := sqlite.NewDialect()
	db, err := d.Connect(":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	e, err := New(Config{Dir: writeFiles(t, files)}, d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return n == 1
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, sqlite.NewDialect()); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, sqlite.NewDialect()); err == nil {
		t.Error("expected error for missing dir")
	}
	e, err := New(Config{Dir: t.TempDir()}, sqlite.NewDialect())
	if err != nil || e.VersionTable() != "migcheck_version" {
		t.Errorf("default version table = %v, %v", e, err)
	}
}

func TestIterateRevisionsAndHeads(t *testing.T) {
	e, _ := setup(t, map[string]string{"c.yaml": revC, "a.yaml": revA, "b.yml": revB, "notes.txt": "ignored"})
	ctx := context.Background()

	revs, err := e.IterateRevisions(ctx)
	if err != nil {
		t.Fatalf("IterateRevisions() error = %v", err)
	}
	var ids []string
	for _, r := range revs {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"cccc", "bbbb", "aaaa"}) {
		t.Errorf("IterateRevisions() = %v", ids)
	}
	if revs[0].Message != "create bar" || !reflect.DeepEqual(revs[0].Parents, []string{"bbbb"}) {
		t.Errorf("metadata lost: %+v", revs[0])
	}

	heads, err := e.Heads(ctx)
	if err != nil || !reflect.DeepEqual(heads, []string{"cccc"}) {
		t.Errorf("Heads() = %v, %v", heads, err)
	}
}

func TestUpgradeDowngradeStamp(t *testing.T) {
	e, db := setup(t, map[string]string{"a.yaml": revA, "b.yaml": revB, "c.yaml": revC})
	ctx := context.Background()

	cur, err := e.Current(ctx, db)
	if err != nil || cur != history.Base {
		t.Fatalf("Current() = %q, %v; want base", cur, err)
	}

	if err := e.UpgradeTo(ctx, db, "bbbb"); err != nil {
		t.Fatalf("UpgradeTo(bbbb) error = %v", err)
	}
	if cur, _ := e.Current(ctx, db); cur != "bbbb" {
		t.Fatalf("Current() = %q, want bbbb", cur)
	}
	if _, err := db.Exec("INSERT INTO foo (id, name) VALUES (1, 'x')"); err != nil {
		t.Fatalf("foo should have name at bbbb: %v", err)
	}

	if err := e.UpgradeTo(ctx, db, "head"); err != nil {
		t.Fatalf("UpgradeTo(head) error = %v", err)
	}
	if !tableExists(t, db, "bar") {
		t.Fatal("bar should exist at heads")
	}
	if err := e.UpgradeTo(ctx, db, "aaaa"); err == nil {
		t.Error("upgrading to an earlier revision should fail")
	}

	if err := e.DowngradeTo(ctx, db, "aaaa"); err != nil {
		t.Fatalf("DowngradeTo(aaaa) error = %v", err)
	}
	if cur, _ := e.Current(ctx, db); cur != "aaaa" {
		t.Fatalf("Current() = %q, want aaaa", cur)
	}
	if tableExists(t, db, "bar") {
		t.Fatal("bar should be gone at aaaa")
	}

	if err := e.DowngradeTo(ctx, db, "base"); err != nil {
		t.Fatalf("DowngradeTo(base) error = %v", err)
	}
	if tableExists(t, db, "foo") {
		t.Fatal("foo should be gone at base")
	}
	if cur, _ := e.Current(ctx, db); cur != history.Base {
		t.Fatalf("Current() = %q, want base", cur)
	}

	if err := e.Stamp(ctx, db, "cccc"); err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	if cur, _ := e.Current(ctx, db); cur != "cccc" {
		t.Fatalf("Current() after stamp = %q", cur)
	}
	if tableExists(t, db, "foo") {
		t.Fatal("stamp must not run statements")
	}
	if err := e.Stamp(ctx, db, "base"); err != nil {
		t.Fatalf("Stamp(base) error = %v", err)
	}
	if cur, _ := e.Current(ctx, db); cur != history.Base {
		t.Fatalf("Current() after stamp base = %q", cur)
	}

	var ue *history.UnknownRevisionError
	if err := e.UpgradeTo(ctx, db, "zzzz"); !errors.As(err, &ue) {
		t.Errorf("UpgradeTo(unknown) error = %v", err)
	}
}

func TestDowngradeNotImplemented(t *testing.T) {
	noDown := `revision: bbbb
down_revision: aaaa
up: CREATE TABLE baz (id INTEGER)
`
	e, db := setup(t, map[string]string{"a.yaml": revA, "b.yaml": noDown, "c.yaml": revC})
	ctx := context.Background()

	if err := e.UpgradeTo(ctx, db, "heads"); err != nil {
		t.Fatalf("UpgradeTo() error = %v", err)
	}
	// cccc drops bar; the check must happen before it runs
	err := e.DowngradeTo(ctx, db, "aaaa")
	if !errors.Is(err, engine.ErrDowngradeNotImplemented) {
		t.Fatalf("DowngradeTo() error = %v, want ErrDowngradeNotImplemented", err)
	}
	if cur, _ := e.Current(ctx, db); cur != "cccc" {
		t.Errorf("Current() = %q, want cccc untouched", cur)
	}
	if !tableExists(t, db, "bar") {
		t.Error("no statement should run when the range is not downgradable")
	}

	if err := e.DowngradeTo(ctx, db, "bbbb"); err != nil {
		t.Fatalf("DowngradeTo(bbbb) error = %v", err)
	}
}

func TestEmptyDownIsNoOp(t *testing.T) {
	emptyDown := `revision: bbbb
down_revision: aaaa
up: []
down: []
`
	e, db := setup(t, map[string]string{"a.yaml": revA, "b.yaml": emptyDown})
	ctx := context.Background()
	if err := e.UpgradeTo(ctx, db, "heads"); err != nil {
		t.Fatalf("UpgradeTo() error = %v", err)
	}
	if err := e.DowngradeTo(ctx, db, "aaaa"); err != nil {
		t.Fatalf("empty down should be allowed: %v", err)
	}
}

func TestStatementFailureNamesRevision(t *testing.T) {
	bad := `revision: bbbb
down_revision: aaaa
up: CREATE TABLE foo (id INTEGER)
down: []
`
	e, db := setup(t, map[string]string{"a.yaml": revA, "b.yaml": bad})
	ctx := context.Background()
	err := e.UpgradeTo(ctx, db, "heads")
	if err == nil {
		t.Fatal("expected duplicate table error")
	}
	if cur, _ := e.Current(ctx, db); cur != "aaaa" {
		t.Errorf("Current() = %q, want aaaa", cur)
	}
}

func TestBranchedHistoryIsLinearized(t *testing.T) {
	b := `revision: bbbb
down_revision: aaaa
up: CREATE TABLE b (id INTEGER)
down: DROP TABLE b
`
	c := `revision: cccc
down_revision: aaaa
up: CREATE TABLE c (id INTEGER)
down: DROP TABLE c
`
	merge := `revision: dddd
down_revision: [bbbb, cccc]
up: []
down: []
`
	e, db := setup(t, map[string]string{"a.yaml": revA, "b.yaml": b, "c.yaml": c, "d.yaml": merge})
	ctx := context.Background()

	heads, err := e.Heads(ctx)
	if err != nil || !reflect.DeepEqual(heads, []string{"dddd"}) {
		t.Fatalf("Heads() = %v, %v", heads, err)
	}
	if err := e.UpgradeTo(ctx, db, "heads"); err != nil {
		t.Fatalf("UpgradeTo() error = %v", err)
	}
	if !tableExists(t, db, "b") || !tableExists(t, db, "c") {
		t.Fatal("both branches should be applied")
	}
}

func TestVersionTableSchema(t *testing.T) {
	d := sqlite.NewDialect()
	db, err := d.Connect(":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec("ATTACH DATABASE ':memory:' AS meta"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	e, err := New(Config{Dir: writeFiles(t, map[string]string{"a.yaml": revA}), VersionTable: "ver", VersionTableSchema: "meta"}, d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := e.UpgradeTo(ctx, db, "aaaa"); err != nil {
		t.Fatalf("UpgradeTo() error = %v", err)
	}
	var v string
	if err := db.QueryRow("SELECT version_num FROM meta.ver").Scan(&v); err != nil || v != "aaaa" {
		t.Fatalf("meta.ver = %q, %v", v, err)
	}
}

func TestMalformedRevisionFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.yaml": "message: no id\n"})
	e, err := New(Config{Dir: dir}, sqlite.NewDialect())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := e.IterateRevisions(context.Background()); err == nil {
		t.Fatal("expected error for revision without id")
	}

	dir = writeFiles(t, map[string]string{"a.yaml": "revision: a\nup: {x: 1}\n"})
	e, _ = New(Config{Dir: dir}, sqlite.NewDialect())
	if _, err := e.IterateRevisions(context.Background()); err == nil {
		t.Fatal("expected error for mapping statements")
	}
}
