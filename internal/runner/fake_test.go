package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/store/sqlite"
)

// fakeEngine keeps the applied revision in memory and records every call.
type fakeEngine struct {
	revs     []history.Revision
	current  string
	calls    []string
	noDown   map[string]bool
	fail     map[string]error
	failDown map[string]error
}

func linear(ids ...string) []history.Revision {
	revs := make([]history.Revision, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		r := history.Revision{ID: ids[i]}
		if i > 0 {
			r.Parents = []string{ids[i-1]}
		}
		revs = append(revs, r)
	}
	return revs
}

func newFake(ids ...string) *fakeEngine {
	return &fakeEngine{revs: linear(ids...), current: history.Base, noDown: map[string]bool{}, fail: map[string]error{}, failDown: map[string]error{}}
}

func (f *fakeEngine) IterateRevisions(context.Context) ([]history.Revision, error) {
	return f.revs, nil
}

func (f *fakeEngine) UpgradeTo(_ context.Context, _ dbctx.Execer, rev string) error {
	f.calls = append(f.calls, "up:"+rev)
	if err := f.fail[rev]; err != nil {
		return err
	}
	f.current = rev
	return nil
}

func (f *fakeEngine) DowngradeTo(_ context.Context, _ dbctx.Execer, rev string) error {
	f.calls = append(f.calls, "down:"+rev)
	if f.noDown[f.current] {
		return fmt.Errorf("revision %s: %w", f.current, engine.ErrDowngradeNotImplemented)
	}
	if err := f.failDown[f.current]; err != nil {
		return err
	}
	f.current = rev
	return nil
}

func (f *fakeEngine) Stamp(_ context.Context, _ dbctx.Execer, rev string) error {
	f.calls = append(f.calls, "stamp:"+rev)
	f.current = rev
	return nil
}

func (f *fakeEngine) Current(context.Context, dbctx.Execer) (string, error) {
	return f.current, nil
}

func (f *fakeEngine) Heads(context.Context) ([]string, error) {
	g, err := history.New(f.revs)
	if err != nil {
		return nil, err
	}
	return g.Heads(), nil
}

// newFakeRunner builds a runner whose session never touches the database.
func newFakeRunner(t *testing.T, eng *fakeEngine, opts Options) *Runner {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r, err := New(context.Background(), eng, dbctx.NewSession(db, dbctx.ModePool), sqlite.NewDialect(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}
