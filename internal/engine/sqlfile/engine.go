// Package sqlfile is a migration engine over a directory of YAML revision
// files, each carrying its own up and down SQL.
//
// A revision file looks like:
//
//	revision: bbbb
//	down_revision: aaaa
//	message: add name to foo
//	up:
//	  - ALTER TABLE foo ADD COLUMN name TEXT
//	down: ALTER TABLE foo DROP COLUMN name
//
// A file without down (or with down: null) cannot be downgraded. Branched
// histories are applied in their linearized order, one revision at a time.
package sqlfile

import (
	"context"
	"fmt"
	"os"

	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/util"
)

// Dialect is the SQL surface the engine needs.
type Dialect interface {
	Placeholder(index int) string
	QuoteIdent(parts ...string) string
}

// Config configures the engine.
type Config struct {
	Dir                string `mapstructure:"dir"`
	VersionTable       string `mapstructure:"version_table"`
	VersionTableSchema string `mapstructure:"version_table_schema"`
}

// Engine implements engine.Engine and engine.Generator.
type Engine struct {
	dir     string
	version versionTable
	logger  *common.Logger
}

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Generator = (*Engine)(nil)
)

// New creates an engine over cfg.Dir.
func New(cfg Config, d Dialect) (*Engine, error) {
	dir, ok := util.TrimEmptyCheck(cfg.Dir)
	if !ok {
		return nil, fmt.Errorf("sqlfile: revision directory is required")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sqlfile: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("sqlfile: %s is not a directory", dir)
	}
	return &Engine{
		dir: dir,
		version: versionTable{
			dialect: d,
			schema:  util.TrimWithDefault(cfg.VersionTableSchema, ""),
			name:    util.TrimWithDefault(cfg.VersionTable, constants.DefaultVersionTable),
		},
		logger: common.GetLogger().WithComponent("sqlfile"),
	}, nil
}

// VersionTable returns the unqualified version table name.
func (e *Engine) VersionTable() string { return e.version.name }

// plan is the linearized revision list, base first.
type plan struct {
	files []revisionFile
	index map[string]int
}

func (e *Engine) load() (*plan, error) {
	files, err := listRevisionFiles(e.dir)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]revisionFile, len(files))
	revs := make([]history.Revision, 0, len(files))
	for _, f := range files {
		byID[f.Revision] = f
		revs = append(revs, f.revision())
	}
	ordered, err := history.Linearize(revs)
	if err != nil {
		return nil, err
	}
	p := &plan{files: make([]revisionFile, len(ordered)), index: make(map[string]int, len(ordered)+2)}
	p.index[history.Base] = -1
	for i := range ordered {
		f := byID[ordered[len(ordered)-1-i].ID]
		p.files[i] = f
		p.index[f.Revision] = i
	}
	p.index[history.Heads] = len(p.files) - 1
	return p, nil
}

func (p *plan) position(rev string) (int, error) {
	i, ok := p.index[history.Normalize(rev)]
	if !ok {
		return 0, &history.UnknownRevisionError{Revision: rev}
	}
	return i, nil
}

// IterateRevisions yields revisions heads first.
func (e *Engine) IterateRevisions(context.Context) ([]history.Revision, error) {
	p, err := e.load()
	if err != nil {
		return nil, err
	}
	out := make([]history.Revision, len(p.files))
	for i, f := range p.files {
		out[len(p.files)-1-i] = f.revision()
	}
	return out, nil
}

// Heads returns the revisions nobody depends on.
func (e *Engine) Heads(ctx context.Context) ([]string, error) {
	revs, err := e.IterateRevisions(ctx)
	if err != nil {
		return nil, err
	}
	g, err := history.New(revs)
	if err != nil {
		return nil, err
	}
	return g.Heads(), nil
}

// Current reads the version table.
func (e *Engine) Current(ctx context.Context, ex dbctx.Execer) (string, error) {
	return e.version.current(ctx, ex)
}

func (e *Engine) positions(ctx context.Context, ex dbctx.Execer, rev string) (*plan, int, int, error) {
	p, err := e.load()
	if err != nil {
		return nil, 0, 0, err
	}
	target, err := p.position(rev)
	if err != nil {
		return nil, 0, 0, err
	}
	cur, err := e.version.current(ctx, ex)
	if err != nil {
		return nil, 0, 0, err
	}
	from, err := p.position(cur)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("applied revision is not in %s: %w", e.dir, err)
	}
	return p, from, target, nil
}

func (e *Engine) exec(ctx context.Context, ex dbctx.Execer, f revisionFile, direction string, stmts Statements) error {
	logger := e.logger.WithRevision(f.Revision).WithDirection(direction)
	logger.Info("applying revision", "message", f.Message, "statements", len(stmts))
	for i, s := range stmts {
		if _, err := ex.ExecContext(ctx, s); err != nil {
			logger.Error("statement failed", "error", err, "index", i)
			return fmt.Errorf("%s %s statement %d: %w", direction, f.Revision, i+1, err)
		}
	}
	return nil
}

// UpgradeTo applies every revision after the current one up to rev.
func (e *Engine) UpgradeTo(ctx context.Context, ex dbctx.Execer, rev string) error {
	p, from, target, err := e.positions(ctx, ex, rev)
	if err != nil {
		return err
	}
	if target < from {
		return fmt.Errorf("cannot upgrade to %s: it precedes the applied revision %s", rev, p.files[from].Revision)
	}
	for i := from + 1; i <= target; i++ {
		f := p.files[i]
		if err := e.exec(ctx, ex, f, "up", f.Up); err != nil {
			return err
		}
		if err := e.version.set(ctx, ex, f.Revision); err != nil {
			return err
		}
	}
	return nil
}

// DowngradeTo reverts revisions down to rev. Downgradability of the whole
// range is checked before any statement runs.
func (e *Engine) DowngradeTo(ctx context.Context, ex dbctx.Execer, rev string) error {
	p, from, target, err := e.positions(ctx, ex, rev)
	if err != nil {
		return err
	}
	if target > from {
		return fmt.Errorf("cannot downgrade to %s: it follows the applied revision", rev)
	}
	for i := from; i > target; i-- {
		if !p.files[i].downgradable() {
			return fmt.Errorf("revision %s: %w", p.files[i].Revision, engine.ErrDowngradeNotImplemented)
		}
	}
	for i := from; i > target; i-- {
		f := p.files[i]
		if err := e.exec(ctx, ex, f, "down", f.Down); err != nil {
			return err
		}
		prev := history.Base
		if i > 0 {
			prev = p.files[i-1].Revision
		}
		if err := e.version.set(ctx, ex, prev); err != nil {
			return err
		}
	}
	return nil
}

// Stamp records rev without running anything.
func (e *Engine) Stamp(ctx context.Context, ex dbctx.Execer, rev string) error {
	p, err := e.load()
	if err != nil {
		return err
	}
	i, err := p.position(rev)
	if err != nil {
		return err
	}
	target := history.Base
	if i >= 0 {
		target = p.files[i].Revision
	}
	e.logger.WithRevision(target).WithDirection("stamp").Info("stamping revision")
	return e.version.set(ctx, ex, target)
}
