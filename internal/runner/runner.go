// Package runner walks a revision history through a migration engine,
// inserting fixture rows around each step.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/fixture"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/schema"
)

const (
	directionUp    = "up"
	directionDown  = "down"
	directionStamp = "stamp"
)

// Options configures a Runner.
type Options struct {
	// SkipRevisions are stamped instead of executed.
	SkipRevisions []string
	// MinimumDowngradeRevision is the lowest revision a downgrade may reach.
	// Requests below it are clamped without a warning.
	MinimumDowngradeRevision string
	Fixtures                 *fixture.Index
	// OnWarning receives soft-stop warnings in addition to the log.
	OnWarning func(Warning)
	Logger    *common.Logger
}

// DowngradeResult reports where a downgrade ended.
type DowngradeResult struct {
	Current string
	// Halted is set when a revision without a downgrade stopped the walk.
	Halted  bool
	Warning *Warning
}

// Runner drives one engine against one session. It is not safe for
// concurrent use; each test should own its runner.
type Runner struct {
	engine   engine.Engine
	session  *dbctx.Session
	accessor *schema.Accessor
	opts     Options
	skip     map[string]bool
	logger   *common.Logger

	mu      sync.RWMutex
	graph   *history.Graph
	minimum string
}

// New builds a runner, reading the revision history from the engine and
// validating the fixtures, skip list and downgrade floor against it.
func New(ctx context.Context, eng engine.Engine, sess *dbctx.Session, d schema.Dialect, opts Options) (*Runner, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	r := &Runner{
		engine:   eng,
		session:  sess,
		accessor: schema.NewAccessor(d),
		opts:     opts,
		skip:     make(map[string]bool, len(opts.SkipRevisions)),
		logger:   logger.WithComponent("runner"),
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh rebuilds the revision graph from the engine, e.g. after a new
// revision has been generated.
func (r *Runner) Refresh(ctx context.Context) error {
	g, err := history.Parse(ctx, r.engine)
	if err != nil {
		return err
	}
	if err := r.opts.Fixtures.Validate(g); err != nil {
		return fmt.Errorf("fixture data: %w", err)
	}
	skip := make(map[string]bool, len(r.opts.SkipRevisions))
	for _, rev := range r.opts.SkipRevisions {
		if _, ok := g.Revision(rev); !ok {
			return fmt.Errorf("skip revisions: %w", &history.UnknownRevisionError{Revision: rev})
		}
		skip[rev] = true
	}
	minimum := ""
	if r.opts.MinimumDowngradeRevision != "" {
		if minimum, err = collapse(g, r.opts.MinimumDowngradeRevision); err != nil {
			return fmt.Errorf("minimum downgrade revision: %w", err)
		}
	}

	r.mu.Lock()
	r.graph = g
	r.skip = skip
	r.minimum = minimum
	r.mu.Unlock()
	r.logger.Debug("revision history loaded", "revisions", g.Len(), "heads", g.Heads())
	return nil
}

// History returns the current revision graph.
func (r *Runner) History() *history.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph
}

// collapse validates rev and maps heads onto the last real revision, which
// is what an engine reports once everything is applied.
func collapse(g *history.Graph, rev string) (string, error) {
	v, err := g.Validate(rev)
	if err != nil {
		return "", err
	}
	if v == history.Heads {
		return g.Tip(), nil
	}
	return v, nil
}

// Heads returns the engine's head revisions.
func (r *Runner) Heads(ctx context.Context) ([]string, error) {
	return r.engine.Heads(ctx)
}

// SingleHead returns the only head, or a *history.GraphError listing every
// head when the history has diverged.
func (r *Runner) SingleHead(ctx context.Context) (string, error) {
	heads, err := r.Heads(ctx)
	if err != nil {
		return "", err
	}
	return history.RequireSingleHead(heads)
}

// CurrentRevision reads the applied revision from the database.
func (r *Runner) CurrentRevision(ctx context.Context) (string, error) {
	var cur string
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		cur, err = r.engine.Current(ctx, ex)
		return err
	})
	return cur, err
}

func (r *Runner) current(ctx context.Context, ex dbctx.Execer, g *history.Graph) (string, error) {
	cur, err := r.engine.Current(ctx, ex)
	if err != nil {
		return "", err
	}
	return collapse(g, cur)
}

// MigrateUpTo upgrades to dest, inserting "before" rows ahead of each
// revision and "at" rows after it. It returns the new current revision.
func (r *Runner) MigrateUpTo(ctx context.Context, dest string) (string, error) {
	var cur string
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		cur, err = r.upTo(ctx, ex, dest)
		return err
	})
	return cur, err
}

func (r *Runner) upTo(ctx context.Context, ex dbctx.Execer, dest string) (string, error) {
	g := r.History()
	target, err := collapse(g, dest)
	if err != nil {
		return "", err
	}
	cur, err := r.current(ctx, ex, g)
	if err != nil {
		return "", err
	}
	steps, err := g.Window(cur, target)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return cur, nil
	}

	r.logger.WithDirection(directionUp).Info("upgrading", "from", cur, "to", target, "steps", len(steps))
	for _, s := range steps {
		if err := r.accessor.Insert(ctx, ex, s.Prev, r.opts.Fixtures.Before(s.Curr), "", ""); err != nil {
			return s.Prev, fmt.Errorf("insert data before %s: %w", s.Curr, err)
		}
		if r.isSkipped(s.Curr) {
			r.logger.WithRevision(s.Curr).Debug("stamping skipped revision")
			if err := r.engine.Stamp(ctx, ex, s.Curr); err != nil {
				return s.Prev, &EngineExecutionError{Revision: s.Curr, Direction: directionStamp, Err: err}
			}
		} else if err := r.engine.UpgradeTo(ctx, ex, s.Curr); err != nil {
			return s.Prev, &EngineExecutionError{Revision: s.Curr, Direction: directionUp, Err: err}
		}
		if err := r.accessor.Insert(ctx, ex, s.Curr, r.opts.Fixtures.At(s.Curr), "", ""); err != nil {
			return s.Curr, fmt.Errorf("insert data at %s: %w", s.Curr, err)
		}
	}
	return target, nil
}

func (r *Runner) isSkipped(rev string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skip[rev]
}

// MigrateUpBefore upgrades to the revision preceding rev.
func (r *Runner) MigrateUpBefore(ctx context.Context, rev string) (string, error) {
	prev, err := r.previous(rev)
	if err != nil {
		return "", err
	}
	return r.MigrateUpTo(ctx, prev)
}

func (r *Runner) previous(rev string) (string, error) {
	prev, ok, err := r.History().Previous(rev)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("revision before %s: %w", rev, ErrBoundary)
	}
	return prev, nil
}

// MigrateUpOne upgrades a single revision. It reports false when already at
// heads.
func (r *Runner) MigrateUpOne(ctx context.Context) (string, bool, error) {
	var (
		cur   string
		moved bool
	)
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		cur, moved, err = r.upOne(ctx, ex)
		return err
	})
	return cur, moved, err
}

func (r *Runner) upOne(ctx context.Context, ex dbctx.Execer) (string, bool, error) {
	g := r.History()
	cur, err := r.current(ctx, ex, g)
	if err != nil {
		return "", false, err
	}
	next, ok, err := g.Next(cur)
	if err != nil {
		return "", false, err
	}
	if !ok || next == history.Heads {
		return cur, false, nil
	}
	cur, err = r.upTo(ctx, ex, next)
	return cur, err == nil, err
}

// MigrateDownTo downgrades to dest. A revision without a downgrade stops the
// walk without an error; the result is marked halted and a warning is
// logged and passed to Options.OnWarning.
func (r *Runner) MigrateDownTo(ctx context.Context, dest string) (DowngradeResult, error) {
	var res DowngradeResult
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		res, err = r.downTo(ctx, ex, dest)
		return err
	})
	return res, err
}

func (r *Runner) downTo(ctx context.Context, ex dbctx.Execer, dest string) (DowngradeResult, error) {
	g := r.History()
	target, err := collapse(g, dest)
	if err != nil {
		return DowngradeResult{}, err
	}
	r.mu.RLock()
	minimum := r.minimum
	r.mu.RUnlock()
	if minimum != "" {
		below, err := g.Range(target, minimum)
		if err != nil {
			return DowngradeResult{}, err
		}
		if len(below) > 1 {
			target = minimum
		}
	}

	cur, err := r.current(ctx, ex, g)
	if err != nil {
		return DowngradeResult{}, err
	}
	res := DowngradeResult{Current: cur}
	steps, err := g.Window(target, cur)
	if err != nil {
		return res, err
	}
	if len(steps) == 0 {
		return res, nil
	}

	r.logger.WithDirection(directionDown).Info("downgrading", "from", cur, "to", target, "steps", len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if r.isSkipped(s.Curr) {
			r.logger.WithRevision(s.Curr).Debug("stamping past skipped revision", "target", s.Prev)
			if err := r.engine.Stamp(ctx, ex, s.Prev); err != nil {
				return res, &EngineExecutionError{Revision: s.Prev, Direction: directionStamp, Err: err}
			}
			res.Current = s.Prev
			continue
		}
		err := r.engine.DowngradeTo(ctx, ex, s.Prev)
		if errors.Is(err, engine.ErrDowngradeNotImplemented) {
			w := Warning{Revision: s.Curr, Target: s.Prev, Err: err}
			r.logger.WithRevision(s.Curr).Warn(w.String(), "target", s.Prev)
			if r.opts.OnWarning != nil {
				r.opts.OnWarning(w)
			}
			res.Halted = true
			res.Warning = &w
			return res, nil
		}
		if err != nil {
			return res, &EngineExecutionError{Revision: s.Curr, Direction: directionDown, Err: err}
		}
		res.Current = s.Prev
	}
	return res, nil
}

// MigrateDownBefore downgrades to the revision just before rev's successor,
// so rev stays applied. heads has no successor and gives ErrBoundary.
func (r *Runner) MigrateDownBefore(ctx context.Context, rev string) (DowngradeResult, error) {
	next, ok, err := r.History().Next(rev)
	if err != nil {
		return DowngradeResult{}, err
	}
	if !ok {
		return DowngradeResult{}, fmt.Errorf("revision after %s: %w", rev, ErrBoundary)
	}
	target, err := r.previous(next)
	if err != nil {
		return DowngradeResult{}, err
	}
	return r.MigrateDownTo(ctx, target)
}

// MigrateDownOne downgrades a single revision. It reports false when already
// at base.
func (r *Runner) MigrateDownOne(ctx context.Context) (DowngradeResult, bool, error) {
	var (
		res   DowngradeResult
		moved bool
	)
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		res, moved, err = r.downOne(ctx, ex)
		return err
	})
	return res, moved, err
}

func (r *Runner) downOne(ctx context.Context, ex dbctx.Execer) (DowngradeResult, bool, error) {
	g := r.History()
	cur, err := r.current(ctx, ex, g)
	if err != nil {
		return DowngradeResult{}, false, err
	}
	prev, ok, err := g.Previous(cur)
	if err != nil {
		return DowngradeResult{}, false, err
	}
	if !ok {
		return DowngradeResult{Current: cur}, false, nil
	}
	res, err := r.downTo(ctx, ex, prev)
	return res, err == nil && res.Current != cur, err
}

// RoundtripNextRevision upgrades, downgrades and upgrades the next revision
// again. It reports false when there is no next revision. When the downgrade
// soft-stops the database is already at the next revision and the final
// upgrade is skipped.
func (r *Runner) RoundtripNextRevision(ctx context.Context) (bool, error) {
	var moved bool
	err := r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		next, ok, err := r.upOne(ctx, ex)
		if err != nil || !ok {
			return err
		}
		moved = true
		res, _, err := r.downOne(ctx, ex)
		if err != nil || res.Halted || res.Current == next {
			return err
		}
		_, err = r.upTo(ctx, ex, next)
		return err
	})
	return moved, err
}

// InsertInto inserts rows at the current revision. Rows without a table tag
// go to table, which may be schema-qualified.
func (r *Runner) InsertInto(ctx context.Context, table string, rows ...fixture.Row) error {
	return r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		cur, err := r.current(ctx, ex, r.History())
		if err != nil {
			return err
		}
		return r.accessor.Insert(ctx, ex, cur, rows, table, "")
	})
}

// Stamp records rev as applied without running anything.
func (r *Runner) Stamp(ctx context.Context, rev string) error {
	target, err := collapse(r.History(), rev)
	if err != nil {
		return err
	}
	return r.session.Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		if err := r.engine.Stamp(ctx, ex, target); err != nil {
			return &EngineExecutionError{Revision: target, Direction: directionStamp, Err: err}
		}
		return nil
	})
}

// Generate asks the engine to author a new revision and reloads the history
// when one was written.
func (r *Runner) Generate(ctx context.Context, opts engine.GenerateOptions) (engine.GenerateResult, error) {
	gen, ok := r.engine.(engine.Generator)
	if !ok {
		return engine.GenerateResult{}, ErrGenerateUnsupported
	}
	res, err := gen.Generate(ctx, opts)
	if err != nil {
		return res, err
	}
	if res.Status == engine.StatusGenerated {
		if err := r.Refresh(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// MinimumDowngradeRevision returns the configured downgrade floor, with heads
// resolved, or "" when none is set.
func (r *Runner) MinimumDowngradeRevision() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minimum
}

// Accessor exposes the runner's table cache, mainly for checks that inspect
// the live schema.
func (r *Runner) Accessor() *schema.Accessor { return r.accessor }

// Session returns the session every operation runs in.
func (r *Runner) Session() *dbctx.Session { return r.session }
