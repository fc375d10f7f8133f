// Package checks holds the built-in migration history checks.
package checks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/runner"
	"github.com/loykin/migcheck/internal/schema"
)

// Check names.
const (
	NameSingleHeadRevision       = "single_head_revision"
	NameUpgrade                  = "upgrade"
	NameUpDownConsistency        = "up_down_consistency"
	NameDowngradeLeavesNoTrace   = "downgrade_leaves_no_trace"
	NameModelDefinitionsMatchDDL = "model_definitions_match_ddl"
)

const notImplementedWarning = "The %s downgrade is not implemented, which stopped the downgrade " +
	"early and may have let the check pass. If downgrades cannot safely be performed below this " +
	"revision, set minimum_downgrade_revision to avoid this warning."

// Env is what a check runs against.
type Env struct {
	Runner *runner.Runner
	// Schema limits table introspection; empty means the default schema.
	Schema string
	// ExcludeTables are ignored when comparing table sets, typically the
	// engine's version table.
	ExcludeTables []string
	// Model is the declared schema for NameModelDefinitionsMatchDDL.
	Model schema.Model

	warnings []string
}

func (e *Env) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.warnings = append(e.warnings, msg)
	common.GetLogger().WithComponent("checks").Warn(msg)
}

// Func is the body of a check. It returns a *Failure when the history
// violates the check and any other error when it could not run.
type Func func(ctx context.Context, env *Env) error

// Check is a named, registered check.
type Check struct {
	Name        string
	Description string
	// Experimental checks only run when named explicitly.
	Experimental bool
	// FromBase checks walk the history from an empty database; Run downgrades
	// to base before starting them.
	FromBase bool
	Run      Func
}

var registry = []Check{
	{Name: NameSingleHeadRevision, Description: "there is exactly one head revision", Run: SingleHeadRevision},
	{Name: NameUpgrade, Description: "the history upgrades from base to heads", FromBase: true, Run: Upgrade},
	{Name: NameModelDefinitionsMatchDDL, Description: "the upgraded schema matches the declared model", Run: ModelDefinitionsMatchDDL},
	{Name: NameUpDownConsistency, Description: "every revision upgrades and downgrades individually", FromBase: true, Run: UpDownConsistency},
	{Name: NameDowngradeLeavesNoTrace, Description: "downgrading a revision restores the previous table set", Experimental: true, FromBase: true, Run: DowngradeLeavesNoTrace},
}

// All returns every registered check.
func All() []Check { return slices.Clone(registry) }

// Default returns the non-experimental checks.
func Default() []string {
	var names []string
	for _, c := range registry {
		if !c.Experimental {
			names = append(names, c.Name)
		}
	}
	return names
}

// Lookup finds a check by name.
func Lookup(name string) (Check, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Result is the outcome of one check.
type Result struct {
	Name     string
	Err      error
	Warnings []string
	Duration time.Duration
}

// Passed reports whether the check ran without failing.
func (r Result) Passed() bool { return r.Err == nil }

// Failure returns the check failure, if that is what Err is.
func (r Result) Failure() (*Failure, bool) {
	var f *Failure
	ok := errors.As(r.Err, &f)
	return f, ok
}

// Run executes the named checks in order, or the default set when names is
// empty. FromBase checks first downgrade to base; when that stops early at the
// minimum downgrade revision or a missing downgrade, the check starts from
// there and the result carries a warning.
func Run(ctx context.Context, env *Env, names ...string) ([]Result, error) {
	if len(names) == 0 {
		names = Default()
	}
	selected := make([]Check, 0, len(names))
	for _, n := range names {
		c, ok := Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown check %q", n)
		}
		selected = append(selected, c)
	}

	logger := common.GetLogger().WithComponent("checks")
	results := make([]Result, 0, len(selected))
	for _, c := range selected {
		env.warnings = nil
		start := time.Now()
		var err error
		if c.FromBase {
			err = env.reset(ctx)
		}
		if err == nil {
			err = c.Run(ctx, env)
		}
		res := Result{Name: c.Name, Err: err, Warnings: env.warnings, Duration: time.Since(start)}
		if err != nil {
			logger.Error("check failed", "check", c.Name, "error", err)
		} else {
			logger.Info("check passed", "check", c.Name, "duration", res.Duration)
		}
		results = append(results, res)
	}
	return results, nil
}

// reset downgrades to base ahead of a FromBase check.
func (e *Env) reset(ctx context.Context) error {
	res, err := e.Runner.MigrateDownTo(ctx, history.Base)
	if err != nil {
		return failure("Failed to downgrade to base before running the check.",
			ContextItem{Title: "Migration Error", Body: err.Error()})
	}
	if res.Current != history.Base {
		e.warn("The database could not be downgraded below %s, so revisions up to it were not exercised.", res.Current)
	}
	return nil
}

// SingleHeadRevision asserts that the history has exactly one head.
func SingleHeadRevision(ctx context.Context, env *Env) error {
	heads, err := env.Runner.Heads(ctx)
	if err != nil {
		return err
	}
	if len(heads) != 1 {
		return failure(fmt.Sprintf("Expected 1 head revision, found %d", len(heads)),
			ContextItem{Title: "Heads", Body: strings.Join(heads, "\n")})
	}
	return nil
}

// Upgrade asserts that the history runs from base to heads.
func Upgrade(ctx context.Context, env *Env) error {
	if _, err := env.Runner.MigrateUpTo(ctx, history.Heads); err != nil {
		return failure("Failed to upgrade to the head revision. This means the historical chain "+
			"from an empty database to the current revision is not possible.",
			ContextItem{Title: "Migration Error", Body: err.Error()})
	}
	return nil
}

// UpDownConsistency upgrades through every revision one at a time, walks back
// down the same way and finally upgrades again as far as it got down.
func UpDownConsistency(ctx context.Context, env *Env) error {
	r := env.Runner
	revisions := r.History().Revisions()
	for _, rev := range revisions {
		if _, err := r.MigrateUpTo(ctx, rev); err != nil {
			return failure("Failed to upgrade through each revision individually.",
				ContextItem{Title: "Failing Revision", Body: rev},
				ContextItem{Title: "Migration Error", Body: err.Error()})
		}
	}

	down := revisions[:len(revisions)-1]
	slices.Reverse(down)
	minimum := r.MinimumDowngradeRevision()

	index := 0
	for i, rev := range down {
		index = i
		if minimum != "" && rev == minimum {
			break
		}
		res, err := r.MigrateDownTo(ctx, rev)
		if err != nil {
			return failure("Failed to downgrade through each revision individually.",
				ContextItem{Title: "Failing Revision", Body: rev},
				ContextItem{Title: "Migration Error", Body: err.Error()})
		}
		if res.Halted {
			env.warn(notImplementedWarning, res.Warning.Revision)
			break
		}
	}

	redo := slices.Clone(down[:index])
	slices.Reverse(redo)
	for _, rev := range redo {
		if _, err := r.MigrateUpTo(ctx, rev); err != nil {
			return failure("Failed to upgrade through each revision individually after performing "+
				"a roundtrip upgrade -> downgrade -> upgrade cycle.",
				ContextItem{Title: "Failing Revision", Body: rev},
				ContextItem{Title: "Migration Error", Body: err.Error()})
		}
	}
	return nil
}

func (e *Env) tables(ctx context.Context) ([]string, error) {
	var names []string
	err := e.Runner.Session().Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		names, err = e.Runner.Accessor().Tables(ctx, ex, e.Schema, e.ExcludeTables...)
		return err
	})
	return names, err
}

func (e *Env) snapshot(ctx context.Context) (schema.Model, error) {
	var m schema.Model
	err := e.Runner.Session().Run(ctx, func(ctx context.Context, ex dbctx.Execer) error {
		var err error
		m, err = e.Runner.Accessor().Snapshot(ctx, ex, e.Schema, e.ExcludeTables...)
		return err
	})
	return m, err
}

// DowngradeLeavesNoTrace asserts, revision by revision, that upgrading and
// then downgrading leaves the same set of tables behind.
func DowngradeLeavesNoTrace(ctx context.Context, env *Env) error {
	r := env.Runner
	for {
		before, err := env.tables(ctx)
		if err != nil {
			return err
		}
		rev, moved, err := r.MigrateUpOne(ctx)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		res, _, err := r.MigrateDownOne(ctx)
		if err != nil {
			return err
		}
		if res.Halted {
			env.warn(notImplementedWarning, rev)
			continue
		}
		after, err := env.tables(ctx)
		if err != nil {
			return err
		}
		if diff := cmp.Diff(before, after, cmpopts.EquateEmpty()); diff != "" {
			return failure(fmt.Sprintf("Downgrading %s did not restore the previous set of tables.", rev),
				ContextItem{Title: "Revision", Body: rev},
				ContextItem{Title: "Table differences (-before +after)", Body: diff})
		}
		if _, _, err := r.MigrateUpOne(ctx); err != nil {
			return err
		}
	}
}

// ModelDefinitionsMatchDDL upgrades to heads and compares the live schema
// with the declared model. Column order is not significant.
func ModelDefinitionsMatchDDL(ctx context.Context, env *Env) error {
	if env.Model == nil {
		return fmt.Errorf("%s: no model declared", NameModelDefinitionsMatchDDL)
	}
	if err := Upgrade(ctx, env); err != nil {
		return err
	}
	live, err := env.snapshot(ctx)
	if err != nil {
		return err
	}
	declared := schema.Model{}
	for table, cols := range env.Model {
		if !slices.Contains(env.ExcludeTables, table) {
			declared[table] = cols
		}
	}
	diff := cmp.Diff(declared, live, cmpopts.SortSlices(func(a, b string) bool { return a < b }), cmpopts.EquateEmpty())
	if diff == "" {
		return nil
	}
	return failure("The declared model is out of sync with the schema produced by the revision "+
		"history. Either the database was changed by hand, or the model changed without a "+
		"revision describing that change.",
		ContextItem{Title: "Tables", Body: strings.Join(sortedKeys(declared), ", ")},
		ContextItem{Title: "Differences (-declared +live)", Body: diff})
}

func sortedKeys(m schema.Model) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
