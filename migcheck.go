// Package migcheck drives a schema migration engine through its revision
// history, inserting fixture rows around each step and running consistency
// checks over the result.
package migcheck

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/loykin/migcheck/internal/checks"
	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/engine/gomigrate"
	"github.com/loykin/migcheck/internal/engine/sqlfile"
	"github.com/loykin/migcheck/internal/fixture"
	"github.com/loykin/migcheck/internal/runner"
	"github.com/loykin/migcheck/internal/store"
	"github.com/loykin/migcheck/internal/util"
)

// Option customizes Open.
type Option func(*openOptions)

type openOptions struct {
	db        *sql.DB
	fixtures  *fixture.Index
	onWarning func(Warning)
	logger    *common.Logger
}

// WithDB uses an already open database instead of connecting from
// Config.Database. The handle does not close it, but the golang-migrate
// sqlite driver does when the engine closes.
func WithDB(db *sql.DB) Option { return func(o *openOptions) { o.db = db } }

// WithFixtures overrides Config.Data.
func WithFixtures(ix *FixtureIndex) Option { return func(o *openOptions) { o.fixtures = ix } }

// WithWarningHandler receives downgrade soft-stop warnings.
func WithWarningHandler(fn func(Warning)) Option { return func(o *openOptions) { o.onWarning = fn } }

// WithLogger overrides the global logger for this handle.
func WithLogger(l *Logger) Option { return func(o *openOptions) { o.logger = l } }

// Handle bundles the database, engine and runner built from a Config.
type Handle struct {
	*runner.Runner

	DB      *sql.DB
	Dialect store.Dialect
	Engine  engine.Engine

	cfg          Config
	versionTable string
	ownsDB       bool
}

// Open validates cfg, connects to the database, builds the engine and
// returns a runner ready to walk the history.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Handle, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := &Handle{cfg: cfg}
	if o.db != nil {
		d, err := store.DialectFor(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		h.DB, h.Dialect = o.db, d
	} else {
		db, d, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		h.DB, h.Dialect, h.ownsDB = db, d, true
	}

	if err := h.init(ctx, cfg, o); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Handle) init(ctx context.Context, cfg Config, o openOptions) error {
	logger := o.logger
	if logger == nil {
		logger = common.GetLogger()
	}

	switch cfg.EngineType() {
	case constants.EngineGoMigrate:
		driver, err := store.NormalizeDriver(cfg.Database.Driver)
		if err != nil {
			return err
		}
		eng, err := gomigrate.New(h.DB, driver, gomigrate.Config{
			Dir:             cfg.Engine.Dir,
			MigrationsTable: cfg.Engine.VersionTable,
			SchemaName:      cfg.Engine.VersionTableSchema,
		})
		if err != nil {
			return err
		}
		h.Engine = eng
		h.versionTable = util.TrimWithDefault(cfg.Engine.VersionTable, constants.DefaultGoMigrateTable)
	default:
		eng, err := sqlfile.New(sqlfile.Config{
			Dir:                cfg.Engine.Dir,
			VersionTable:       cfg.Engine.VersionTable,
			VersionTableSchema: cfg.Engine.VersionTableSchema,
		}, h.Dialect)
		if err != nil {
			return err
		}
		h.Engine = eng
		h.versionTable = eng.VersionTable()
	}

	mode, err := dbctx.ParseMode(cfg.Session.Mode)
	if err != nil {
		return err
	}
	if hinter, ok := h.Engine.(engine.ModeHinter); ok && hinter.SessionMode() != mode {
		if cfg.Session.Mode != "" {
			logger.Warn("session mode overridden by engine", "configured", cfg.Session.Mode, "mode", string(hinter.SessionMode()))
		}
		mode = hinter.SessionMode()
	}

	fixtures := o.fixtures
	if fixtures == nil {
		if fixtures, err = loadFixtures(cfg.Data); err != nil {
			return err
		}
	}

	r, err := runner.New(ctx, h.Engine, dbctx.NewSession(h.DB, mode), h.Dialect, runner.Options{
		SkipRevisions:            cfg.SkipRevisions,
		MinimumDowngradeRevision: cfg.MinimumDowngradeRevision,
		Fixtures:                 fixtures,
		OnWarning:                o.onWarning,
		Logger:                   logger,
	})
	if err != nil {
		return err
	}
	h.Runner = r
	logger.WithComponent("migcheck").Debug("handle ready",
		"engine", cfg.EngineType(), "store", h.Dialect.Name(), "session", string(mode), "revisions", r.History().Len())
	return nil
}

func loadFixtures(cfg DataConfig) (*fixture.Index, error) {
	if path, ok := util.TrimEmptyCheck(cfg.File); ok {
		ix, err := fixture.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load fixture data: %w", err)
		}
		return ix, nil
	}
	return fixture.FromMaps(cfg.Before, cfg.At)
}

// VersionTable is the engine's bookkeeping table, excluded from schema
// comparisons.
func (h *Handle) VersionTable() string { return h.versionTable }

// Check runs the named checks, or the configured ones, or the default set.
func (h *Handle) Check(ctx context.Context, names ...string) ([]CheckResult, error) {
	if len(names) == 0 {
		names = h.cfg.Checks.Run
	}
	env := &checks.Env{
		Runner:        h.Runner,
		Schema:        h.cfg.Checks.Schema,
		ExcludeTables: []string{h.versionTable},
	}
	if path, ok := util.TrimEmptyCheck(h.cfg.Checks.Model); ok {
		m, err := checks.LoadModel(path)
		if err != nil {
			return nil, err
		}
		env.Model = m
	}
	return checks.Run(ctx, env, names...)
}

// Close releases the engine and, when Open connected it, the database.
func (h *Handle) Close() error {
	var result *multierror.Error
	if c, ok := h.Engine.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close engine: %w", err))
		}
	}
	if h.ownsDB && h.DB != nil {
		if err := h.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
