// Package gomigrate adapts a golang-migrate directory of numbered
// NNN_name.up.sql / NNN_name.down.sql files to the engine contract. Each
// version number is a revision and its parent is the version before it.
package gomigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/history"
	"github.com/loykin/migcheck/internal/util"
)

// Config configures the engine.
type Config struct {
	Dir             string `mapstructure:"dir"`
	MigrationsTable string `mapstructure:"migrations_table"`
	// SchemaName is only honored by postgres.
	SchemaName string `mapstructure:"schema_name"`
}

// Engine implements engine.Engine on top of golang-migrate. It talks to the
// database through its own driver instance, so the Execer arguments are
// unused and the session must run in pool mode.
type Engine struct {
	m        *migrate.Migrate
	src      source.Driver
	versions []uint
	messages map[uint]string
	logger   *common.Logger
}

var (
	_ engine.Engine     = (*Engine)(nil)
	_ engine.ModeHinter = (*Engine)(nil)
)

// New builds an engine for db. driver is constants.DriverSQLite or
// constants.DriverPostgreSQL.
func New(db *sql.DB, driver string, cfg Config) (*Engine, error) {
	dir, ok := util.TrimEmptyCheck(cfg.Dir)
	if !ok {
		return nil, fmt.Errorf("golang-migrate: migration directory is required")
	}
	if st, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("golang-migrate: %w", err)
	} else if !st.IsDir() {
		return nil, fmt.Errorf("golang-migrate: %s is not a directory", dir)
	}

	src, err := iofs.New(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver: %w", err)
	}

	table := util.TrimWithDefault(cfg.MigrationsTable, constants.DefaultGoMigrateTable)
	var drv database.Driver
	switch util.TrimAndLower(driver) {
	case constants.DriverSQLite:
		drv, err = msqlite.WithInstance(db, &msqlite.Config{MigrationsTable: table})
	case constants.DriverPostgreSQL, "postgres", "pgx":
		drv, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: table, SchemaName: cfg.SchemaName})
	default:
		err = fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create %s migrate driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger := common.GetLogger().WithComponent("golang-migrate")
	m.Log = migrateLogger{logger: logger}

	e := &Engine{m: m, src: src, messages: map[uint]string{}, logger: logger}
	if err := e.scan(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) scan() error {
	v, err := e.src.First()
	for err == nil {
		e.versions = append(e.versions, v)
		if r, ident, rerr := e.src.ReadUp(v); rerr == nil {
			e.messages[v] = ident
			_ = r.Close()
		}
		v, err = e.src.Next(v)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	return nil
}

// SessionMode implements engine.ModeHinter.
func (e *Engine) SessionMode() dbctx.Mode { return dbctx.ModePool }

// Close releases the source and database drivers.
func (e *Engine) Close() error {
	var result *multierror.Error
	srcErr, dbErr := e.m.Close()
	if srcErr != nil {
		result = multierror.Append(result, fmt.Errorf("source: %w", srcErr))
	}
	if dbErr != nil {
		result = multierror.Append(result, fmt.Errorf("database: %w", dbErr))
	}
	return result.ErrorOrNil()
}

func revisionID(v uint) string { return strconv.FormatUint(uint64(v), 10) }

// IterateRevisions yields versions newest first.
func (e *Engine) IterateRevisions(context.Context) ([]history.Revision, error) {
	out := make([]history.Revision, 0, len(e.versions))
	for i := len(e.versions) - 1; i >= 0; i-- {
		r := history.Revision{ID: revisionID(e.versions[i]), Message: e.messages[e.versions[i]]}
		if i > 0 {
			r.Parents = []string{revisionID(e.versions[i-1])}
		}
		out = append(out, r)
	}
	return out, nil
}

// Heads returns the highest version, if any.
func (e *Engine) Heads(context.Context) ([]string, error) {
	if len(e.versions) == 0 {
		return nil, nil
	}
	return []string{revisionID(e.versions[len(e.versions)-1])}, nil
}

// resolve maps a revision to its position in versions; base is -1.
func (e *Engine) resolve(rev string) (int, error) {
	switch history.Normalize(rev) {
	case history.Base:
		return -1, nil
	case history.Heads:
		return len(e.versions) - 1, nil
	}
	n, err := strconv.ParseUint(rev, 10, 64)
	if err == nil {
		for i, v := range e.versions {
			if uint64(v) == n {
				return i, nil
			}
		}
	}
	return 0, &history.UnknownRevisionError{Revision: rev}
}

func (e *Engine) position(ctx context.Context) (int, error) {
	cur, err := e.Current(ctx, nil)
	if err != nil {
		return 0, err
	}
	pos, err := e.resolve(cur)
	if err != nil {
		return 0, fmt.Errorf("applied version is not in the source: %w", err)
	}
	return pos, nil
}

// Current reports the applied version. A dirty version is an error.
func (e *Engine) Current(context.Context, dbctx.Execer) (string, error) {
	v, dirty, err := e.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return history.Base, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return "", fmt.Errorf("database is dirty at version %d", v)
	}
	return revisionID(v), nil
}

// UpgradeTo migrates up to rev.
func (e *Engine) UpgradeTo(ctx context.Context, _ dbctx.Execer, rev string) error {
	target, err := e.resolve(rev)
	if err != nil {
		return err
	}
	from, err := e.position(ctx)
	if err != nil {
		return err
	}
	if target < from {
		return fmt.Errorf("cannot upgrade to %s: it precedes the applied version", rev)
	}
	if target == from {
		return nil
	}
	e.logger.WithRevision(revisionID(e.versions[target])).WithDirection("up").Info("migrating")
	err = e.m.Migrate(e.versions[target])
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DowngradeTo migrates down to rev. Every version above rev must have a
// down file, otherwise engine.ErrDowngradeNotImplemented is returned before
// anything runs.
func (e *Engine) DowngradeTo(ctx context.Context, _ dbctx.Execer, rev string) error {
	target, err := e.resolve(rev)
	if err != nil {
		return err
	}
	from, err := e.position(ctx)
	if err != nil {
		return err
	}
	if target > from {
		return fmt.Errorf("cannot downgrade to %s: it follows the applied version", rev)
	}
	if target == from {
		return nil
	}
	for i := from; i > target; i-- {
		r, _, err := e.src.ReadDown(e.versions[i])
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("revision %s: %w", revisionID(e.versions[i]), engine.ErrDowngradeNotImplemented)
		}
		if err != nil {
			return fmt.Errorf("failed to read down migration %d: %w", e.versions[i], err)
		}
		_ = r.Close()
	}

	logger := e.logger.WithRevision(rev).WithDirection("down")
	logger.Info("migrating")
	if target < 0 {
		err = e.m.Down()
	} else {
		err = e.m.Migrate(e.versions[target])
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// Stamp forces the recorded version without running migrations.
func (e *Engine) Stamp(_ context.Context, _ dbctx.Execer, rev string) error {
	pos, err := e.resolve(rev)
	if err != nil {
		return err
	}
	v := -1
	if pos >= 0 {
		v = int(e.versions[pos])
	}
	e.logger.WithRevision(rev).WithDirection("stamp").Info("forcing version")
	if err := e.m.Force(v); err != nil {
		return fmt.Errorf("failed to force version: %w", err)
	}
	return nil
}
