// Package dbctx owns the connection and transaction scope that every
// orchestrator operation runs inside.
package dbctx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loykin/migcheck/internal/common"
	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/util"
)

// Execer is the statement surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Execer = (*sql.DB)(nil)
	_ Execer = (*sql.Conn)(nil)
	_ Execer = (*sql.Tx)(nil)
)

// Unit is one synchronous piece of work run against an Execer.
type Unit func(ctx context.Context, ex Execer) error

// Mode selects how Run scopes a unit.
type Mode string

const (
	// ModeTx pins a connection and wraps the unit in a transaction.
	ModeTx Mode = constants.SessionTx
	// ModeConn pins a connection without a wrapping transaction.
	ModeConn Mode = constants.SessionConn
	// ModePool hands the pool itself to the unit.
	ModePool Mode = constants.SessionPool
)

// ParseMode maps a config value to a Mode. Empty means ModeTx.
func ParseMode(s string) (Mode, error) {
	switch Mode(util.TrimAndLower(s)) {
	case "", ModeTx:
		return ModeTx, nil
	case ModeConn:
		return ModeConn, nil
	case ModePool:
		return ModePool, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", s)
	}
}

// Session runs units against a database handle.
type Session struct {
	db   *sql.DB
	mode Mode
}

// NewSession creates a session over db.
func NewSession(db *sql.DB, mode Mode) *Session {
	if mode == "" {
		mode = ModeTx
	}
	return &Session{db: db, mode: mode}
}

// Mode returns the scoping mode.
func (s *Session) Mode() Mode { return s.mode }

// DB returns the underlying pool.
func (s *Session) DB() *sql.DB { return s.db }

// Run executes u inside the session scope. The pinned connection is released
// on every path, including a panic inside u.
func (s *Session) Run(ctx context.Context, u Unit) (err error) {
	if s.mode == ModePool {
		return u(ctx, s.db)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if s.mode == ModeConn {
		return u(ctx, conn)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			common.GetLogger().WithComponent("session").Warn("rollback failed", "error", rbErr)
		}
	}()

	if err := u(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
