package sqlfile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/history"
)

// versionTable stores the applied revision in a single version_num row.
type versionTable struct {
	dialect Dialect
	schema  string
	name    string
}

func (v versionTable) ident() string {
	return v.dialect.QuoteIdent(v.schema, v.name)
}

func (v versionTable) ensure(ctx context.Context, ex dbctx.Execer) error {
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version_num VARCHAR(32) NOT NULL PRIMARY KEY)", v.ident())
	if _, err := ex.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}
	return nil
}

func (v versionTable) current(ctx context.Context, ex dbctx.Execer) (string, error) {
	if err := v.ensure(ctx, ex); err != nil {
		return "", err
	}
	var rev string
	err := ex.QueryRowContext(ctx, fmt.Sprintf("SELECT version_num FROM %s", v.ident())).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Base, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read version table: %w", err)
	}
	return rev, nil
}

func (v versionTable) set(ctx context.Context, ex dbctx.Execer, rev string) error {
	if err := v.ensure(ctx, ex); err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", v.ident())); err != nil {
		return fmt.Errorf("failed to clear version table: %w", err)
	}
	if rev == history.Base {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (version_num) VALUES (%s)", v.ident(), v.dialect.Placeholder(1))
	if _, err := ex.ExecContext(ctx, q, rev); err != nil {
		return fmt.Errorf("failed to write version table: %w", err)
	}
	return nil
}
