// Package engine defines the contract between the orchestrator and a
// concrete migration engine.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/migcheck/internal/dbctx"
	"github.com/loykin/migcheck/internal/history"
)

// ErrDowngradeNotImplemented is returned by DowngradeTo when a revision on the
// way down has no downgrade. It is an expected outcome, not a failure.
var ErrDowngradeNotImplemented = errors.New("downgrade not implemented")

// Engine applies and reverts revisions against a database.
type Engine interface {
	// IterateRevisions yields every revision ordered heads to base.
	history.Source
	UpgradeTo(ctx context.Context, ex dbctx.Execer, rev string) error
	// DowngradeTo may fail with ErrDowngradeNotImplemented.
	DowngradeTo(ctx context.Context, ex dbctx.Execer, rev string) error
	// Stamp records rev as applied without running it.
	Stamp(ctx context.Context, ex dbctx.Execer, rev string) error
	// Current returns the applied revision, history.Base when none is.
	Current(ctx context.Context, ex dbctx.Execer) (string, error)
	Heads(ctx context.Context) ([]string, error)
}

// ModeHinter is implemented by engines that require a particular session
// scope, typically because they manage their own connections.
type ModeHinter interface {
	SessionMode() dbctx.Mode
}

// Status is the tagged outcome of revision generation.
type Status int

const (
	// StatusGenerated means a revision was written.
	StatusGenerated Status = iota
	// StatusSuppressed means a directive stopped the write on purpose.
	StatusSuppressed
	// StatusFailed means the revision could not be produced; see Reason.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusGenerated:
		return "generated"
	case StatusSuppressed:
		return "suppressed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Draft is a revision about to be written. Directives may edit it.
type Draft struct {
	ID      string
	Parents []string
	Message string
	Up      []string
	Down    []string
	// NoDown marks the draft as having no downgrade.
	NoDown bool
}

// Action tells Generate what to do with a draft.
type Action int

const (
	ActionWrite Action = iota
	ActionSuppress
)

// Directive inspects or edits a draft before it is written. An error marks
// the generation as failed with the error text as reason.
type Directive func(d *Draft) (Action, error)

// GenerateOptions configures revision generation.
type GenerateOptions struct {
	Message string
	// ID overrides the generated revision id.
	ID string
	// Parents overrides the down revisions; defaults to the single head.
	Parents   []string
	Up        []string
	Down      []string
	Directive Directive
}

// GenerateResult reports what Generate did.
type GenerateResult struct {
	Status   Status
	Revision string
	Path     string
	Reason   string
}

// Generator is implemented by engines that can author new revisions.
type Generator interface {
	Generate(ctx context.Context, opts GenerateOptions) (GenerateResult, error)
}

// Failed builds a failed result.
func Failed(reason string) GenerateResult {
	return GenerateResult{Status: StatusFailed, Reason: reason}
}
