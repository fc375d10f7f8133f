// Package history models the migration history as a canonical linear order
// of revisions framed by the base and heads sentinels.
package history

import (
	"context"

	"github.com/loykin/migcheck/internal/constants"
)

// Sentinel revisions.
const (
	Base  = constants.RevisionBase
	Heads = constants.RevisionHeads
	Head  = constants.RevisionHead
)

// Revision is one node of the engine's revision metadata.
type Revision struct {
	ID string
	// Parents are the down revisions; empty for a root revision.
	Parents []string
	Message string
}

// IsMerge reports whether the revision joins more than one parent.
func (r Revision) IsMerge() bool { return len(r.Parents) > 1 }

// Source yields revisions ordered from heads to base.
type Source interface {
	IterateRevisions(ctx context.Context) ([]Revision, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Revision, error)

// IterateRevisions calls f.
func (f SourceFunc) IterateRevisions(ctx context.Context) ([]Revision, error) { return f(ctx) }

// Normalize maps the singular head token to heads and leaves every other
// value untouched.
func Normalize(rev string) string {
	if rev == Head {
		return Heads
	}
	return rev
}

func isReserved(id string) bool {
	return id == Base || id == Heads || id == Head
}
