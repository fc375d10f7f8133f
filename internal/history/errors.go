package history

import (
	"fmt"
	"strings"
)

// UnknownRevisionError reports a revision that is not part of the graph.
type UnknownRevisionError struct {
	Revision string
}

func (e *UnknownRevisionError) Error() string {
	return fmt.Sprintf("revision %q is not a valid revision in the migration history", e.Revision)
}

// GraphError reports a malformed revision graph or a violated head invariant.
type GraphError struct {
	Reason string
	// Heads lists the offending heads for head-count violations.
	Heads []string
}

func (e *GraphError) Error() string {
	if len(e.Heads) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Heads, ", "))
	}
	return e.Reason
}
