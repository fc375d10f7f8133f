package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrBoundary is returned when a relative operation has nowhere to go,
	// such as upgrading to the revision before base.
	ErrBoundary = errors.New("no revision beyond the history boundary")
	// ErrGenerateUnsupported is returned by Generate when the engine cannot
	// author revisions.
	ErrGenerateUnsupported = errors.New("engine does not support revision generation")
)

// EngineExecutionError wraps an engine failure with the step that caused it.
type EngineExecutionError struct {
	Revision  string
	Direction string
	Err       error
}

func (e *EngineExecutionError) Error() string {
	return fmt.Sprintf("%s to revision %s failed: %v", e.Direction, e.Revision, e.Err)
}

func (e *EngineExecutionError) Unwrap() error { return e.Err }

// Warning describes a downgrade that stopped early because a revision has no
// downgrade.
type Warning struct {
	// Revision is the revision that could not be left.
	Revision string
	// Target is the revision the step tried to reach.
	Target string
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("downgrade from %s to %s is not implemented; stopping at %s", w.Revision, w.Target, w.Revision)
}
