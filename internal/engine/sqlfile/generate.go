package sqlfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/loykin/migcheck/internal/engine"
	"github.com/loykin/migcheck/internal/history"
	"gopkg.in/yaml.v3"
)

// NewRevisionID returns a 12 hex digit revision id.
func NewRevisionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Generate writes a new revision file on top of the current head. Directive
// outcomes and a diverged history are reported through the result status;
// the error is reserved for I/O failures.
func (e *Engine) Generate(ctx context.Context, opts engine.GenerateOptions) (engine.GenerateResult, error) {
	p, err := e.load()
	if err != nil {
		return engine.GenerateResult{}, err
	}

	parents := opts.Parents
	if len(parents) == 0 {
		heads, err := e.Heads(ctx)
		if err != nil {
			return engine.GenerateResult{}, err
		}
		if len(heads) > 1 {
			_, gerr := history.RequireSingleHead(heads)
			return engine.Failed(gerr.Error()), nil
		}
		parents = heads
	}
	id := opts.ID
	if id == "" {
		id = NewRevisionID()
	}
	if reason := draftProblem(p.index, id, parents); reason != "" {
		return engine.Failed(reason), nil
	}

	draft := &engine.Draft{
		ID:      id,
		Parents: append([]string(nil), parents...),
		Message: opts.Message,
		Up:      append([]string(nil), opts.Up...),
		Down:    append([]string{}, opts.Down...),
	}
	if opts.Directive != nil {
		action, err := opts.Directive(draft)
		if err != nil {
			return engine.GenerateResult{Status: engine.StatusFailed, Revision: draft.ID, Reason: err.Error()}, nil
		}
		if action == engine.ActionSuppress {
			e.logger.WithRevision(draft.ID).Info("revision generation suppressed")
			return engine.GenerateResult{Status: engine.StatusSuppressed, Revision: draft.ID}, nil
		}
		// The directive may rewrite the draft.
		if reason := draftProblem(p.index, draft.ID, draft.Parents); reason != "" {
			return engine.GenerateResult{Status: engine.StatusFailed, Revision: draft.ID, Reason: reason}, nil
		}
	}

	f := revisionFile{
		Revision:     draft.ID,
		DownRevision: Parents(draft.Parents),
		Message:      draft.Message,
		Up:           Statements(append([]string{}, draft.Up...)),
	}
	if !draft.NoDown {
		f.Down = Statements(append([]string{}, draft.Down...))
	}
	out, err := yaml.Marshal(&f)
	if err != nil {
		return engine.GenerateResult{}, fmt.Errorf("encode revision: %w", err)
	}
	path := filepath.Join(e.dir, fileName(draft.ID, draft.Message))
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return engine.GenerateResult{}, fmt.Errorf("write revision: %w", err)
	}

	e.logger.WithRevision(draft.ID).Info("revision generated", "path", path)
	return engine.GenerateResult{Status: engine.StatusGenerated, Revision: draft.ID, Path: path}, nil
}

func draftProblem(index map[string]int, id string, parents []string) string {
	if strings.TrimSpace(id) == "" {
		return "revision id must not be empty"
	}
	if _, exists := index[id]; exists {
		return fmt.Sprintf("revision %q already exists", id)
	}
	for _, parent := range parents {
		if _, ok := index[parent]; !ok || parent == history.Base || parent == history.Heads {
			return fmt.Sprintf("unknown down revision %q", parent)
		}
	}
	return ""
}
