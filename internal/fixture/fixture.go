// Package fixture indexes the rows that must exist immediately before or
// immediately after a revision is applied.
package fixture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/loykin/migcheck/internal/constants"
	"github.com/loykin/migcheck/internal/history"
	"gopkg.in/yaml.v3"
)

// TableNameKey is the reserved row key naming the target table. It may be
// schema qualified ("schema.table") and is stripped before insertion.
const TableNameKey = constants.TableNameKey

// Row is one row specification: column name to value plus an optional table tag.
type Row map[string]any

// TableName returns the table tag of the row.
func (r Row) TableName() (string, bool) {
	v, ok := r[TableNameKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Payload returns a copy of the row without the table tag.
func (r Row) Payload() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if k == TableNameKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Spec maps a revision to its ordered rows.
type Spec map[string][]Row

// ParseSpec normalizes a raw before/at mapping, as decoded from YAML or
// viper, into a Spec. Per revision it accepts a single mapping or a sequence
// of mappings; a single mapping is a one-element sequence.
func ParseSpec(raw any) (Spec, error) {
	switch v := raw.(type) {
	case nil:
		return Spec{}, nil
	case Spec:
		return v, nil
	case map[string][]Row:
		return Spec(v), nil
	case map[string]any:
		spec := make(Spec, len(v))
		for rev, rows := range v {
			parsed, err := parseRows(rows)
			if err != nil {
				return nil, fmt.Errorf("fixture data for revision %q: %w", rev, err)
			}
			spec[history.Normalize(rev)] = parsed
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("fixture data must be a mapping of revision to rows, got %T", raw)
	}
}

func parseRows(raw any) ([]Row, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case Row:
		return []Row{v}, nil
	case map[string]any:
		return []Row{Row(v)}, nil
	case []Row:
		return v, nil
	case []map[string]any:
		rows := make([]Row, len(v))
		for i, m := range v {
			rows[i] = Row(m)
		}
		return rows, nil
	case []any:
		rows := make([]Row, 0, len(v))
		for i, item := range v {
			switch m := item.(type) {
			case map[string]any:
				rows = append(rows, Row(m))
			case Row:
				rows = append(rows, m)
			default:
				return nil, fmt.Errorf("row %d must be a mapping, got %T", i, item)
			}
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("rows must be a mapping or a list of mappings, got %T", raw)
	}
}

// Index answers before/at lookups. A nil Index is empty.
type Index struct {
	before Spec
	at     Spec
}

// NewIndex creates an index over before and at specs.
func NewIndex(before, at Spec) *Index {
	if before == nil {
		before = Spec{}
	}
	if at == nil {
		at = Spec{}
	}
	return &Index{before: before, at: at}
}

// Before returns the rows to insert immediately before rev is applied.
// Unknown revisions yield an empty slice.
func (ix *Index) Before(rev string) []Row {
	if ix == nil {
		return nil
	}
	return ix.before[history.Normalize(rev)]
}

// At returns the rows to insert immediately after rev is applied.
func (ix *Index) At(rev string) []Row {
	if ix == nil {
		return nil
	}
	return ix.at[history.Normalize(rev)]
}

// Revisions returns every revision referenced by either map, sorted.
func (ix *Index) Revisions() []string {
	if ix == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, spec := range []Spec{ix.before, ix.at} {
		for rev := range spec {
			if !seen[rev] {
				seen[rev] = true
				out = append(out, rev)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks that every referenced revision is a real revision of g.
// Sentinels are rejected as well: no step ever lands on them.
func (ix *Index) Validate(g *history.Graph) error {
	for _, rev := range ix.Revisions() {
		if _, ok := g.Revision(rev); !ok {
			return &history.UnknownRevisionError{Revision: rev}
		}
	}
	return nil
}

// document is the on-disk fixture file layout.
type document struct {
	Before map[string]any `yaml:"before"`
	At     map[string]any `yaml:"at"`
}

// Decode reads a YAML fixture document with top-level before and at maps.
func Decode(r io.Reader) (*Index, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture data: %w", err)
	}
	return FromMaps(doc.Before, doc.At)
}

// FromMaps builds an index from raw before/at mappings.
func FromMaps(before, at map[string]any) (*Index, error) {
	b, err := ParseSpec(before)
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	a, err := ParseSpec(at)
	if err != nil {
		return nil, fmt.Errorf("at: %w", err)
	}
	return NewIndex(b, a), nil
}

// LoadFile reads a YAML fixture document from path.
func LoadFile(path string) (*Index, error) {
	clean := filepath.Clean(path)
	// #nosec G304 -- path comes from user configuration
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
