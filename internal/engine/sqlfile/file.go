package sqlfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/loykin/migcheck/internal/history"
	"gopkg.in/yaml.v3"
)

// Statements accepts either one SQL string or a list of them.
type Statements []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Statements) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(n.Value) == "" {
			*s = Statements{}
			return nil
		}
		*s = Statements{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*s = append(Statements{}, list...)
		return nil
	default:
		return fmt.Errorf("line %d: expected a statement or a list of statements", n.Line)
	}
}

// IsZero keeps an explicitly empty list when marshaling with omitempty.
func (s Statements) IsZero() bool { return s == nil }

// Parents accepts a single down revision or a list of them.
type Parents []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Parents) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(n.Value); v != "" {
			*p = Parents{v}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: down_revision must be a revision or a list of revisions", n.Line)
	}
}

// MarshalYAML writes a single parent as a scalar.
func (p Parents) MarshalYAML() (any, error) {
	switch len(p) {
	case 0:
		return nil, nil
	case 1:
		return p[0], nil
	default:
		return []string(p), nil
	}
}

// revisionFile is the on-disk layout of one revision.
type revisionFile struct {
	Revision     string     `yaml:"revision"`
	DownRevision Parents    `yaml:"down_revision"`
	Message      string     `yaml:"message,omitempty"`
	Up           Statements `yaml:"up"`
	// nil means the revision cannot be downgraded
	Down Statements `yaml:"down,omitempty"`

	path string
}

func (f revisionFile) revision() history.Revision {
	return history.Revision{ID: f.Revision, Parents: []string(f.DownRevision), Message: f.Message}
}

func (f revisionFile) downgradable() bool { return f.Down != nil }

var revisionFileRegex = regexp.MustCompile(`\.ya?ml$`)

func decodeRevision(r io.Reader) (revisionFile, error) {
	var f revisionFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return revisionFile{}, err
	}
	f.Revision = strings.TrimSpace(f.Revision)
	if f.Revision == "" {
		return revisionFile{}, fmt.Errorf("revision id is required")
	}
	return f, nil
}

func loadRevisionFile(path string) (revisionFile, error) {
	clean := filepath.Clean(path)
	// #nosec G304 -- path comes from controlled directory listing of revision files
	fh, err := os.Open(clean)
	if err != nil {
		return revisionFile{}, err
	}
	defer func() { _ = fh.Close() }()
	f, err := decodeRevision(fh)
	if err != nil {
		return revisionFile{}, fmt.Errorf("%s: %w", filepath.Base(clean), err)
	}
	f.path = clean
	return f, nil
}

func listRevisionFiles(dir string) ([]revisionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []revisionFile
	for _, e := range entries {
		if e.IsDir() || !revisionFileRegex.MatchString(e.Name()) {
			continue
		}
		f, err := loadRevisionFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Revision < files[j].Revision })
	return files, nil
}

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

func fileName(id, message string) string {
	slug := strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(message), "_"), "_")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "_")
	}
	if slug == "" {
		return id + ".yaml"
	}
	return id + "_" + slug + ".yaml"
}
