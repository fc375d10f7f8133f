package checks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/migcheck/internal/schema"
	"gopkg.in/yaml.v3"
)

type modelDocument struct {
	Tables map[string][]string `yaml:"tables"`
}

// LoadModel reads a declared model: a YAML document with a tables mapping of
// table name to column names.
func LoadModel(path string) (schema.Model, error) {
	clean := filepath.Clean(path)
	// #nosec G304 -- path comes from user configuration
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", clean, err)
	}
	var doc modelDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if doc.Tables == nil {
		doc.Tables = map[string][]string{}
	}
	return schema.Model(doc.Tables), nil
}
