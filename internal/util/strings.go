package util

import (
	"strings"
)

// TrimAndLower trims whitespace and converts to lowercase
func TrimAndLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrimEmptyCheck trims whitespace and checks if non-empty
func TrimEmptyCheck(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	return trimmed, trimmed != ""
}

// TrimWithDefault trims whitespace and returns default if empty
func TrimWithDefault(s, defaultValue string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

// SplitQualified splits "schema.table" into its parts. A name without a dot
// returns an empty schema.
func SplitQualified(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Qualified joins schema and table with a dot, omitting an empty schema.
func Qualified(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// TrimAll trims whitespace from every element and drops empty ones.
func TrimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t, ok := TrimEmptyCheck(s); ok {
			out = append(out, t)
		}
	}
	return out
}
