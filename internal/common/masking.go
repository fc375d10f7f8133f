package common

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Masked is the replacement written in place of sensitive values.
const Masked = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "dsn")
	Regex       *regexp.Regexp // Regular expression to match sensitive data
	Replacement string         // Replacement string
	Keys        []string       // Specific keys to mask (case-insensitive)
}

// DefaultSensitivePatterns covers the credentials that show up in migcheck logs:
// database passwords, either as key/value DSN fields or embedded in URLs.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*=\s*('[^']*'|[^\s]+)`),
		Replacement: "${1}=" + Masked,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "url_userinfo",
		Regex:       regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+):([^@\s]+)@`),
		Replacement: "${1}:" + Masked + "@",
	},
	{
		Name: "secret",
		Keys: []string{"secret", "token", "api_key"},
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return &Masker{
		patterns: DefaultSensitivePatterns,
		enabled:  true,
	}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}
	result := input
	for _, pattern := range m.patterns {
		if pattern.Regex == nil {
			continue
		}
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

func (m *Masker) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, pattern := range m.patterns {
		for _, k := range pattern.Keys {
			if lowerKey == k {
				return true
			}
		}
	}
	return false
}

// MaskAttr masks a slog attribute. Sensitive keys are replaced outright and
// string values are scrubbed of embedded credentials; other kinds pass through.
func (m *Masker) MaskAttr(a slog.Attr) slog.Attr {
	if !m.enabled {
		return a
	}
	if m.isSensitiveKey(a.Key) {
		return slog.String(a.Key, Masked)
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if masked := m.MaskString(s); masked != s {
			return slog.String(a.Key, masked)
		}
	}
	return a
}

// MaskDSN hides the password of a URL-style or key/value DSN.
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), Masked)
			// url.String escapes the asterisks; undo that for readability
			return strings.Replace(u.String(), url.QueryEscape(Masked), Masked, 1)
		}
		return dsn
	}
	return NewMasker().MaskString(dsn)
}
