package checks

import (
	"strings"
)

// ContextItem is one titled section of a failure report.
type ContextItem struct {
	Title string
	Body  string
}

// Failure is a check that ran and found a problem, as opposed to an error
// that kept it from running.
type Failure struct {
	Message string
	Context []ContextItem
}

func (f *Failure) Error() string { return f.Message }

// Render formats the context sections followed by the message.
func (f *Failure) Render() string {
	var b strings.Builder
	for _, c := range f.Context {
		b.WriteString(c.Title)
		b.WriteString(":\n")
		for _, line := range strings.Split(strings.TrimRight(c.Body, "\n"), "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Errors:\n")
	b.WriteString(f.Message)
	b.WriteString("\n")
	return b.String()
}

func failure(message string, context ...ContextItem) *Failure {
	return &Failure{Message: message, Context: context}
}
