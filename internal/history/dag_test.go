package history

import (
	"errors"
	"strings"
	"testing"
)

func ids(revs []Revision) []string {
	out := make([]string, len(revs))
	for i, r := range revs {
		out[i] = r.ID
	}
	return out
}

func TestLinearize_Linear(t *testing.T) {
	revs := []Revision{
		{ID: "bbbb", Parents: []string{"aaaa"}},
		{ID: "aaaa"},
		{ID: "cccc", Parents: []string{"bbbb"}},
	}
	out, err := Linearize(revs)
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if got := strings.Join(ids(out), ","); got != "cccc,bbbb,aaaa" {
		t.Errorf("Linearize() = %s", got)
	}
}

func TestLinearize_MergePoint(t *testing.T) {
	revs := []Revision{
		{ID: "dddd", Parents: []string{"bbbb", "cccc"}},
		{ID: "cccc", Parents: []string{"aaaa"}},
		{ID: "bbbb", Parents: []string{"aaaa"}},
		{ID: "aaaa"},
	}
	out, err := Linearize(revs)
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if got := strings.Join(ids(out), ","); got != "dddd,cccc,bbbb,aaaa" {
		t.Errorf("Linearize() = %s", got)
	}

	g, err := New(out)
	if err != nil {
		t.Fatalf("New(linearized) error = %v", err)
	}
	if h := g.Heads(); len(h) != 1 || h[0] != "dddd" {
		t.Errorf("Heads() = %v", h)
	}
	if r, _ := g.Revision("dddd"); !r.IsMerge() {
		t.Error("dddd should be a merge revision")
	}
}

func TestLinearize_Errors(t *testing.T) {
	tests := []struct {
		name string
		revs []Revision
		msg  string
	}{
		{
			name: "cycle",
			revs: []Revision{
				{ID: "aaaa", Parents: []string{"bbbb"}},
				{ID: "bbbb", Parents: []string{"aaaa"}},
			},
			msg: "circular dependency",
		},
		{
			name: "unknown parent",
			revs: []Revision{{ID: "aaaa", Parents: []string{"zzzz"}}},
			msg:  "unknown down revision",
		},
		{
			name: "duplicate",
			revs: []Revision{{ID: "aaaa"}, {ID: "aaaa"}},
			msg:  "duplicate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Linearize(tt.revs)
			var ge *GraphError
			if !errors.As(err, &ge) || !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("Linearize() error = %v, want GraphError containing %q", err, tt.msg)
			}
		})
	}
}
