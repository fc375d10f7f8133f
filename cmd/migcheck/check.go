package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/loykin/migcheck"
	"github.com/spf13/cobra"
)

const exitChecksFailed = 2

var errChecksFailed = errors.New("one or more checks failed")

var checkCmd = &cobra.Command{
	Use:   "check [NAME...]",
	Short: "Run built-in checks against a fresh database",
	Long: "Run the named checks, or checks.run from the config, or the default set: " +
		"single_head_revision, upgrade, model_definitions_match_ddl, up_down_consistency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		results, err := h.Check(ctx, args...)
		if err != nil {
			return err
		}
		if !printResults(cmd.OutOrStdout(), results) {
			return errChecksFailed
		}
		return nil
	},
}

// printResults writes one line per check plus failure details and reports
// whether every check passed.
func printResults(w io.Writer, results []migcheck.CheckResult) bool {
	passed := 0
	for _, r := range results {
		if r.Passed() {
			passed++
			_, _ = fmt.Fprintf(w, "PASS %s (%s)\n", r.Name, r.Duration.Round(time.Millisecond))
		} else {
			_, _ = fmt.Fprintf(w, "FAIL %s (%s)\n", r.Name, r.Duration.Round(time.Millisecond))
			if f, ok := r.Failure(); ok {
				_, _ = fmt.Fprintln(w, indent(f.Render()))
			} else {
				_, _ = fmt.Fprintf(w, "    %v\n", r.Err)
			}
		}
		for _, warn := range r.Warnings {
			_, _ = fmt.Fprintf(w, "    warning: %s\n", warn)
		}
	}
	_, _ = fmt.Fprintf(w, "%d/%d checks passed\n", passed, len(results))
	return passed == len(results)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "\n")
}
