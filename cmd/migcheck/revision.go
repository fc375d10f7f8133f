package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/migcheck"
	"github.com/spf13/cobra"
)

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Write a new empty revision file (sqlfile engine only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, _ := cmd.Flags().GetString("message")
		parent, _ := cmd.Flags().GetString("parent")
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("a message is required (-m)")
		}
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		opts := migcheck.GenerateOptions{Message: msg}
		if parent != "" {
			opts.Parents = strings.Split(parent, ",")
		}
		res, err := h.Generate(ctx, opts)
		if err != nil {
			return err
		}
		switch res.Status {
		case migcheck.StatusGenerated:
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "generated %s at %s\n", res.Revision, res.Path)
			return nil
		case migcheck.StatusSuppressed:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "revision suppressed")
			return nil
		default:
			return fmt.Errorf("revision not generated: %s", res.Reason)
		}
	},
}
