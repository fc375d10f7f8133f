package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Upgrade to a target revision (default heads)",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		cur, err := h.MigrateUpTo(ctx, to)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "current revision: %s\n", cur)
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Downgrade to a target revision (default base)",
	Long: "Downgrade to a target revision. The walk stops without error at a revision " +
		"that has no downgrade and never goes below minimum_downgrade_revision.",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		res, err := h.MigrateDownTo(ctx, to)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Warning != nil {
			_, _ = fmt.Fprintf(out, "warning: %s\n", res.Warning)
		}
		_, _ = fmt.Fprintf(out, "current revision: %s\n", res.Current)
		return nil
	},
}

var stampCmd = &cobra.Command{
	Use:   "stamp REVISION",
	Short: "Record a revision as current without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		if err := h.Stamp(ctx, args[0]); err != nil {
			return err
		}
		cur, err := h.CurrentRevision(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "current revision: %s\n", cur)
		return nil
	},
}
