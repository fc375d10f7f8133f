package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/migcheck"
	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the revision the database is at",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		cur, err := h.CurrentRevision(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), cur)
		return nil
	},
}

var headsCmd = &cobra.Command{
	Use:   "heads",
	Short: "List head revisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		heads, err := h.Heads(ctx)
		if err != nil {
			return err
		}
		for _, head := range heads {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), head)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the linearized revision history, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := openHandle(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		cur, err := h.CurrentRevision(ctx)
		if err != nil {
			return err
		}
		printHistory(cmd, h.History(), cur)
		return nil
	},
}

func printHistory(cmd *cobra.Command, g *migcheck.Graph, current string) {
	out := cmd.OutOrStdout()
	for _, id := range g.Revisions() {
		if id == migcheck.Base || id == migcheck.Heads {
			continue
		}
		rev, _ := g.Revision(id)
		marker := " "
		if id == current {
			marker = "*"
		}
		parents := strings.Join(rev.Parents, ",")
		if parents == "" {
			parents = migcheck.Base
		}
		_, _ = fmt.Fprintf(out, "%s %s -> %s  %s\n", marker, parents, id, rev.Message)
	}
}
