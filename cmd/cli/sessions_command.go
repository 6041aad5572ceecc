package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.ListSessions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "📭 No sessions archived")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.ID,
					s.Name,
					s.Strictness,
					s.PlacementMode,
					humanize.Time(s.UpdatedAt),
				})
			}
			fmt.Fprintf(out, "📚 %s session(s)\n", humanize.Comma(int64(len(sessions))))
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Strictness", "Placement", "Updated"},
				rows, nil,
			))
			return nil
		},
	}
	cmd.AddCommand(newSessionsRemoveCommand(ctx))
	return cmd
}

func newSessionsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session>",
		Aliases: []string{"delete"},
		Short:   "Delete a session with its anchors and results",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, _, err := db.GetSession(args[0])
			if err != nil {
				return err
			}
			if err := db.DeleteSession(rec.ID); err != nil {
				return err
			}
			ctx.log.Infof("Deleted session %s (%s)", rec.ID, rec.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted session %s\n", rec.ID)
			return nil
		},
	}
}
