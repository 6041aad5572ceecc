package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var history bool

	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show the latest timeline of an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, files, err := db.GetSession(args[0])
			if err != nil {
				return err
			}
			res, err := db.LatestResult(rec.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}

			printSessionHeader(out, rec, len(files))
			anchors, err := db.ListAnchors(rec.ID)
			if err != nil {
				return err
			}
			if len(anchors) > 0 {
				fmt.Fprintf(out, "   Anchors:    %d\n", len(anchors))
			}
			printResult(out, res, true)

			if history {
				runs, err := db.ResultHistory(rec.ID)
				if err != nil {
					return err
				}
				printHistory(out, runs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&history, "history", false, "Also list earlier runs of the session")
	return cmd
}
