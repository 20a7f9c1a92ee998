package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goliatone/go-entry-credits/adapters/gocommand"
	"github.com/goliatone/go-entry-credits/core"
	creditsquery "github.com/goliatone/go-entry-credits/query"
	"github.com/spf13/cobra"
)

func creditsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "credits [entrant-id]",
		Short: "Show the entry credits held by an entrant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			credits, err := gocommand.Query[creditsquery.CreditsByEntrantMessage, []core.EntryCredit](
				cmd.Context(),
				creditsquery.CreditsByEntrantMessage{EntrantID: args[0]},
			)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tCOMPETITION\tQUANTITY\tAVAILABLE\tSTATUS")
			total := 0
			for _, credit := range credits {
				total += credit.AvailableCredits()
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					credit.Key().String(), credit.CompetitionID, credit.Quantity, credit.AvailableCredits(), credit.Status)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "available credits: %d\n", total)
			return nil
		},
	}
}
