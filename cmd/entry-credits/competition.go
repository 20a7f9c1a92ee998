package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goliatone/go-entry-credits/core"
	"github.com/spf13/cobra"
)

func competitionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "competition",
		Short: "Maintain the competition catalog",
	}
	cmd.AddCommand(competitionUpsertCmd(opts))
	cmd.AddCommand(competitionListCmd(opts))
	return cmd
}

func competitionUpsertCmd(opts *globalOptions) *cobra.Command {
	var competition core.Competition
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a competition",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			saved, err := a.factory.CompetitionStore().Upsert(cmd.Context(), competition)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", saved.ID, saved.EventID, saved.Type)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&competition.ID, "id", "", "competition UUID")
	flags.StringVar(&competition.EventID, "event", "", "event the competition belongs to")
	flags.StringVar(&competition.Type, "type", "", "competition type, e.g. HOME or COMMERCIAL")
	flags.StringVar(&competition.Name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func competitionListCmd(opts *globalOptions) *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List competitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			competitions, err := a.factory.CompetitionStore().ListByEvent(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEVENT\tTYPE\tNAME")
			for _, competition := range competitions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", competition.ID, competition.EventID, competition.Type, competition.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "only list competitions of this event")
	return cmd
}
