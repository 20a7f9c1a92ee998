package main

import (
	"fmt"

	"github.com/goliatone/go-entry-credits/adapters/gocommand"
	creditscommand "github.com/goliatone/go-entry-credits/command"
	"github.com/goliatone/go-entry-credits/core"
	"github.com/spf13/cobra"
)

func dispatchOutboxCmd(opts *globalOptions) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Deliver one batch of pending outbox events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := gocommand.DispatchResult[creditscommand.DispatchOutboxMessage, core.DispatchStats](
				cmd.Context(),
				creditscommand.DispatchOutboxMessage{BatchSize: batchSize},
			)
			if err != nil {
				return fmt.Errorf("outbox dispatch: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d delivered=%d retried=%d failed=%d\n",
				stats.Claimed, stats.Delivered, stats.Retried, stats.Failed)

			counts, err := a.factory.OutboxStore().Counts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "outbox pending=%d processing=%d delivered=%d failed=%d\n",
				counts["pending"], counts["processing"], counts["delivered"], counts["failed"])
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "events to claim (0 uses outbox.batch_size)")
	return cmd
}
