package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-entry-credits/adapters/gocommand"
	creditscommand "github.com/goliatone/go-entry-credits/command"
	"github.com/goliatone/go-entry-credits/core"
	creditsquery "github.com/goliatone/go-entry-credits/query"
	"github.com/spf13/cobra"
)

func reviewCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide orders held for manual review",
	}
	cmd.AddCommand(reviewListCmd(opts))
	cmd.AddCommand(reviewDecisionCmd(opts, "resolve", "Mark a pending order as resolved"))
	cmd.AddCommand(reviewDecisionCmd(opts, "cancel", "Cancel a pending order"))
	return cmd
}

func reviewListCmd(opts *globalOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			filter := core.PendingOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
			if strings.EqualFold(status, "all") {
				filter = ""
			}
			orders, err := gocommand.Query[creditsquery.ListPendingOrdersMessage, []core.PendingOrder](
				cmd.Context(),
				creditsquery.ListPendingOrdersMessage{Status: filter},
			)
			if err != nil {
				return err
			}
			printPendingOrders(cmd.OutOrStdout(), orders)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(core.PendingOrderStatusNeedsReview), "status filter (NEEDS_REVIEW, RESOLVED, CANCELLED, all)")
	return cmd
}

func reviewDecisionCmd(opts *globalOptions, action string, short string) *cobra.Command {
	var actor, notes string
	cmd := &cobra.Command{
		Use:   action + " [pending-order-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			review := creditscommand.ReviewMessage{PendingOrderID: args[0], Actor: actor, Notes: notes}
			var order core.PendingOrder
			if action == "resolve" {
				order, err = gocommand.DispatchResult[creditscommand.ResolvePendingOrderMessage, core.PendingOrder](
					cmd.Context(), creditscommand.ResolvePendingOrderMessage{ReviewMessage: review})
			} else {
				order, err = gocommand.DispatchResult[creditscommand.CancelPendingOrderMessage, core.PendingOrder](
					cmd.Context(), creditscommand.CancelPendingOrderMessage{ReviewMessage: review})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s by %s\n", order.ID, order.Status, order.ResolvedBy)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "reviewer recorded on the order")
	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func printPendingOrders(out io.Writer, orders []core.PendingOrder) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORDER\tCOMPETITION\tENTRANT\tREASON\tSTATUS\tCREATED")
	for _, order := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			order.ID,
			order.Key().String(),
			order.CompetitionID,
			order.EntrantID,
			order.Reason,
			order.Status,
			order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		)
	}
	_ = w.Flush()
}
