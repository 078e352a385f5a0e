package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"whop_checkout_echo/internal/services"
)

func ensureSessionCmd() *cobra.Command {
	var (
		orderID   uint
		sendEmail bool
		noNote    bool
	)

	cmd := &cobra.Command{
		Use:   "ensure-session",
		Short: "Create or reuse the Whop payment link of an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == 0 {
				return fmt.Errorf("--order is required")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Reconciler.EnsureSession(cmd.Context(), orderID, services.SessionOptions{
				SendEmail: sendEmail,
				AddNote:   !noNote,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().UintVar(&orderID, "order", 0, "Order ID (required)")
	cmd.Flags().BoolVar(&sendEmail, "send-email", false, "Queue the payment email if it was not sent yet")
	cmd.Flags().BoolVar(&noNote, "no-note", false, "Do not add an order note when a link is created")
	return cmd
}

func completeCmd() *cobra.Command {
	var orderID uint

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Apply a payment-completed event by hand, as the webhook would",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == 0 {
				return fmt.Errorf("--order is required")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.Reconciler.Complete(cmd.Context(), strconv.FormatUint(uint64(orderID), 10))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %d: %s\n", orderID, outcome)
			return nil
		},
	}

	cmd.Flags().UintVar(&orderID, "order", 0, "Order ID (required)")
	return cmd
}
