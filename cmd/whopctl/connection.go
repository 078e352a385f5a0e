package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/services"
)

var errConnectionFailed = errors.New("connection test failed")

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check the configured API key and product ID against Whop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			client := services.NewWhopClientWithTimeout(cfg.Whop, cfg.Whop.TestTimeout)
			message, ok := services.NewConnectionTester(cfg.Whop, client, nil).Test(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), message)
			if !ok {
				return errConnectionFailed
			}
			return nil
		},
	}
}
