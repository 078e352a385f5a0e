package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"whop_checkout_echo/internal/app"
	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "whopctl",
		Short:         "Operate the Whop payment integration",
		Version:       config.PluginVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(ensureSessionCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(testConnectionCmd())
	rootCmd.AddCommand(scheduleTaskCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadApp builds the application against the real database
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Server.Env)
	return app.New(ctx, cfg, log, app.Options{RequireDB: true})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
