package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/PageImport/internal/application"
	"github.com/JonMunkholm/PageImport/internal/config"
	"github.com/JonMunkholm/PageImport/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	store string
	json  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pageimport",
		Short:         "Import CSV files as pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Store backend override (postgres|memory)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newTemplatesCmd(opts))
	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment. Logs go to stderr so stdout
// only carries results.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	_ = godotenv.Load()
	if opts.store != "" {
		if err := os.Setenv("STORE_BACKEND", opts.store); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func openApp(ctx context.Context, opts *rootOptions) (*application.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return application.Open(ctx, cfg)
}
