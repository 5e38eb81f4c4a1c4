// Package main is the entry point for the hive message gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hive/internal/version"
	"hive/pkg/bus"
	"hive/pkg/config"
	"hive/pkg/gateway"
	"hive/pkg/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "hive-gateway",
		Short:         "WebSocket gateway bridging browsers and the hive bus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "hive.toml", "optional TOML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hive-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Require("BUS_URL", "STORE_PATH"); err != nil {
		return err
	}

	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(cfg.StorePath, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	log := store.NewLogger("gateway", slogger, st)
	log.Info("starting", "version", version.String())

	b, err := bus.New(ctx, bus.Options{URL: cfg.BusURL, Password: cfg.BusPassword}, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	srv := gateway.NewServer(gateway.Options{
		Port:            cfg.GatewayPort,
		CORSOrigins:     cfg.CORSOrigins,
		ForwardChannels: cfg.ForwardChannels,
	}, b, st, log)

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("gateway stopped")
	return nil
}
