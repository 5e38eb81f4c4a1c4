// Package main is the entry point for the hive conversational orchestrator.
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
	"hive/pkg/chatter"
	"hive/pkg/config"
	"hive/pkg/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "hive-chatter",
		Short:         "Conversational orchestrator: turns human messages into agent work",
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
		fmt.Fprintf(os.Stderr, "hive-chatter: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Require("BUS_URL", "ANTHROPIC_API_KEY"); err != nil {
		return err
	}

	manifest, err := config.LoadManifest(cfg.AgentsFile)
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(cfg.StorePath, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	log := store.NewLogger("chatter", slogger, st)
	log.Info("starting", "version", version.String(), "model", cfg.Model)

	b, err := bus.New(ctx, bus.Options{URL: cfg.BusURL, Password: cfg.BusPassword}, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	model := chatter.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model)
	c := chatter.New(chatter.Options{
		ToolTimeout:      cfg.ToolTimeout,
		TaskTimeout:      cfg.TaskTimeout,
		HistoryCap:       cfg.HistoryCap,
		ConversationIdle: cfg.ConversationIdle,
	}, manifest, b, model, st, log)

	if err := c.Run(ctx); err != nil {
		return err
	}
	log.Info("chatter stopped")
	return nil
}
