// Package main is the entry point for a hive worker supervisor. Each
// running instance owns one agent identity (frontend, backend, ...) and
// executes at most one task at a time in its repository.
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
	"hive/pkg/store"
	"hive/pkg/supervisor"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "hive-worker",
		Short:         "Worker supervisor: executes tasks in a local repository",
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
		fmt.Fprintf(os.Stderr, "hive-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Require("BUS_URL", "AGENT_NAME", "REPO_PATH"); err != nil {
		return err
	}
	if err := cfg.ValidateRepoPath(); err != nil {
		return err
	}

	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(cfg.StorePath, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	log := store.NewLogger(cfg.AgentName, slogger, st)
	log.Info("starting", "version", version.String(), "agent", cfg.AgentName)

	b, err := bus.New(ctx, bus.Options{URL: cfg.BusURL, Password: cfg.BusPassword}, slogger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	sup := supervisor.New(supervisor.Options{
		AgentName:   cfg.AgentName,
		RepoPath:    cfg.RepoPath,
		CommandFile: cfg.CommandFile,
		TaskTimeout: cfg.TaskTimeout,
	}, b, &supervisor.ExecSpawner{Tool: cfg.ToolPath}, st, log)

	if err := sup.Run(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
