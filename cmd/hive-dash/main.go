// Package main implements the hive-dash terminal dashboard. It watches the
// activity log and the live bus: worker heartbeats fill the agents table,
// chatter output and subprocess progress fill the feed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"hive/pkg/bus"
	"hive/pkg/config"
	"hive/pkg/protocol"
	"hive/pkg/store"
)

func main() {
	cfg, err := config.Load("hive.toml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hive-dash: %v\n", err)
		os.Exit(1)
	}

	robot := !isatty.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--robot" {
			robot = true
		}
	}

	st, err := store.Open(cfg.StorePath, slog.New(slog.DiscardHandler))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hive-dash: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	if robot {
		data, err := robotSnapshot(context.Background(), st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hive-dash: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	p := tea.NewProgram(newModel(cfg.StorePath, st), tea.WithAltScreen())

	// The bus is optional for the dashboard: without it the view still
	// shows the activity log, just no live heartbeats.
	if b, err := bus.New(context.Background(), bus.Options{URL: cfg.BusURL, Password: cfg.BusPassword}, slog.New(slog.DiscardHandler)); err == nil {
		defer func() { _ = b.Close() }()
		subscribeFeeds(b, p)
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "hive-dash: %v\n", err)
		os.Exit(1)
	}
}

// subscribeFeeds forwards live bus envelopes into the running program.
func subscribeFeeds(b bus.Bus, p *tea.Program) {
	_ = b.Subscribe(protocol.ChannelStatus, func(env protocol.Envelope) {
		var st protocol.Status
		if err := env.DecodePayload(&st); err == nil {
			p.Send(heartbeatMsg{Agent: env.From, Status: st})
		}
	})
	_ = b.Subscribe(protocol.ChannelProgress, func(env protocol.Envelope) {
		var pr protocol.Progress
		if err := env.DecodePayload(&pr); err == nil {
			p.Send(feedMsg(fmt.Sprintf("[%s] %s", pr.TaskID, pr.Output)))
		}
	})
	_ = b.Subscribe(protocol.ChannelChatterOutput, func(env protocol.Envelope) {
		var out protocol.ChatterOutput
		if err := env.DecodePayload(&out); err == nil {
			p.Send(feedMsg(fmt.Sprintf("chatter → %s: %s", out.UserID, out.Content)))
		}
	})
}

// robotSnapshot renders a JSON snapshot of recent activity for scripts and
// non-TTY callers.
func robotSnapshot(ctx context.Context, st *store.Store) ([]byte, error) {
	activity, err := st.RecentActivity(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	snapshot := map[string]any{
		"activity": activity,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}
