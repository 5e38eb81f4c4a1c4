package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hive/pkg/store"
)

// fetchActivityCmd reads the most recent activity rows.
func fetchActivityCmd(st *store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rows, err := st.RecentActivity(ctx, 100)
		if err != nil {
			return activityMsg(nil)
		}
		return activityMsg(rows)
	}
}
