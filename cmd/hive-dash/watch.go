package main

import (
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// watchStoreCmd watches the directory holding the activity database and
// emits fsChangeMsg when the database file changes. Returns a nil command
// (no refresh signal) if the watcher cannot be created; the tick loop still
// refreshes every 2 s.
func watchStoreCmd(storePath string) tea.Cmd {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(filepath.Dir(storePath)); err != nil {
		_ = watcher.Close()
		return nil
	}

	base := filepath.Base(storePath)
	return func() tea.Msg {
		defer func() { _ = watcher.Close() }()

		// Debounce: wait for a relevant event, then swallow the burst that
		// SQLite WAL checkpointing produces.
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(ev.Name) != base && filepath.Base(ev.Name) != base+"-wal" {
					continue
				}
				time.Sleep(100 * time.Millisecond)
				drain(watcher)
				return fsChangeMsg{}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func drain(w *fsnotify.Watcher) {
	for {
		select {
		case <-w.Events:
		default:
			return
		}
	}
}
