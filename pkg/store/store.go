// Package store persists the append-only activity log and agent log rows in
// SQLite. Writes go through a bounded queue drained by a single writer
// goroutine: a slow or broken store never blocks the bus path, it just
// drops rows (and says so on stderr).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"hive/pkg/protocol"
)

// SchemaDDL defines the SQLite schema for the activity log.
// Tables: activity (one row per bus envelope), logs (agent log lines).
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Append-only activity log: one row per envelope seen on the bus
CREATE TABLE IF NOT EXISTS activity (
    id TEXT PRIMARY KEY,
    from_agent TEXT NOT NULL,
    to_agent TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('task','question','response','status','progress','error')),
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Agent log lines, mirrored from slog output
CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY,
    agent TEXT NOT NULL,
    level TEXT NOT NULL CHECK (level IN ('debug','info','warn','error','fatal')),
    message TEXT NOT NULL,
    metadata TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_activity_created ON activity(created_at);
CREATE INDEX IF NOT EXISTS idx_logs_created ON logs(created_at);
`

// queueSize bounds the async write queue. A full queue drops the write.
const queueSize = 512

type writeOp struct {
	query string
	args  []any
}

// Store is the activity-log backend. A nil *Store is valid and drops every
// write, which is how agents run with logging disabled.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	queue chan writeOp
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. WAL keeps readers (hive-dash) from blocking the writer.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec(SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}

	s := &Store{
		db:     db,
		log:    log,
		queue:  make(chan writeOp, queueSize),
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// writeLoop drains the queue. Failed writes are logged and dropped.
func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.queue:
			s.exec(op)
		case <-s.closed:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case op := <-s.queue:
					s.exec(op)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) exec(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, op.query, op.args...); err != nil {
		s.log.Warn("store write dropped", "err", err)
	}
}

// enqueue adds a write without blocking; a full queue drops the row.
func (s *Store) enqueue(op writeOp) {
	select {
	case s.queue <- op:
	default:
		s.log.Warn("store queue full, write dropped")
	}
}

// RecordActivity appends an envelope to the activity table. Never blocks.
func (s *Store) RecordActivity(env protocol.Envelope) {
	if s == nil {
		return
	}
	s.enqueue(writeOp{
		query: `INSERT OR IGNORE INTO activity (id, from_agent, to_agent, type, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		args:  []any{env.ID, env.From, env.To, string(env.Type), string(env.Payload), env.Timestamp.UTC().Format(time.RFC3339Nano)},
	})
}

// RecordLog appends a log row. Never blocks.
func (s *Store) RecordLog(agent, level, message string, metadata map[string]any) {
	if s == nil {
		return
	}
	var meta any
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			meta = string(data)
		}
	}
	s.enqueue(writeOp{
		query: `INSERT INTO logs (agent, level, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		args:  []any{agent, level, message, meta, time.Now().UTC().Format(time.RFC3339Nano)},
	})
}

// Ping verifies the database answers and reports the round-trip time.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	if s == nil {
		return 0, fmt.Errorf("store disabled")
	}
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("store ping: %w", err)
	}
	return time.Since(start), nil
}

// ActivityRecord is one row of the activity table.
type ActivityRecord struct {
	ID        string
	FromAgent string
	ToAgent   string
	Type      string
	Payload   string
	CreatedAt time.Time
}

// RecentActivity returns up to limit activity rows, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]ActivityRecord, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_agent, to_agent, type, COALESCE(payload, ''), created_at
		 FROM activity ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ActivityRecord
	for rows.Next() {
		var r ActivityRecord
		var created string
		if err := rows.Scan(&r.ID, &r.FromAgent, &r.ToAgent, &r.Type, &r.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return out, nil
}

// Flush blocks until the queue has been drained once. Test helper; the
// production path never waits on the store.
func (s *Store) Flush() {
	if s == nil {
		return
	}
	for {
		if len(s.queue) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Close drains pending writes and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
