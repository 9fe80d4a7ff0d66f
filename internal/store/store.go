// Package store keeps an append-only SQLite journal of backend server
// lifecycle events. The journal is optional; a nil *Journal disables it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Lifecycle event names recorded in the journal.
const (
	EventStarted = "started"
	EventStopped = "stopped"
	EventEvicted = "evicted"
)

// Entry is one journal row. OccurredAt defaults to now when zero.
type Entry struct {
	OccurredAt time.Time
	Event      string
	Label      string
	WorkDir    string
	PID        int
	Port       int
}

// Journal writes lifecycle entries to a SQLite database.
type Journal struct {
	db *sql.DB
}

// Open creates a journal at the given DSN.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func Open(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("store: empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}
	if err := j.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := `CREATE TABLE IF NOT EXISTS server_events(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		event TEXT NOT NULL,
		label TEXT NOT NULL,
		workdir TEXT NOT NULL,
		pid INTEGER NOT NULL,
		port INTEGER NOT NULL
	);`
	_, err := j.db.ExecContext(ctx, stmt)
	return err
}

// Append records one lifecycle entry.
func (j *Journal) Append(e Entry) error {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := j.db.ExecContext(context.Background(), `
		INSERT INTO server_events(occurred_at, event, label, workdir, pid, port)
		VALUES(?, ?, ?, ?, ?, ?);`,
		occurred.UTC(), e.Event, e.Label, e.WorkDir, e.PID, e.Port)
	return err
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(context.Background(), `
		SELECT occurred_at, event, label, workdir, pid, port
		FROM server_events ORDER BY occurred_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OccurredAt, &e.Event, &e.Label, &e.WorkDir, &e.PID, &e.Port); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
