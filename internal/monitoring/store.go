// Package monitoring - store.go persists request events to SQLite.
//
// DESIGN: The JSONL tracker is the append-only raw log; the store is the
// queryable copy behind /stats. Uses modernc.org/sqlite (pure Go, no cgo)
// with a single connection since the proxy is the only writer.
package monitoring

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS requests (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id         TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	model              TEXT NOT NULL,
	upstream_model     TEXT NOT NULL,
	stream             INTEGER NOT NULL,
	status_code        INTEGER NOT NULL,
	messages_in        INTEGER NOT NULL,
	messages_forwarded INTEGER NOT NULL,
	window_tokens      INTEGER NOT NULL,
	upstream_latency_ms INTEGER NOT NULL,
	total_latency_ms   INTEGER NOT NULL,
	success            INTEGER NOT NULL,
	error              TEXT
);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests(timestamp);
`

// Store is the SQLite-backed request event store.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert persists one request event.
func (s *Store) Insert(ev *RequestEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO requests (
			request_id, timestamp, model, upstream_model, stream,
			status_code, messages_in, messages_forwarded, window_tokens,
			upstream_latency_ms, total_latency_ms, success, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		ev.Model, ev.UpstreamModel, boolToInt(ev.Stream),
		ev.StatusCode, ev.MessagesIn, ev.MessagesForwarded, ev.WindowTokens,
		ev.UpstreamLatencyMs, ev.TotalLatencyMs, boolToInt(ev.Success), ev.Error,
	)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Stats aggregates the persisted request events.
func (s *Store) Stats() (*StoreStats, error) {
	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(stream), 0),
			COALESCE(AVG(total_latency_ms), 0),
			COALESCE(SUM(window_tokens), 0)
		FROM requests`)

	var st StoreStats
	if err := row.Scan(
		&st.TotalRequests, &st.Successes, &st.StreamedRequests,
		&st.AvgLatencyMs, &st.TotalWindowToken,
	); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return &st, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
