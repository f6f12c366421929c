// Package telemetry records per-question engine metrics in a small
// SQLite database, one row per ask, for the stats command.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is one answered (or missed) question.
type Event struct {
	ID         string
	Tenant     string
	Mode       string
	Confidence float64
	LatencyMS  int64
	Queries    int // how many expanded queries retrieval used
	Chunks     int // supporting chunks returned
	CreatedAt  time.Time
}

// ModeStat aggregates events per answer mode.
type ModeStat struct {
	Mode         string
	Count        int64
	AvgLatencyMS float64
}

// Recorder persists ask events. A nil *Recorder is a valid no-op, so
// callers never have to branch on whether telemetry is enabled.
type Recorder struct {
	db *sql.DB
}

// Open creates or opens the telemetry database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS ask_events (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		mode TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL,
		queries INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ask_events_tenant ON ask_events(tenant, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Record inserts one ask event, assigning it a fresh ID.
func (r *Recorder) Record(e Event) error {
	if r == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.Exec(`
		INSERT INTO ask_events (id, tenant, mode, confidence, latency_ms, queries, chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tenant, e.Mode, e.Confidence, e.LatencyMS, e.Queries, e.Chunks)
	if err != nil {
		return fmt.Errorf("record ask event: %w", err)
	}
	return nil
}

// ModeStats aggregates events for one tenant by answer mode.
func (r *Recorder) ModeStats(tenant string) ([]ModeStat, error) {
	if r == nil {
		return nil, nil
	}
	rows, err := r.db.Query(`
		SELECT mode, COUNT(*), AVG(latency_ms)
		FROM ask_events
		WHERE tenant = ?
		GROUP BY mode
		ORDER BY COUNT(*) DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query mode stats: %w", err)
	}
	defer rows.Close()

	var stats []ModeStat
	for rows.Next() {
		var s ModeStat
		if err := rows.Scan(&s.Mode, &s.Count, &s.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scan mode stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RecentEvents returns the newest events for one tenant, newest first.
func (r *Recorder) RecentEvents(tenant string, limit int) ([]Event, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, tenant, mode, confidence, latency_ms, queries, chunks, created_at
		FROM ask_events
		WHERE tenant = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Mode, &e.Confidence,
			&e.LatencyMS, &e.Queries, &e.Chunks, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ask event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}
