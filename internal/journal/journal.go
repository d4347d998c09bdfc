// Package journal persists a session trail (phase transitions and
// verification outcomes) to sqlite, so a search session can be
// reviewed after the fact.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/e7canasta/wayfinder/internal/phase"
	"github.com/e7canasta/wayfinder/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS phase_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	seq INTEGER NOT NULL,
	from_phase TEXT NOT NULL,
	to_phase TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS verification_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	backend TEXT NOT NULL,
	is_match INTEGER NOT NULL,
	reject_reason TEXT,
	description TEXT
);
`

// Journal is a mutex-wrapped sqlite session log. Writers arrive from
// the tick goroutine and from verification completions concurrently.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (or reuses) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// PhaseChanged implements core.PhaseListener.
func (j *Journal) PhaseChanged(prev, next phase.Phase, seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// The journal is an audit trail, never load-bearing: a failed
	// insert is logged and forgotten.
	_, err := j.db.Exec(
		`INSERT INTO phase_events (ts, seq, from_phase, to_phase) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), seq, string(prev.Kind), string(next.Kind),
	)
	if err != nil {
		slog.Debug("journal insert failed", "table", "phase_events", "error", err)
	}
}

// RecordOutcome matches verify.OutcomeFunc.
func (j *Journal) RecordOutcome(id uuid.UUID, kind types.BackendKind, out types.Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO verification_events (ts, candidate_id, backend, is_match, reject_reason, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id.String(), string(kind), boolToInt(out.IsMatch), string(out.RejectReason), out.Description,
	)
	if err != nil {
		slog.Debug("journal insert failed", "table", "verification_events", "error", err)
	}
}

// PhaseEventCount returns the number of recorded phase transitions.
func (j *Journal) PhaseEventCount() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM phase_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count phase events: %w", err)
	}
	return n, nil
}

// OutcomeCount returns the number of recorded verification outcomes.
func (j *Journal) OutcomeCount() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM verification_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count verification events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
