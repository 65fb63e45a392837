package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"loupgarou/engine"
)

// SessionRecord is one stored game session. Snapshot holds the engine
// snapshot as JSON.
type SessionRecord struct {
	ID        string `db:"id"`
	Code      string `db:"code"`
	Phase     string `db:"phase"`
	Round     int    `db:"round"`
	Outcome   string `db:"outcome"`
	Snapshot  string `db:"snapshot"`
	Closed    bool   `db:"closed"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// HistoryEvent is one public line of a game's history.
type HistoryEvent struct {
	ID          int64  `db:"id"          json:"id"`
	SessionID   string `db:"session_id"  json:"-"`
	Round       int    `db:"round"       json:"round"`
	Phase       string `db:"phase"       json:"phase"`
	Kind        string `db:"kind"        json:"kind"`
	Description string `db:"description" json:"description"`
	CreatedAt   int64  `db:"created_at"  json:"created_at"`
}

// History event kinds
const (
	EventGameStarted = "game_started"
	EventNightDeath  = "night_death"
	EventNoDeath     = "no_death"
	EventElimination = "elimination"
	EventNoMajority  = "no_majority"
	EventRevenge     = "hunter_revenge"
	EventGameOver    = "game_over"
	EventStory       = "story"
)

// SessionStore persists session snapshots and their history.
type SessionStore struct {
	db *sqlx.DB
}

// store is the process-wide session store.
var store *SessionStore

// openStore connects to the database with driver ("sqlite3" or "sqlite") and
// creates the schema.
func openStore(driver, dsn string) (*SessionStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	// A single connection keeps SQLite writes serialized across goroutines.
	db.SetMaxOpenConns(1)

	s := &SessionStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS game_session (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		phase TEXT NOT NULL,
		round INTEGER NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		snapshot TEXT NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS game_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES game_session(id),
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS game_history_session ON game_history(session_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Commit stores snap together with the history lines it produced in one
// transaction: either both are written or neither is.
func (s *SessionStore) Commit(ctx context.Context, code string, snap engine.Snapshot, events []HistoryEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit %s: %w", snap.ID, err)
	}
	defer tx.Rollback()

	if err := saveSession(ctx, tx, code, snap); err != nil {
		return err
	}
	for _, ev := range events {
		ev.SessionID = snap.ID
		if _, err := appendEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", snap.ID, err)
	}
	return nil
}

// saveSession inserts or updates the session row with snap.
func saveSession(ctx context.Context, db sqlx.ExtContext, code string, snap engine.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UnixNano()
	_, err = db.ExecContext(ctx, `
		INSERT INTO game_session (id, code, phase, round, outcome, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			round = excluded.round,
			outcome = excluded.outcome,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		snap.ID, code, string(snap.Phase), snap.Round, string(snap.Outcome), string(raw), now, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

// CloseSession marks a session as abandoned so it is not restored again.
func (s *SessionStore) CloseSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE game_session SET closed = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// LatestActive returns the most recently updated session that is neither
// closed nor finished, or ok=false when there is none.
func (s *SessionStore) LatestActive(ctx context.Context) (rec SessionRecord, snap engine.Snapshot, ok bool, err error) {
	err = s.db.GetContext(ctx, &rec, `
		SELECT id, code, phase, round, outcome, snapshot, closed, created_at, updated_at
		FROM game_session
		WHERE closed = 0 AND phase != ?
		ORDER BY updated_at DESC LIMIT 1`, string(engine.PhaseEnded))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, engine.Snapshot{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, engine.Snapshot{}, false, fmt.Errorf("latest session: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.Snapshot), &snap); err != nil {
		return rec, engine.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", rec.ID, err)
	}
	return rec, snap, true, nil
}

// AppendEvent adds a history line and returns its id.
func (s *SessionStore) AppendEvent(ctx context.Context, ev HistoryEvent) (int64, error) {
	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db sqlx.ExtContext, ev HistoryEvent) (int64, error) {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixNano()
	}
	res, err := sqlx.NamedExecContext(ctx, db, `
		INSERT INTO game_history (session_id, round, phase, kind, description, created_at)
		VALUES (:session_id, :round, :phase, :kind, :description, :created_at)`, ev)
	if err != nil {
		return 0, fmt.Errorf("append %s event: %w", ev.Kind, err)
	}
	return res.LastInsertId()
}

// UpdateEvent replaces the description of a history line.
func (s *SessionStore) UpdateEvent(ctx context.Context, id int64, description string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE game_history SET description = ? WHERE id = ?`, description, id); err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	return nil
}

// DeleteEvent removes a history line.
func (s *SessionStore) DeleteEvent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM game_history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	return nil
}

// History returns the visible history of a session in insertion order.
// Lines with an empty description (stories still being written) are skipped.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]HistoryEvent, error) {
	events := []HistoryEvent{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, session_id, round, phase, kind, description, created_at
		FROM game_history
		WHERE session_id = ? AND description != ''
		ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", sessionID, err)
	}
	return events, nil
}

// Descriptions returns the visible history lines as text.
func (s *SessionStore) Descriptions(ctx context.Context, sessionID string) ([]string, error) {
	events, err := s.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = ev.Description
	}
	return lines, nil
}

// Dump writes every table to w, one row per line.
func (s *SessionStore) Dump(w io.Writer) error {
	var tables []string
	if err := s.db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	for _, table := range tables {
		fmt.Fprintf(w, "--- Table: %s ---\n", table)

		if err := dumpTable(w, s.db, table); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// dumpTable writes the rows of one table, or "(empty)".
func dumpTable(w io.Writer, db *sqlx.DB, table string) error {
	rows, err := db.Queryx("SELECT * FROM " + table)
	if err != nil {
		return err
	}
	defer rows.Close()

	rowCount := 0
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			fmt.Fprintf(w, "Error scanning row: %v\n", err)
			continue
		}
		rowCount++
		var cols []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				cols = append(cols, "NULL")
			case []byte:
				cols = append(cols, string(val))
			default:
				cols = append(cols, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintf(w, "Row %d: %s\n", rowCount, strings.Join(cols, " | "))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", table, err)
	}
	if rowCount == 0 {
		fmt.Fprintf(w, "(empty)\n")
	}
	return nil
}
