package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists decision events in SQLite. The full event is
// kept as a JSON payload column alongside indexed header fields.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) a SQLite database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS decision_events (
        event_id TEXT PRIMARY KEY,
        execution_ref TEXT NOT NULL,
        event_type TEXT NOT NULL,
        source_agent TEXT,
        timestamp DATETIME,
        inputs_hash TEXT,
        payload JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_decision_events_exec ON decision_events (execution_ref);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) PersistDecisionEvent(ctx context.Context, e *Event) (*PersistResult, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return &PersistResult{Success: false, Err: err.Error()}, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_events (event_id, execution_ref, event_type, source_agent, timestamp, inputs_hash, payload)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.ExecutionRef, e.EventType, e.SourceAgent, e.Timestamp, e.InputsHash, string(payload))
	if err != nil {
		return &PersistResult{Success: false, Err: err.Error()}, nil
	}
	return &PersistResult{Success: true, EventID: e.EventID}, nil
}

func (s *SQLiteStore) GetDecisionEvent(ctx context.Context, executionRef string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decision_events WHERE execution_ref = ? ORDER BY timestamp DESC LIMIT 1`,
		executionRef)

	var payload string
	if err := row.Scan(&payload); err == sql.ErrNoRows {
		return nil, nil // absence is not an error
	} else if err != nil {
		return nil, fmt.Errorf("get decision event: %w", err)
	}

	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("decode decision event: %w", err)
	}
	return &e, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
