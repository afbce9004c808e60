package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists decision events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema if needed.
func (s *PostgresStore) Init(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS decision_events (
        event_id TEXT PRIMARY KEY,
        execution_ref TEXT NOT NULL,
        event_type TEXT NOT NULL,
        source_agent TEXT,
        timestamp TIMESTAMPTZ,
        inputs_hash TEXT,
        payload JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_decision_events_exec ON decision_events (execution_ref);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) PersistDecisionEvent(ctx context.Context, e *Event) (*PersistResult, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return &PersistResult{Success: false, Err: err.Error()}, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_events (event_id, execution_ref, event_type, source_agent, timestamp, inputs_hash, payload)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.ExecutionRef, e.EventType, e.SourceAgent, e.Timestamp, e.InputsHash, payload)
	if err != nil {
		return &PersistResult{Success: false, Err: err.Error()}, nil
	}
	return &PersistResult{Success: true, EventID: e.EventID}, nil
}

func (s *PostgresStore) GetDecisionEvent(ctx context.Context, executionRef string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decision_events WHERE execution_ref = $1 ORDER BY timestamp DESC LIMIT 1`,
		executionRef)

	var payload []byte
	if err := row.Scan(&payload); err == sql.ErrNoRows {
		return nil, nil // absence is not an error
	} else if err != nil {
		return nil, fmt.Errorf("get decision event: %w", err)
	}

	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode decision event: %w", err)
	}
	return &e, nil
}
