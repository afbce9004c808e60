// Package audit provides structured JSON audit logging for governance
// events: emissions, aborts, policy denials, startup failures.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventSystem   EventType = "SYSTEM"
	EventPolicy   EventType = "POLICY"
	EventEmission EventType = "EMISSION"
	EventAbort    EventType = "ABORT"
)

// Event represents a structured audit record.
type Event struct {
	ID           string         `json:"id"`
	Component    string         `json:"component"`
	Type         EventType      `json:"type"`
	Action       string         `json:"action"`
	ExecutionRef string         `json:"execution_ref,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, executionRef string, metadata map[string]any) error
}

// logger implements Logger, writing structured JSON to a configurable Writer.
type logger struct {
	mu        sync.Mutex
	component string
	writer    io.Writer
}

// NewLogger creates a Logger for component writing to os.Stdout.
func NewLogger(component string) Logger {
	return NewLoggerWithWriter(component, os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(component string, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{component: component, writer: w}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, executionRef string, metadata map[string]any) error {
	_ = ctx

	event := Event{
		ID:           uuid.New().String(),
		Component:    l.component,
		Type:         eventType,
		Action:       action,
		ExecutionRef: executionRef,
		Timestamp:    time.Now().UTC(),
		Metadata:     metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// Nop returns a Logger that discards all records.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Record(context.Context, EventType, string, string, map[string]any) error {
	return nil
}
