package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("gateway", &buf)

	err := l.Record(context.Background(), EventAbort, "agent_abort", "exec-1", map[string]any{
		"code": "ERR_PERF_MAX_TOKENS",
	})
	require.NoError(t, err)

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &ev))
	assert.Equal(t, "gateway", ev.Component)
	assert.Equal(t, EventAbort, ev.Type)
	assert.Equal(t, "agent_abort", ev.Action)
	assert.Equal(t, "exec-1", ev.ExecutionRef)
	assert.Equal(t, "ERR_PERF_MAX_TOKENS", ev.Metadata["code"])
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNopLoggerDiscards(t *testing.T) {
	require.NoError(t, Nop().Record(context.Background(), EventSystem, "noop", "", nil))
}
