package perf

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisflow/trustplane/pkg/audit"
)

func TestTrackTokensExactCeiling(t *testing.T) {
	g := NewGovernor("exec-1")

	require.NoError(t, g.TrackTokens(800))

	err := g.TrackTokens(1)
	require.Error(t, err)
	bErr := err.(*BoundaryError)
	assert.Equal(t, ErrPerfMaxTokens, bErr.Code)
	assert.Equal(t, int64(800), bErr.Limit)
	assert.Equal(t, int64(801), bErr.Actual)
}

func TestTrackCallCeiling(t *testing.T) {
	g := NewGovernor("exec-1")

	require.NoError(t, g.TrackCall())
	require.NoError(t, g.TrackCall())

	err := g.TrackCall()
	require.Error(t, err)
	bErr := err.(*BoundaryError)
	assert.Equal(t, ErrPerfMaxCallsPerRun, bErr.Code)
	assert.Equal(t, int64(3), bErr.Actual)
}

func TestCheckLatency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGovernor("exec-1").WithClock(func() time.Time { return now })

	require.NoError(t, g.CheckLatency())

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, g.CheckLatency())

	now = now.Add(time.Millisecond)
	err := g.CheckLatency()
	require.Error(t, err)
	bErr := err.(*BoundaryError)
	assert.Equal(t, ErrPerfMaxLatencyMs, bErr.Code)
	assert.Equal(t, int64(1501), bErr.Actual)
}

func TestViolationLogsAgentAbort(t *testing.T) {
	var buf bytes.Buffer
	g := NewGovernor("exec-9").WithAuditLogger(audit.NewLoggerWithWriter("perf", &buf))

	_ = g.TrackTokens(801)

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "AUDIT: "))
	assert.Contains(t, line, "agent_abort")
	assert.Contains(t, line, ErrPerfMaxTokens)
	assert.Contains(t, line, "exec-9")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), EstimateTokens(""))
	assert.Equal(t, int64(3), EstimateTokens("四バイト")) // estimate is byte-based, 12/4
	assert.Equal(t, int64(25), EstimateTokens(strings.Repeat("a", 100)))
}

func TestSnapshot(t *testing.T) {
	g := NewGovernor("exec-1")
	require.NoError(t, g.TrackTokens(10))
	require.NoError(t, g.TrackCall())

	s := g.Snapshot()
	assert.Equal(t, int64(10), s.TokenCount)
	assert.Equal(t, int64(1), s.CallCount)
	assert.False(t, s.StartTime.IsZero())
}
