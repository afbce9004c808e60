package span

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRepoSpanRequiresContext(t *testing.T) {
	tr := NewTracker()

	_, err := tr.StartRepoSpan("", "parent-1", "repo-run")
	require.Error(t, err)
	assert.Equal(t, ErrSpanMissingContext, err.(*TrackerError).Code)

	_, err = tr.StartRepoSpan("exec-1", "", "repo-run")
	require.Error(t, err)
	assert.Equal(t, ErrSpanMissingContext, err.(*TrackerError).Code)
}

func TestOneRepoSpanPerExecution(t *testing.T) {
	tr := NewTracker()

	_, err := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	require.NoError(t, err)

	_, err = tr.StartRepoSpan("exec-1", "core-span-1", "repo-run-again")
	require.Error(t, err)
	assert.Equal(t, ErrSpanWrongType, err.(*TrackerError).Code)
}

func TestAgentSpanParentLinkage(t *testing.T) {
	tr := NewTracker()
	repoID, err := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	require.NoError(t, err)

	agentID, err := tr.StartAgentSpan(repoID, "credential-scan", "agent-cred")
	require.NoError(t, err)

	tree := tr.Tree(repoID)
	require.Len(t, tree.Children, 1)
	child := tree.Children[0]
	assert.Equal(t, agentID, child.SpanID)
	assert.Equal(t, TypeAgent, child.Type)
	assert.Equal(t, repoID, child.ParentSpanID)
	assert.Equal(t, "exec-1", child.ExecutionID)
	assert.Equal(t, "agent-cred", child.Attributes["agent_key"])
}

func TestAgentSpanRejectsNonRepoParent(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")

	_, err := tr.StartAgentSpan(agentID, "nested", "")
	require.Error(t, err)
	assert.Equal(t, ErrSpanWrongType, err.(*TrackerError).Code)
}

func TestArtifactsAgentSpansOnly(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")

	_, err := tr.AttachArtifact(repoID, ArtifactDetectionSignal, map[string]any{"k": "v"})
	require.Error(t, err)
	assert.Equal(t, ErrArtifactNonAgentSpan, err.(*TrackerError).Code)

	a, err := tr.AttachArtifact(agentID, ArtifactDetectionSignal, map[string]any{"severity": "high"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ArtifactID)
	assert.Equal(t, ArtifactDetectionSignal, a.Type)
	assert.False(t, a.Timestamp.IsZero())
}

func TestSpanStateMachineIsTerminal(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")

	require.NoError(t, tr.CompleteSpan(agentID))

	err := tr.CompleteSpan(agentID)
	require.Error(t, err)
	assert.Equal(t, ErrSpanTerminal, err.(*TrackerError).Code)

	err = tr.FailSpan(agentID, "late failure")
	require.Error(t, err)
	assert.Equal(t, ErrSpanTerminal, err.(*TrackerError).Code)

	_, err = tr.AttachArtifact(agentID, ArtifactMetric, nil)
	require.Error(t, err)
	assert.Equal(t, ErrSpanTerminal, err.(*TrackerError).Code)
}

func TestFailSpanAppendsMetricArtifact(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")

	require.NoError(t, tr.FailSpan(agentID, "engine timeout"))

	tree := tr.Tree(agentID)
	assert.Equal(t, StatusError, tree.Status)
	require.Len(t, tree.Artifacts, 1)
	assert.Equal(t, ArtifactMetric, tree.Artifacts[0].Type)
	data := tree.Artifacts[0].Data.(map[string]any)
	assert.Equal(t, "engine timeout", data["failure_reason"])
}

func TestFinalizeWithoutChildrenViolatesInvariant(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")

	out, err := tr.FinalizeRepoSpan(repoID)
	require.Error(t, err)
	assert.Nil(t, out)

	var inv *InvariantViolated
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "exec-1", inv.ExecutionID)
}

func TestFinalizeAutoCompletesAndOrdersTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker().WithClock(func() time.Time { return now })

	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")

	now = now.Add(250 * time.Millisecond)
	require.NoError(t, tr.CompleteSpan(agentID))

	now = now.Add(50 * time.Millisecond)
	out, err := tr.FinalizeRepoSpan(repoID)
	require.NoError(t, err)

	repo := out.RepoSpan
	assert.Equal(t, StatusCompleted, repo.Status)
	require.NotNil(t, repo.EndTime)
	assert.False(t, repo.EndTime.Before(repo.StartTime))
	require.NotNil(t, repo.DurationMs)
	assert.Equal(t, int64(300), *repo.DurationMs)
}

func TestValidateExecutionOutputCleanTree(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")
	_, _ = tr.AttachArtifact(agentID, ArtifactDetectionSignal, map[string]any{"severity": "low"})
	require.NoError(t, tr.CompleteSpan(agentID))

	out, err := tr.FinalizeRepoSpan(repoID)
	require.NoError(t, err)

	assert.Empty(t, ValidateExecutionOutput(out))
}

func TestValidateExecutionOutputDetectsCorruption(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")
	agentID, _ := tr.StartAgentSpan(repoID, "credential-scan", "")
	require.NoError(t, tr.CompleteSpan(agentID))

	out, err := tr.FinalizeRepoSpan(repoID)
	require.NoError(t, err)

	out.RepoSpan.Children[0].ParentSpanID = "corrupted"
	violations := ValidateExecutionOutput(out)
	require.NotEmpty(t, violations)
}

func TestValidateExecutionOutputMissingRepoSpan(t *testing.T) {
	violations := ValidateExecutionOutput(&Output{ExecutionID: "exec-1"})
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "repo_span is missing")
}

func TestConcurrentAgentAppend(t *testing.T) {
	tr := NewTracker()
	repoID, _ := tr.StartRepoSpan("exec-1", "core-span-1", "repo-run")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := tr.StartAgentSpan(repoID, "scan", "")
			if err == nil {
				_, _ = tr.AttachArtifact(id, ArtifactMetric, nil)
				_ = tr.CompleteSpan(id)
			}
		}()
	}
	wg.Wait()

	out, err := tr.FinalizeRepoSpan(repoID)
	require.NoError(t, err)
	assert.Len(t, out.RepoSpan.Children, 16)
	assert.Empty(t, ValidateExecutionOutput(out))
}
