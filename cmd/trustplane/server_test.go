package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisflow/trustplane/pkg/archive"
	"github.com/aegisflow/trustplane/pkg/cache"
	"github.com/aegisflow/trustplane/pkg/decision"
	"github.com/aegisflow/trustplane/pkg/gateway"
	"github.com/aegisflow/trustplane/pkg/observability"
	"github.com/aegisflow/trustplane/pkg/token"
)

type stubEngine struct {
	calls int
}

func (e *stubEngine) ScanPrompt(_ context.Context, text string, _ map[string]any) (*gateway.ScanResult, error) {
	e.calls++
	return &gateway.ScanResult{Flagged: true, Confidence: 0.92, Categories: []string{"pii"}}, nil
}

func (e *stubEngine) ScanOutput(_ context.Context, text string, _ map[string]any) (*gateway.ScanResult, error) {
	e.calls++
	return &gateway.ScanResult{Flagged: false, Confidence: 0.1}, nil
}

func (e *stubEngine) ScanBatch(_ context.Context, texts []string, _ map[string]any) ([]*gateway.ScanResult, error) {
	e.calls++
	out := make([]*gateway.ScanResult, len(texts))
	for i := range texts {
		out[i] = &gateway.ScanResult{Flagged: i%2 == 0, Confidence: 0.5, Categories: []string{"toxicity"}}
	}
	return out, nil
}

const testSecret = "server-test-secret"

func newTestServer(t *testing.T, engine gateway.ScanEngine) (*server, *token.Authority) {
	t.Helper()

	gw, err := gateway.NewBuilder().
		WithSecret(testSecret).
		WithEngine(engine).
		Build()
	require.NoError(t, err)

	identity, err := decision.NewInitialized(decision.Identity{
		SourceAgent: "prompt-guard",
		Domain:      "content-safety",
		Phase:       "ingress",
		Layer:       "agent",
	})
	require.NoError(t, err)

	obs, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	results := cache.New[*gateway.ScanResult](10*time.Second, 100)
	srv := newServer(gw, decision.NewFactory(identity), obs, archive.Discard(), results, nil)
	return srv, token.NewAuthority()
}

func postScan(t *testing.T, h http.Handler, path string, req scanAPIRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func TestScanPromptHappyPath(t *testing.T) {
	engine := &stubEngine{}
	srv, authority := newTestServer(t, engine)
	caller, err := authority.Create("caller-1", testSecret)
	require.NoError(t, err)

	rec := postScan(t, srv.routes(), "/v1/scan/prompt", scanAPIRequest{
		ExecutionID:  "exec-1",
		ParentSpanID: "core-1",
		Caller:       caller,
		Text:         "my ssn is 123-45-6789",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scanAPIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Flagged)
	assert.NotEmpty(t, resp.EventID)
	assert.Equal(t, "exec-1", resp.ExecutionID)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, engine.calls)
}

func TestScanPromptSecondCallIsCached(t *testing.T) {
	engine := &stubEngine{}
	srv, authority := newTestServer(t, engine)
	caller, err := authority.Create("caller-1", testSecret)
	require.NoError(t, err)

	req := scanAPIRequest{
		ExecutionID:  "exec-2",
		ParentSpanID: "core-1",
		Caller:       caller,
		Text:         "same text",
	}
	first := postScan(t, srv.routes(), "/v1/scan/prompt", req)
	require.Equal(t, http.StatusOK, first.Code)

	second := postScan(t, srv.routes(), "/v1/scan/prompt", req)
	require.Equal(t, http.StatusOK, second.Code)

	var resp scanAPIResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, engine.calls)
}

func TestScanMissingContextIsBadRequest(t *testing.T) {
	srv, authority := newTestServer(t, &stubEngine{})
	caller, err := authority.Create("caller-1", testSecret)
	require.NoError(t, err)

	rec := postScan(t, srv.routes(), "/v1/scan/prompt", scanAPIRequest{
		Caller: caller,
		Text:   "no execution id",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanBadTokenIsUnauthorized(t *testing.T) {
	srv, authority := newTestServer(t, &stubEngine{})
	caller, err := authority.Create("caller-1", "some-other-secret")
	require.NoError(t, err)

	rec := postScan(t, srv.routes(), "/v1/scan/prompt", scanAPIRequest{
		ExecutionID:  "exec-3",
		ParentSpanID: "core-1",
		Caller:       caller,
		Text:         "hello",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScanBatchEmitsOneEvent(t *testing.T) {
	srv, authority := newTestServer(t, &stubEngine{})
	caller, err := authority.Create("caller-1", testSecret)
	require.NoError(t, err)

	rec := postScan(t, srv.routes(), "/v1/scan/batch", scanAPIRequest{
		ExecutionID:  "exec-4",
		ParentSpanID: "core-1",
		Caller:       caller,
		Texts:        []string{"one", "two", "three"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batchAPIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.NotEmpty(t, resp.EventID)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
