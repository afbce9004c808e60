package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aegisflow/trustplane/pkg/archive"
	"github.com/aegisflow/trustplane/pkg/cache"
	"github.com/aegisflow/trustplane/pkg/decision"
	"github.com/aegisflow/trustplane/pkg/gateway"
	"github.com/aegisflow/trustplane/pkg/observability"
	"github.com/aegisflow/trustplane/pkg/perf"
	"github.com/aegisflow/trustplane/pkg/span"
	"github.com/aegisflow/trustplane/pkg/token"
)

// server runs the governed scan pipeline: every request passes through
// the gateway, is tracked as an execution span tree, is bounded by the
// performance governor, and must emit at least one decision event.
type server struct {
	gw       *gateway.Gateway
	factory  *decision.Factory
	obs      *observability.Provider
	exporter archive.Exporter
	results  *cache.ReadOnly[*gateway.ScanResult]
	tier     *cache.ReadThrough[*gateway.ScanResult]
}

func newServer(
	gw *gateway.Gateway,
	factory *decision.Factory,
	obs *observability.Provider,
	exporter archive.Exporter,
	results *cache.ReadOnly[*gateway.ScanResult],
	tier *cache.ReadThrough[*gateway.ScanResult],
) *server {
	return &server{gw: gw, factory: factory, obs: obs, exporter: exporter, results: results, tier: tier}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/scan/prompt", s.handleScan(gateway.OpScanPrompt))
	mux.HandleFunc("POST /v1/scan/output", s.handleScan(gateway.OpScanOutput))
	mux.HandleFunc("POST /v1/scan/batch", s.handleBatch)
	return mux
}

type scanAPIRequest struct {
	ExecutionID  string             `json:"execution_id"`
	ParentSpanID string             `json:"parent_span_id"`
	Caller       *token.CallerToken `json:"caller"`
	Text         string             `json:"text"`
	Texts        []string           `json:"texts,omitempty"`
	Options      map[string]any     `json:"options,omitempty"`
}

type scanAPIResponse struct {
	Result      *gateway.ScanResult `json:"result"`
	EventID     string              `json:"event_id"`
	ExecutionID string              `json:"execution_id"`
	Cached      bool                `json:"cached"`
}

func (s *server) handleScan(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		ctx, done := s.obs.TrackScan(r.Context(), operation,
			attribute.String("execution_id", req.ExecutionID))

		resp, err := s.runScan(ctx, operation, &req)
		done(err)
		if err != nil {
			s.obs.RecordRejection(ctx, errCode(err))
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type batchAPIResponse struct {
	Results     []*gateway.ScanResult `json:"results"`
	EventID     string                `json:"event_id"`
	ExecutionID string                `json:"execution_id"`
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req scanAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	ctx, done := s.obs.TrackScan(r.Context(), gateway.OpScanBatch,
		attribute.String("execution_id", req.ExecutionID))

	resp, err := s.runBatch(ctx, &req)
	done(err)
	if err != nil {
		s.obs.RecordRejection(ctx, errCode(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// runBatch scans a batch of texts and emits one decision event carrying
// a signal per flagged text.
func (s *server) runBatch(ctx context.Context, req *scanAPIRequest) (*batchAPIResponse, error) {
	gc := &gateway.Context{
		ExecutionID:  req.ExecutionID,
		ParentSpanID: req.ParentSpanID,
		Caller:       req.Caller,
	}

	tracker := span.NewTracker()
	repoID, err := tracker.StartRepoSpan(req.ExecutionID, req.ParentSpanID, "content-safety")
	if err != nil {
		return nil, err
	}
	callerID := ""
	if req.Caller != nil {
		callerID = req.Caller.CallerID
	}
	agentID, err := tracker.StartAgentSpan(repoID, gateway.OpScanBatch, callerID)
	if err != nil {
		return nil, err
	}

	governor := perf.NewGovernor(req.ExecutionID)
	if err := governor.TrackCall(); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	var total int64
	for _, t := range req.Texts {
		total += perf.EstimateTokens(t)
	}
	if err := governor.TrackTokens(total); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}

	results, err := s.gw.ScanBatch(ctx, gc, req.Texts, req.Options)
	if err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	if err := governor.CheckLatency(); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}

	if _, err := tracker.AttachArtifact(agentID, span.ArtifactDetectionSignal, results); err != nil {
		return nil, err
	}

	inputsHash, err := decision.InputsHash(map[string]any{
		"operation": gateway.OpScanBatch,
		"texts":     req.Texts,
		"options":   req.Options,
	})
	if err != nil {
		return nil, err
	}

	var signals []decision.Signal
	var maxConfidence float64
	for i, result := range results {
		if result.Confidence > maxConfidence {
			maxConfidence = result.Confidence
		}
		if result.Flagged {
			for _, sig := range signalsFrom(result) {
				sig.Count = 1
				sig.EvidenceIDs = []string{fmt.Sprintf("batch-item-%d", i)}
				signals = append(signals, sig)
			}
		}
	}

	ec := decision.NewEmissionContext(req.ExecutionID)
	event := s.factory.Create(decision.CreateParams{
		EventType:    gateway.OpScanBatch,
		ExecutionRef: req.ExecutionID,
		Confidence:   maxConfidence,
		InputsHash:   inputsHash,
		Signals:      signals,
	})
	if err := s.factory.Emit(ctx, ec, event); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	if _, err := tracker.AttachArtifact(agentID, span.ArtifactDecisionEvent, event); err != nil {
		return nil, err
	}
	if err := s.factory.AssertEmitted(ec); err != nil {
		return nil, err
	}

	if err := tracker.CompleteSpan(agentID); err != nil {
		return nil, err
	}
	out, err := tracker.FinalizeRepoSpan(repoID)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := archive.Output(context.Background(), s.exporter, out); err != nil {
			log.Printf("archive execution %s: %v", req.ExecutionID, err)
		}
	}()

	return &batchAPIResponse{
		Results:     results,
		EventID:     event.EventID,
		ExecutionID: req.ExecutionID,
	}, nil
}

// runScan executes one governed scan: it opens the repo and agent
// spans, delegates through the gateway under the performance governor,
// emits the decision event, then finalizes, validates and archives the
// execution tree.
func (s *server) runScan(ctx context.Context, operation string, req *scanAPIRequest) (*scanAPIResponse, error) {
	gc := &gateway.Context{
		ExecutionID:  req.ExecutionID,
		ParentSpanID: req.ParentSpanID,
		Caller:       req.Caller,
	}

	tracker := span.NewTracker()
	repoID, err := tracker.StartRepoSpan(req.ExecutionID, req.ParentSpanID, "content-safety")
	if err != nil {
		return nil, err
	}

	callerID := ""
	if req.Caller != nil {
		callerID = req.Caller.CallerID
	}
	agentID, err := tracker.StartAgentSpan(repoID, operation, callerID)
	if err != nil {
		return nil, err
	}

	governor := perf.NewGovernor(req.ExecutionID)
	if err := governor.TrackCall(); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	if err := governor.TrackTokens(perf.EstimateTokens(req.Text)); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}

	inputsHash, err := decision.InputsHash(map[string]any{
		"operation": operation,
		"text":      req.Text,
		"options":   req.Options,
	})
	if err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}

	result, cached, err := s.scan(ctx, operation, gc, req, inputsHash)
	if err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	if err := governor.CheckLatency(); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}

	if _, err := tracker.AttachArtifact(agentID, span.ArtifactDetectionSignal, result); err != nil {
		return nil, err
	}

	ec := decision.NewEmissionContext(req.ExecutionID)
	event := s.factory.Create(decision.CreateParams{
		EventType:    operation,
		ExecutionRef: req.ExecutionID,
		Confidence:   result.Confidence,
		InputsHash:   inputsHash,
		Signals:      signalsFrom(result),
	})
	if err := s.factory.Emit(ctx, ec, event); err != nil {
		_ = tracker.FailSpan(agentID, err.Error())
		return nil, err
	}
	if _, err := tracker.AttachArtifact(agentID, span.ArtifactDecisionEvent, event); err != nil {
		return nil, err
	}
	if err := s.factory.AssertEmitted(ec); err != nil {
		return nil, err
	}

	if err := tracker.CompleteSpan(agentID); err != nil {
		return nil, err
	}
	out, err := tracker.FinalizeRepoSpan(repoID)
	if err != nil {
		return nil, err
	}
	if violations := span.ValidateExecutionOutput(out); len(violations) > 0 {
		log.Printf("execution %s output failed structural audit: %v", req.ExecutionID, violations)
	}

	// Archival is best-effort and never blocks the response.
	go func() {
		if err := archive.Output(context.Background(), s.exporter, out); err != nil {
			log.Printf("archive execution %s: %v", req.ExecutionID, err)
		}
	}()

	return &scanAPIResponse{
		Result:      result,
		EventID:     event.EventID,
		ExecutionID: req.ExecutionID,
		Cached:      cached,
	}, nil
}

// scan consults the result cache before delegating through the gateway.
// The gate runs on every call, hit or miss; only the engine round trip
// is skipped on a hit.
func (s *server) scan(ctx context.Context, operation string, gc *gateway.Context, req *scanAPIRequest, inputsHash string) (*gateway.ScanResult, bool, error) {
	key := operation + ":" + inputsHash

	var hit *gateway.ScanResult
	var ok bool
	if s.tier != nil {
		hit, ok = s.tier.Get(ctx, key)
	} else {
		hit, ok = s.results.Get(key)
	}
	if ok {
		if err := s.gw.Authorize(ctx, gc, operation, req.Options); err != nil {
			return nil, false, err
		}
		return hit, true, nil
	}

	var result *gateway.ScanResult
	var err error
	switch operation {
	case gateway.OpScanOutput:
		result, err = s.gw.ScanOutput(ctx, gc, req.Text, req.Options)
	default:
		result, err = s.gw.ScanPrompt(ctx, gc, req.Text, req.Options)
	}
	if err != nil {
		return nil, false, err
	}

	if s.tier != nil {
		s.tier.Set(ctx, key, result)
	} else {
		s.results.Set(key, result)
	}
	return result, false, nil
}

func signalsFrom(result *gateway.ScanResult) []decision.Signal {
	if !result.Flagged {
		return nil
	}
	signals := make([]decision.Signal, 0, len(result.Categories))
	for _, category := range result.Categories {
		signals = append(signals, decision.Signal{
			SignalType: "content_flag",
			Category:   category,
			Severity:   "medium",
			Confidence: result.Confidence,
			Count:      1,
		})
	}
	if len(signals) == 0 {
		signals = append(signals, decision.Signal{
			SignalType: "content_flag",
			Category:   "uncategorized",
			Severity:   "medium",
			Confidence: result.Confidence,
			Count:      1,
		})
	}
	return signals
}

func errCode(err error) string {
	var authErr *token.AuthError
	var ctxErr *gateway.ContextError
	var trackerErr *span.TrackerError
	var boundaryErr *perf.BoundaryError
	switch {
	case errors.As(err, &authErr):
		return authErr.Code
	case errors.As(err, &ctxErr):
		return ctxErr.Code
	case errors.As(err, &trackerErr):
		return trackerErr.Code
	case errors.As(err, &boundaryErr):
		return boundaryErr.Code
	default:
		return "ERR_INTERNAL"
	}
}

func statusFor(err error) int {
	var authErr *token.AuthError
	var ctxErr *gateway.ContextError
	var policyErr *gateway.PolicyDeniedError
	var rateErr *gateway.RateLimitedError
	var boundaryErr *perf.BoundaryError
	switch {
	case errors.As(err, &ctxErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &policyErr):
		return http.StatusForbidden
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.As(err, &boundaryErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
