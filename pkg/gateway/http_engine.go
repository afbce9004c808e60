package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEngine is a ScanEngine backed by a remote classification service.
// It implements ConfigurableEngine: the gateway's scanner configuration
// is forwarded with every request.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cfg     ScannerConfig
}

// NewHTTPEngine creates an engine client for the given service base URL.
func NewHTTPEngine(baseURL, apiKey string) *HTTPEngine {
	return &HTTPEngine{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client for testing.
func (e *HTTPEngine) WithHTTPClient(c *http.Client) *HTTPEngine {
	if c != nil {
		e.client = c
	}
	return e
}

// Configure stores the scanner configuration forwarded with each scan.
func (e *HTTPEngine) Configure(cfg ScannerConfig) error {
	if len(cfg.Scanners) == 0 {
		return fmt.Errorf("scanner configuration requires at least one scanner")
	}
	e.cfg = cfg
	return nil
}

type scanRequest struct {
	Text    string         `json:"text,omitempty"`
	Texts   []string       `json:"texts,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Config  ScannerConfig  `json:"config"`
}

func (e *HTTPEngine) ScanPrompt(ctx context.Context, text string, options map[string]any) (*ScanResult, error) {
	var out ScanResult
	if err := e.post(ctx, "/v1/scan/prompt", scanRequest{Text: text, Options: options, Config: e.cfg}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *HTTPEngine) ScanOutput(ctx context.Context, text string, options map[string]any) (*ScanResult, error) {
	var out ScanResult
	if err := e.post(ctx, "/v1/scan/output", scanRequest{Text: text, Options: options, Config: e.cfg}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *HTTPEngine) ScanBatch(ctx context.Context, texts []string, options map[string]any) ([]*ScanResult, error) {
	var out []*ScanResult
	if err := e.post(ctx, "/v1/scan/batch", scanRequest{Texts: texts, Options: options, Config: e.cfg}, &out); err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("engine returned %d results for %d texts", len(out), len(texts))
	}
	return out, nil
}

func (e *HTTPEngine) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("scan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode scan response: %w", err)
	}
	return nil
}
