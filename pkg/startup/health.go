package startup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// HealthStatus classifies the outcome of a dependency probe.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusTimeout   HealthStatus = "timeout"
)

// DefaultHealthTimeout bounds the health probe round trip.
const DefaultHealthTimeout = 5 * time.Second

// HealthResult reports a probe outcome. Check never returns an error:
// any failure is folded into the status so callers branch on exactly
// one value.
type HealthResult struct {
	Status     HealthStatus
	StatusCode int
	Err        string
}

// HealthChecker probes the persistence dependency's /health endpoint.
type HealthChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewHealthChecker returns a checker with the default timeout.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		client:  &http.Client{},
		timeout: DefaultHealthTimeout,
	}
}

// WithClient overrides the HTTP client for testing.
func (h *HealthChecker) WithClient(c *http.Client) *HealthChecker {
	if c != nil {
		h.client = c
	}
	return h
}

// WithTimeout overrides the probe timeout.
func (h *HealthChecker) WithTimeout(d time.Duration) *HealthChecker {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Check probes {endpoint}/health with bearer auth. A 2xx response is
// healthy, any other response is unhealthy, and a deadline overrun is
// reported as timeout.
func (h *HealthChecker) Check(ctx context.Context, endpoint, apiKey string) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResult{Status: StatusUnhealthy, Err: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return HealthResult{Status: StatusTimeout, Err: err.Error()}
		}
		return HealthResult{Status: StatusUnhealthy, Err: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return HealthResult{
			Status:     StatusUnhealthy,
			StatusCode: resp.StatusCode,
			Err:        fmt.Sprintf("health endpoint returned %d", resp.StatusCode),
		}
	}
	return HealthResult{Status: StatusHealthy, StatusCode: resp.StatusCode}
}
