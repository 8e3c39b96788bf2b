package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Prober performs a single readiness check. It only answers ready or not ready; the
// reason a probe failed is never reported to the caller.
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// HTTPProber implements Prober using HTTP GET requests. Any 2xx response means ready.
type HTTPProber struct {
	client         *http.Client
	requestTimeout time.Duration // Upper bound for a single probe
	logger         *slog.Logger
}

// NewHTTPProber creates a new HTTPProber.
// requestTimeout specifies the timeout for each health check HTTP request.
func NewHTTPProber(requestTimeout time.Duration, logger *slog.Logger) *HTTPProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProber{
		client:         &http.Client{},
		requestTimeout: requestTimeout,
		logger:         logger.With("component", "HTTPProber"),
	}
}

// Probe issues one GET to url. Connection failures, timeouts and non-2xx statuses are all
// reported as not ready.
func (h *HTTPProber) Probe(ctx context.Context, url string) bool {
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.logger.Debug("Failed to create health check request", "url", url, "error", err)
		return false
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// Network error, timeout, connection refused, etc.
		h.logger.Debug("Health check request failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}
	h.logger.Debug("Health check returned non-success status", "url", url, "status", resp.Status)
	return false
}
