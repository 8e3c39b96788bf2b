package health

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTimeout is the usual deadline for a backend to come up.
const DefaultTimeout = 15 * time.Second

const (
	defaultPollInterval   = 150 * time.Millisecond
	defaultRequestTimeout = 1 * time.Second
	minPollInterval       = time.Millisecond
)

// Config holds configuration options for a Gate.
type Config struct {
	Timeout        time.Duration // Used as given; zero or negative fails without probing (see DefaultTimeout)
	PollInterval   time.Duration // Optional, defaults to 150ms
	RequestTimeout time.Duration // Optional, for the default HTTPProber, defaults to 1s
	Prober         Prober        // Optional, defaults to HTTPProber
	Logger         *slog.Logger  // Optional, defaults to slog.Default()
}

// Gate blocks until the backend answers its health endpoint or the timeout passes.
type Gate struct {
	prober       Prober
	timeout      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewGate creates a Gate, filling unset fields other than Timeout with defaults.
func NewGate(config Config) *Gate {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := config.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}
	prober := config.Prober
	if prober == nil {
		requestTimeout := config.RequestTimeout
		if requestTimeout == 0 {
			requestTimeout = defaultRequestTimeout
		}
		prober = NewHTTPProber(requestTimeout, logger)
	}
	return &Gate{
		prober:       prober,
		timeout:      config.Timeout,
		pollInterval: interval,
		logger:       logger.With("component", "Gate"),
	}
}

// Timeout returns the configured deadline for Wait.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// Wait polls url until it reports ready or the gate's timeout elapses.
func (g *Gate) Wait(ctx context.Context, url string) bool {
	g.logger.Info("waiting for backend health", "url", url, "timeout", g.timeout, "interval", g.pollInterval)
	start := time.Now()
	ok, attempts := poll(ctx, g.prober, url, g.timeout, g.pollInterval)
	elapsed := time.Since(start).Round(time.Millisecond)
	if ok {
		g.logger.Info("backend healthy", "url", url, "attempts", attempts, "elapsed", elapsed)
	} else {
		g.logger.Warn("backend health check failed", "url", url, "attempts", attempts, "elapsed", elapsed, "cancelled", ctx.Err() != nil)
	}
	return ok
}

// WaitAsync runs Wait on its own goroutine. The result is delivered on a channel with room
// for it, so the goroutine finishes even if nobody reads.
func (g *Gate) WaitAsync(ctx context.Context, url string) <-chan bool {
	result := make(chan bool, 1)
	go func() {
		result <- g.Wait(ctx, url)
	}()
	return result
}

// WaitForHealth probes url every interval until one probe succeeds (true) or timeout
// elapses (false). A non-positive timeout returns false without probing. Cancelling ctx
// ends the wait with false.
func WaitForHealth(ctx context.Context, prober Prober, url string, timeout, interval time.Duration) bool {
	ok, _ := poll(ctx, prober, url, timeout, interval)
	return ok
}

func poll(ctx context.Context, prober Prober, url string, timeout, interval time.Duration) (bool, int) {
	if timeout <= 0 {
		return false, 0
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}

	deadline := time.Now().Add(timeout)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	attempts := 0
	for {
		attempts++
		if prober.Probe(probeCtx, url) {
			return true, attempts
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, attempts
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return false, attempts
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			return false, attempts
		}
	}
}
