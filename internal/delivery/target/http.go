package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Config holds target service connection settings.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	DeliverPath string        `yaml:"deliver_path"`
	HealthPath  string        `yaml:"health_path"`
	AuthToken   string        `yaml:"auth_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.DeliverPath == "" {
		c.DeliverPath = "/metadata"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// HTTPClient delivers job payloads over HTTP and probes target health.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client

	Monitor *EndpointMonitor
}

// NewHTTPClient creates a client for the configured target endpoint.
func NewHTTPClient(cfg Config) *HTTPClient {
	cfg = cfg.WithDefaults()
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Monitor: NewEndpointMonitor(),
	}
}

// Deliver posts the job payload to the target. Responses are mapped onto the
// transient/permanent taxonomy; the worker loop never sees raw HTTP errors.
func (c *HTTPClient) Deliver(ctx context.Context, job *domain.Job) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.DeliverPath, bytes.NewReader(job.Payload))
	if err != nil {
		return NewPermanent("invalid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Key", job.JobKey)
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewTransient(domain.ErrorClassTimeout, err)
		}
		return NewTransient(domain.ErrorClassNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.Monitor.RecordRequest(time.Since(start))
		return nil

	case resp.StatusCode == http.StatusNotFound:
		// Target has not indexed the object yet; eventual-consistency lag,
		// retried on the long window.
		return NewTransient(domain.ErrorClassNotIndexed,
			fmt.Errorf("target has no record for job key %s", job.JobKey))

	case resp.StatusCode == http.StatusTooManyRequests:
		c.Monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
		return NewTransient(domain.ErrorClassRateLimited,
			fmt.Errorf("rate limited (429): %s", body))

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return NewPermanent("auth failure", fmt.Errorf("http %d: %s", resp.StatusCode, body))

	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return NewPermanent("malformed payload", fmt.Errorf("http %d: %s", resp.StatusCode, body))

	case resp.StatusCode >= 500:
		if c.Monitor.DetectThrottlePattern(string(body)) {
			return NewTransient(domain.ErrorClassRateLimited,
				fmt.Errorf("throttle detected: %s", body))
		}
		return NewTransient(domain.ErrorClassServer,
			fmt.Errorf("http %d: %s", resp.StatusCode, body))

	default:
		return NewTransient(domain.ErrorClassUnclassified,
			fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}
}

// Probe performs one bounded health check. It is read-only with respect to
// breaker state; feeding the result into the breaker is the recovery
// detector's job.
func (c *HTTPClient) Probe(ctx context.Context) (bool, time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.HealthPath, nil)
	if err != nil {
		return false, 0, fmt.Errorf("create probe request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency, fmt.Errorf("health probe: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode == http.StatusOK, latency, nil
}
