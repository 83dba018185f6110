package target

import (
	"strings"
	"sync"
	"time"
)

// EndpointStatus represents the observed health of the target endpoint.
type EndpointStatus int

const (
	StatusHealthy   EndpointStatus = iota // Endpoint is responding normally
	StatusDegraded                        // Endpoint is slow but working
	StatusThrottled                       // Endpoint is rate limiting us
)

func (s EndpointStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for the endpoint.
type MonitorStats struct {
	Status           EndpointStatus
	AverageLatency   time.Duration
	ThrottleCount429 int
	RequestsLastHour int
}

// EndpointMonitor tracks target latency and throttling for operator
// visibility. It is purely informational: it never touches the circuit
// breaker, which has a single writer in the worker loop.
type EndpointMonitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	status429Count     int
	throttlePatterns   []string
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
}

// NewEndpointMonitor creates a monitor with default settings.
func NewEndpointMonitor() *EndpointMonitor {
	return &EndpointMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"quota exceeded",
			"slow down",
		},
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
	}
}

// RecordRequest records a successful request with its latency.
func (m *EndpointMonitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)
	cutoff := now.Add(-m.windowDuration)
	filtered := m.requestTimestamps[:0]
	for _, t := range m.requestTimestamps {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	m.requestTimestamps = filtered
}

// RecordThrottle records a rate limiting response.
func (m *EndpointMonitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = time.Now()

	if statusCode == 429 {
		m.status429Count++
		m.retryAfterDuration = 60 * time.Second
		if retryAfter != "" {
			if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
				m.retryAfterDuration = d
			}
		}
	}
}

// DetectThrottlePattern checks if a response body hints at throttling.
func (m *EndpointMonitor) DetectThrottlePattern(message string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowerMsg := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// Status returns the current observed endpoint status.
func (m *EndpointMonitor) Status() EndpointStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.status429Count > 0 && time.Since(m.lastThrottleTime) < m.retryAfterDuration {
		return StatusThrottled
	}

	if len(m.recentLatencies) > 10 {
		var total time.Duration
		for _, lat := range m.recentLatencies {
			total += lat
		}
		if total/time.Duration(len(m.recentLatencies)) > m.slowResponseThreshold {
			return StatusDegraded
		}
	}

	return StatusHealthy
}

// AverageLatency returns the average latency of recent requests.
func (m *EndpointMonitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// RetryAfter returns remaining time before the endpoint expects traffic again.
func (m *EndpointMonitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.retryAfterDuration > 0 {
		remaining := m.retryAfterDuration - time.Since(m.lastThrottleTime)
		if remaining > 0 {
			return remaining
		}
	}
	return 0
}

// Stats returns current monitoring statistics.
func (m *EndpointMonitor) Stats() MonitorStats {
	status := m.Status()
	avgLatency := m.AverageLatency()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:           status,
		AverageLatency:   avgLatency,
		ThrottleCount429: m.status429Count,
		RequestsLastHour: len(m.requestTimestamps),
	}
}
