package target

import (
	"testing"
	"time"
)

func TestMonitorStatusHealthyByDefault(t *testing.T) {
	m := NewEndpointMonitor()
	if got := m.Status(); got != StatusHealthy {
		t.Fatalf("status = %s, want healthy", got)
	}
}

func TestMonitorDegradedOnSlowResponses(t *testing.T) {
	m := NewEndpointMonitor()
	for i := 0; i < 20; i++ {
		m.RecordRequest(5 * time.Second)
	}
	if got := m.Status(); got != StatusDegraded {
		t.Fatalf("status = %s, want degraded", got)
	}
}

func TestMonitorThrottledAfter429(t *testing.T) {
	m := NewEndpointMonitor()
	m.RecordThrottle(429, "60")

	if got := m.Status(); got != StatusThrottled {
		t.Fatalf("status = %s, want throttled", got)
	}
	if got := m.RetryAfter(); got <= 0 {
		t.Fatalf("retry after = %v, want positive", got)
	}
}

func TestMonitorLatencyWindowBounded(t *testing.T) {
	m := NewEndpointMonitor()
	for i := 0; i < 150; i++ {
		m.RecordRequest(time.Millisecond)
	}
	if got := len(m.recentLatencies); got != 100 {
		t.Fatalf("latency window = %d, want 100", got)
	}
}

func TestMonitorAverageLatency(t *testing.T) {
	m := NewEndpointMonitor()
	m.RecordRequest(100 * time.Millisecond)
	m.RecordRequest(300 * time.Millisecond)

	if got := m.AverageLatency(); got != 200*time.Millisecond {
		t.Fatalf("average = %v, want 200ms", got)
	}
}

func TestDetectThrottlePattern(t *testing.T) {
	m := NewEndpointMonitor()

	tests := []struct {
		msg  string
		want bool
	}{
		{"Rate Limit Exceeded for client", true},
		{"TOO MANY REQUESTS", true},
		{"quota exceeded, try later", true},
		{"please slow down", true},
		{"internal server error", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.DetectThrottlePattern(tt.msg); got != tt.want {
			t.Errorf("DetectThrottlePattern(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestMonitorStats(t *testing.T) {
	m := NewEndpointMonitor()
	m.RecordRequest(50 * time.Millisecond)
	m.RecordThrottle(429, "")

	stats := m.Stats()
	if stats.RequestsLastHour != 1 {
		t.Fatalf("requests last hour = %d, want 1", stats.RequestsLastHour)
	}
	if stats.ThrottleCount429 != 1 {
		t.Fatalf("429 count = %d, want 1", stats.ThrottleCount429)
	}
}
