package provider

import (
	"testing"
	"time"
)

func TestMonitorRequestCount(t *testing.T) {
	m := NewProviderMonitor()

	m.RecordRequest(100 * time.Millisecond)

	stats := m.GetStats()
	if stats.RequestsLast1Hour != 1 {
		t.Errorf("Expected 1 request, got %d", stats.RequestsLast1Hour)
	}

	for i := 0; i < 100; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats = m.GetStats()
	if stats.RequestsLast1Hour != 101 {
		t.Errorf("Expected 101 requests, got %d", stats.RequestsLast1Hour)
	}
	if stats.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", stats.Status)
	}
}

func TestMonitorThrottle(t *testing.T) {
	m := NewProviderMonitor()

	if got := m.RecordThrottle("2"); got != 2*time.Second {
		t.Errorf("Expected 2s retry-after, got %v", got)
	}
	if m.CheckProviderStatus() != StatusThrottled {
		t.Errorf("Expected throttled status, got %s", m.CheckProviderStatus())
	}
	if m.GetRetryAfter() <= 0 {
		t.Error("Expected positive retry-after")
	}
}

func TestMonitorDegradedOnSlowResponses(t *testing.T) {
	m := NewProviderMonitor()
	for i := 0; i < 20; i++ {
		m.RecordRequest(10 * time.Second)
	}
	if m.CheckProviderStatus() != StatusDegraded {
		t.Errorf("Expected degraded status, got %s", m.CheckProviderStatus())
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"0", 0},
		{"5", 5 * time.Second},
		{" 3 ", 3 * time.Second},
		{"", time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", time.Second},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDetectThrottlePattern(t *testing.T) {
	m := NewProviderMonitor()
	if !m.DetectThrottlePattern("Rate limit exceeded for workspace") {
		t.Error("Expected throttle pattern to match")
	}
	if m.DetectThrottlePattern("project not found") {
		t.Error("Expected no throttle pattern")
	}
}
