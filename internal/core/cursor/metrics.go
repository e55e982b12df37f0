package cursor

import (
	"time"
)

const defaultWindowSize = 100

// pageRecord holds timing data for a fetched page.
type pageRecord struct {
	Items     int
	FetchedAt time.Time
	Latency   time.Duration
}

// Metrics holds cursor performance data.
type Metrics struct {
	PagesFetched   int
	ItemsYielded   int
	PagesPerSecond float64
	AverageLatency time.Duration
	StateHistory   []Transition
}

// MetricsCollector tracks cursor performance over time.
type MetricsCollector struct {
	windowSize   int          // number of pages to track
	pageTimes    []pageRecord // ring buffer of page records
	transitions  []Transition // recent state changes
	pagesFetched int
	itemsYielded int
}

// RecordPage records timing for a fetched page.
func (mc *MetricsCollector) RecordPage(items int, latency time.Duration, fetchedAt time.Time) {
	record := pageRecord{
		Items:     items,
		FetchedAt: fetchedAt,
		Latency:   latency,
	}

	mc.pagesFetched++
	mc.itemsYielded += items

	if len(mc.pageTimes) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.pageTimes, mc.pageTimes[1:])
		mc.pageTimes[len(mc.pageTimes)-1] = record
	} else {
		mc.pageTimes = append(mc.pageTimes, record)
	}
}

// RecordTransition records a state transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		PagesFetched: mc.pagesFetched,
		ItemsYielded: mc.itemsYielded,
		StateHistory: make([]Transition, len(mc.transitions)),
	}
	copy(m.StateHistory, mc.transitions)

	if len(mc.pageTimes) > 0 {
		var total time.Duration
		for _, r := range mc.pageTimes {
			total += r.Latency
		}
		m.AverageLatency = total / time.Duration(len(mc.pageTimes))
	}

	if len(mc.pageTimes) >= 2 {
		first := mc.pageTimes[0]
		last := mc.pageTimes[len(mc.pageTimes)-1]
		duration := last.FetchedAt.Sub(first.FetchedAt)

		if duration > 0 {
			m.PagesPerSecond = float64(len(mc.pageTimes)-1) / duration.Seconds()
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.pageTimes = mc.pageTimes[:0]
	mc.transitions = mc.transitions[:0]
	mc.pagesFetched = 0
	mc.itemsYielded = 0
}
