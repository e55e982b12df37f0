// Package cursor drives paginated remote queries until they are exhausted.
//
// # Purpose
//
// Every query flow of the fetcher (attribute definitions, attribute values,
// series) returns results one page at a time. The server hands back an
// opaque continuation token with each page; the cursor turns a
// "fetch one page" function plus a "compute the next params" function into a
// lazy sequence of pages.
//
// # Key Features
//
// Single request in flight - the next page is requested only after the
// consumer has accepted the current one. Stopping the range loop stops
// fetching; nothing is left running.
//
// State Machine - a cursor moves through a fixed set of states:
//
//	INIT → FETCHING → FETCHING ... → EXHAUSTED
//	INIT → FETCHING → FAILED
//
// Normalization - before the first request the next-params function is called
// once with a nil response so it can strip stale continuation tokens. That call
// never ends the sequence.
//
// Partial results - a failure ends the sequence but pages already yielded
// stay valid.
//
// # Quick Start
//
//	seq := cursor.Pages(ctx, fetch, process, next, params)
//	for page, err := range seq {
//	    if err != nil {
//	        return err
//	    }
//	    use(page.Items)
//	}
//
// # Package Structure
//
//   - pager.go   - Cursor implementation, Pages/Drain/Concat helpers
//   - state.go   - State machine definitions and valid transitions
//   - metrics.go - Page statistics (pages, items, throughput, state history)
package cursor

import (
	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// =============================================================================
// Re-exported types from domain package
// =============================================================================

// Page is one bounded chunk of results.
type Page[T any] = domain.Page[T]

// State constants re-exported for convenience.
const (
	StateInit      = domain.CursorStateInit
	StateFetching  = domain.CursorStateFetching
	StateExhausted = domain.CursorStateExhausted
	StateFailed    = domain.CursorStateFailed
)

// =============================================================================
// Constructor functions
// =============================================================================

// NewCursor creates a cursor positioned before the first page.
func NewCursor[P, R, T any](
	fetch FetchFunc[P, R],
	process ProcessFunc[R, T],
	next NextParamsFunc[P, R],
	initial P,
) *Cursor[P, R, T] {
	return &Cursor[P, R, T]{
		fetch:   fetch,
		process: process,
		next:    next,
		params:  initial,
		state:   StateInit,
		metrics: NewMetricsCollector(defaultWindowSize),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		pageTimes:   make([]pageRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}
