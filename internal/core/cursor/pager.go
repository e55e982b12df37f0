package cursor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"
)

// FetchFunc performs one remote request.
type FetchFunc[P, R any] func(ctx context.Context, params P) (R, error)

// ProcessFunc transforms a raw response into a page of items.
type ProcessFunc[R, T any] func(raw R) (Page[T], error)

// NextParamsFunc computes the params of the next request from the last
// response. It is called once with a nil response before the first request to
// normalize params; the boolean result of that call is ignored. Afterwards,
// returning false ends the sequence.
type NextParamsFunc[P, R any] func(params P, last *R) (P, bool)

// Cursor is an explicit state machine over a paginated query.
// A Cursor is not safe for concurrent use.
type Cursor[P, R, T any] struct {
	fetch   FetchFunc[P, R]
	process ProcessFunc[R, T]
	next    NextParamsFunc[P, R]

	params  P
	state   State
	page    Page[T]
	err     error
	hasMore bool

	metrics *MetricsCollector
}

// Next fetches the next page. It returns false once the cursor is exhausted
// or has failed; Err distinguishes the two.
func (c *Cursor[P, R, T]) Next(ctx context.Context) bool {
	switch c.state {
	case StateExhausted, StateFailed:
		return false
	case StateInit:
		if c.next != nil {
			c.params, _ = c.next(c.params, nil)
		}
		c.transition(StateFetching, "first request")
	default:
		if !c.hasMore {
			c.transition(StateExhausted, "no continuation")
			return false
		}
	}

	if err := ctx.Err(); err != nil {
		c.fail(err)
		return false
	}

	start := time.Now()
	raw, err := c.fetch(ctx, c.params)
	if err != nil {
		c.fail(err)
		return false
	}

	page, err := c.process(raw)
	if err != nil {
		c.fail(fmt.Errorf("process page: %w", err))
		return false
	}
	c.page = page
	c.metrics.RecordPage(len(page.Items), time.Since(start), time.Now())

	if c.next == nil {
		c.hasMore = false
	} else {
		c.params, c.hasMore = c.next(c.params, &raw)
	}
	return true
}

// Page returns the page fetched by the last successful call to Next.
func (c *Cursor[P, R, T]) Page() Page[T] {
	return c.page
}

// Err returns the error that failed the cursor, if any.
func (c *Cursor[P, R, T]) Err() error {
	return c.err
}

// State returns the current state.
func (c *Cursor[P, R, T]) State() State {
	return c.state
}

// Stop marks the cursor exhausted without issuing further requests.
func (c *Cursor[P, R, T]) Stop() {
	if !IsTerminal(c.state) {
		c.transition(StateExhausted, "stopped by consumer")
	}
}

// Metrics returns page statistics for this cursor.
func (c *Cursor[P, R, T]) Metrics() Metrics {
	return c.metrics.GetMetrics()
}

func (c *Cursor[P, R, T]) fail(err error) {
	c.err = err
	c.page = Page[T]{}
	c.transition(StateFailed, err.Error())
}

func (c *Cursor[P, R, T]) transition(to State, reason string) {
	if c.state == to {
		return
	}
	t := NewTransition(c.state, to, reason)
	if !t.IsValid() {
		// Programming error in the cursor itself; surface it instead of continuing.
		c.err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
		c.state = StateFailed
		return
	}
	c.metrics.RecordTransition(t)
	c.state = to
	slog.Debug("Cursor transition", "from", t.From, "state", StateDescription(to), "reason", reason)
}

// Pages returns a lazy sequence of pages. Each range over the sequence starts
// a fresh cursor from initial. A failure is yielded once as (empty page, err)
// and ends the sequence.
func Pages[P, R, T any](
	ctx context.Context,
	fetch FetchFunc[P, R],
	process ProcessFunc[R, T],
	next NextParamsFunc[P, R],
	initial P,
) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		c := NewCursor(fetch, process, next, initial)
		for c.Next(ctx) {
			if !yield(c.Page(), nil) {
				c.Stop()
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Page[T]{}, err)
		}
	}
}

// Empty returns a sequence that yields nothing.
func Empty[T any]() iter.Seq2[Page[T], error] {
	return func(func(Page[T], error) bool) {}
}

// Fail returns a sequence that yields err once.
func Fail[T any](err error) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		yield(Page[T]{}, err)
	}
}

// Concat chains sequences lazily. A sequence is not started until the
// previous one has finished; the first error ends the whole chain.
func Concat[T any](seqs ...iter.Seq2[Page[T], error]) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		for _, seq := range seqs {
			for page, err := range seq {
				if !yield(page, err) || err != nil {
					return
				}
			}
		}
	}
}

// Drain collects all items of a sequence. Items yielded before a failure are
// returned alongside the error.
func Drain[T any](seq iter.Seq2[Page[T], error]) ([]T, error) {
	var items []T
	for page, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
