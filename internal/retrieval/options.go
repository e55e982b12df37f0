// Package retrieval implements the paginated query flows against the
// leaderboard API: runs, attribute definitions, attribute values,
// string/file/histogram series and float metrics. Every flow returns a lazy
// iter.Seq2 driven by the cursor package; nothing is fetched until the
// caller ranges over it.
package retrieval

import (
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
)

const (
	DefaultDefinitionsBatchSize = 10_000
	DefaultValuesBatchSize      = 10_000
	DefaultSeriesBatchSize      = 1_000
	DefaultRunsBatchSize        = 10_000
	DefaultRunIDChunkSize       = 10_000
	DefaultParallelism          = 4
)

// Querier is the transport the flows depend on.
type Querier = rpc.Querier

// Options controls request sizing. Zero fields take the defaults above.
type Options struct {
	DefinitionsBatchSize int
	ValuesBatchSize      int
	// SeriesBatchSize caps the number of series requests per call.
	SeriesBatchSize int
	RunsBatchSize   int
	RunIDChunkSize  int
	Parallelism     int
}

// DefaultOptions returns options with every field set to its default.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.DefinitionsBatchSize <= 0 {
		o.DefinitionsBatchSize = DefaultDefinitionsBatchSize
	}
	if o.ValuesBatchSize <= 0 {
		o.ValuesBatchSize = DefaultValuesBatchSize
	}
	if o.SeriesBatchSize <= 0 {
		o.SeriesBatchSize = DefaultSeriesBatchSize
	}
	if o.RunsBatchSize <= 0 {
		o.RunsBatchSize = DefaultRunsBatchSize
	}
	if o.RunIDChunkSize <= 0 {
		o.RunIDChunkSize = DefaultRunIDChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	return o
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
