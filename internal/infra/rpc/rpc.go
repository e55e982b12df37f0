// Package rpc provides a resilient client for the experiment-tracking query API.
//
// This package offers robust API connectivity with:
//   - Categorized transport failures (transient, inaccessible, fatal)
//   - Retry with exponential backoff and jitter for transient failures
//   - Client-side rate limiting
//   - An optional response cache keyed by request
//   - Prometheus metrics per operation
//
// # Quick Start
//
//	import "github.com/paulpham157/neptune-fetcher/internal/infra/rpc"
//
//	p := rpc.NewHTTPProvider(rpc.HTTPConfig{BaseURL: apiURL, Token: token})
//	client := rpc.NewClient(p, rpc.ClientConfig{Retry: rpc.DefaultRetryConfig, RateLimit: 20, Burst: 5})
//
//	var out response
//	err := client.Query(ctx, rpc.Operation{Name: "query", Path: "/api/...", Body: body}, &out)
//
// # Caching
//
//	cached := rpc.NewCachingQuerier(client, pageCache, rpc.CacheConfig{TTL: time.Hour, Prefix: "fetcher"})
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, monitoring, transport errors)
//   - routing/  - Error classification and retry logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc/provider"
	"github.com/paulpham157/neptune-fetcher/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Provider is the core interface for API endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider over HTTP.
type HTTPProvider = provider.HTTPProvider

// HTTPConfig configures an HTTPProvider.
type HTTPConfig = provider.HTTPConfig

// Operation describes one query against the API.
type Operation = provider.Operation

// TransportError is a categorized transport failure.
type TransportError = provider.TransportError

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// NewHTTPProvider creates a new HTTP-based provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	return provider.NewHTTPProvider(cfg)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// RetryError is returned once retries are exhausted.
type RetryError = routing.RetryError

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig
