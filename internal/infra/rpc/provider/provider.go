// Package provider implements the transport to the experiment-tracking API.
//
// This package contains:
//   - Provider interface: core abstraction for API endpoints
//   - HTTPProvider: JSON (and protobuf-encoded) queries over HTTP
//   - TransportError: categorized transport failures
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"time"
)

// Operation describes one query against the API.
type Operation struct {
	// Name identifies the operation in logs and metrics (e.g., "query_attribute_definitions").
	Name string

	// Path is appended to the provider's base URL.
	Path string

	// Body is JSON-encoded as the request body.
	Body any

	// Project is the project the query targets. It is used to name the
	// project in ProjectInaccessibleError; it is not sent on the wire.
	Project string

	// Protobuf asks the server for a protobuf-encoded response.
	Protobuf bool
}

// Provider defines the core interface for an API endpoint.
type Provider interface {
	// GetName returns provider identifier
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Execute performs the operation and decodes the response into out.
	Execute(ctx context.Context, op Operation, out any) error

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	// Operations is keyed by Operation.Name.
	Operations map[string]OperationStats
	// InaccessibleProjects were refused on their latest call.
	InaccessibleProjects []string
	MonitorStats         *MonitorStats `json:"monitor_stats,omitempty"`
}
