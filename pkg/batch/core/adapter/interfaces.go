// Package adapter declares the contracts shared by all external resource adapters
// (databases, object storage).
package adapter

import "context"

// ResourceConnection is an open handle to an external resource.
type ResourceConnection interface {
	Close() error
	// Type is the implementation kind, e.g. "sqlite" or "gcs".
	Type() string
	// Name is the configuration key the connection was created from.
	Name() string
}

// ResourceConnectionResolver returns a healthy connection for a configured name.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
