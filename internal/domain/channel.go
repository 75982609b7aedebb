package domain

import "context"

// Channel is a long-running platform connection.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
