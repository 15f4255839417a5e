package server

import "context"

// Server is a long-running listener with graceful shutdown.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
