// Package gps contains location providers that feed the engine's
// geolocation stream: a gpsd client and a deterministic simulator.
package gps

import (
	"context"

	"github.com/OCAP2/mapview/internal/engine"
)

// Sink receives provider output. Providers call it from their own goroutine;
// implementations hand the values over to the host loop.
type Sink interface {
	Fix(engine.Fix)
	Error(code int, message string)
}

// Provider produces fixes until ctx is cancelled.
type Provider interface {
	Run(ctx context.Context, sink Sink) error
}
