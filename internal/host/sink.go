package host

import (
	"log/slog"

	"github.com/OCAP2/mapview/internal/engine"
)

// Locator is the stream location providers feed.
type Locator interface {
	Update(engine.Fix) error
	Fail(code int, message string) error
}

// LocationSink posts provider output onto the loop.
type LocationSink struct {
	loop    *Loop
	locator Locator
	logger  *slog.Logger
}

// NewLocationSink binds a provider sink to loc through loop.
func NewLocationSink(loop *Loop, loc Locator, logger *slog.Logger) *LocationSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationSink{loop: loop, locator: loc, logger: logger}
}

// Fix implements gps.Sink.
func (s *LocationSink) Fix(f engine.Fix) {
	err := s.loop.Do(func() {
		if err := s.locator.Update(f); err != nil {
			s.logger.Error("applying fix failed", "error", err)
		}
	})
	if err != nil {
		s.logger.Debug("fix dropped", "error", err)
	}
}

// Error implements gps.Sink.
func (s *LocationSink) Error(code int, message string) {
	err := s.loop.Do(func() {
		if err := s.locator.Fail(code, message); err != nil {
			s.logger.Error("applying position error failed", "error", err)
		}
	})
	if err != nil {
		s.logger.Debug("position error dropped", "error", err)
	}
}
