// Package tracking is the geolocation on/off state machine. It listens to
// the location stream for the whole service lifetime and only acts on events
// while tracking is enabled.
package tracking

import (
	"fmt"
	"log/slog"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/emitter"
	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/internal/measure"
	"github.com/OCAP2/mapview/pkg/core"
)

// Stream is the live location source.
type Stream interface {
	SetTracking(bool)
	Position() core.Optional[core.Position]
	Accuracy() core.Optional[float64]
	Altitude() core.Optional[float64]
	AltitudeAccuracy() core.Optional[float64]
	Heading() core.Optional[float64]
	Speed() core.Optional[float64]
	AccuracyGeometry() core.Optional[geom.Polygon]
	On(eventType string, fn dispatcher.HandlerFunc, opts ...dispatcher.Option) dispatcher.Key
}

// Marker is what the tracker drives on screen.
type Marker interface {
	Create(visible bool)
	Reposition(pos core.Position, rotation float64)
	SetVisible(visible bool)
	SetAccuracy(poly core.Optional[geom.Polygon])
}

// Emitters are the host-facing outputs.
type Emitters struct {
	Change   *emitter.Emitter[core.MeasurementResult]
	Error    *emitter.Emitter[string]
	Position *emitter.Emitter[core.Position]
}

// Options select the tracking variant.
type Options struct {
	// VisibilityFollowsTracking hides the marker on disable and shows it on
	// enable. When false the marker is created visible and left alone.
	VisibilityFollowsTracking bool
	// RotateWithHeading rotates the marker by the stream heading.
	RotateWithHeading bool
	Logger            *slog.Logger
}

// Tracker owns the TrackingState.
type Tracker struct {
	stream Stream
	marker Marker
	out    Emitters
	opts   Options
	logger *slog.Logger

	state core.TrackingState
	keys  []dispatcher.Key
}

// New creates a disabled tracker and registers its stream handlers.
func New(stream Stream, marker Marker, out Emitters, opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		stream: stream,
		marker: marker,
		out:    out,
		opts:   opts,
		logger: logger.With("component", "tracking"),
	}
	t.keys = []dispatcher.Key{
		stream.On(engine.EventChange, t.onChange, dispatcher.Logged()),
		stream.On(engine.EventChangePosition, t.onPosition, dispatcher.Logged()),
		stream.On(engine.EventChangeAccuracyGeometry, t.onAccuracyGeometry, dispatcher.Logged()),
		stream.On(engine.EventError, t.onError, dispatcher.Logged()),
	}
	return t
}

// Enable switches tracking. The first enable creates the marker.
func (t *Tracker) Enable(on bool) {
	if on == t.state.Enabled {
		return
	}
	t.state.Enabled = on

	if on {
		t.state.LastError = core.None[string]()
		t.marker.Create(true)
		t.stream.SetTracking(true)
		if t.opts.VisibilityFollowsTracking {
			t.marker.SetVisible(true)
		}
		t.logger.Info("geolocation tracking enabled")
		return
	}

	t.stream.SetTracking(false)
	if t.opts.VisibilityFollowsTracking {
		t.marker.SetVisible(false)
	}
	t.logger.Info("geolocation tracking disabled")
}

// Enabled reports whether tracking is on.
func (t *Tracker) Enabled() bool {
	return t.state.Enabled
}

// State returns a snapshot of the tracking state.
func (t *Tracker) State() core.TrackingState {
	return t.state
}

// Handlers returns the keys of the stream handlers registered by New, so the
// owner can detach them.
func (t *Tracker) Handlers() []dispatcher.Key {
	return append([]dispatcher.Key(nil), t.keys...)
}

func (t *Tracker) onChange(dispatcher.Event) error {
	if !t.state.Enabled {
		return nil
	}
	t.out.Change.Emit(measure.Format(t.sample()))
	return nil
}

func (t *Tracker) onPosition(dispatcher.Event) error {
	if !t.state.Enabled {
		return nil
	}
	pos, ok := t.stream.Position().Get()
	if !ok {
		return nil
	}
	rotation := 0.0
	if t.opts.RotateWithHeading {
		rotation = t.stream.Heading().OrElse(0)
	}
	t.marker.Reposition(pos, rotation)
	t.out.Position.Emit(pos)
	return nil
}

func (t *Tracker) onAccuracyGeometry(dispatcher.Event) error {
	if !t.state.Enabled {
		return nil
	}
	t.marker.SetAccuracy(t.stream.AccuracyGeometry())
	return nil
}

func (t *Tracker) onError(e dispatcher.Event) error {
	if !t.state.Enabled {
		return nil
	}
	msg := errorMessage(e.Payload)
	t.state.LastError = core.Some(msg)
	t.logger.Warn("geolocation error", "error", msg)
	t.out.Error.Emit(msg)
	return nil
}

func (t *Tracker) sample() core.MeasurementSample {
	return core.MeasurementSample{
		Accuracy:         t.stream.Accuracy(),
		Altitude:         t.stream.Altitude(),
		AltitudeAccuracy: t.stream.AltitudeAccuracy(),
		Heading:          t.stream.Heading(),
		Speed:            t.stream.Speed(),
	}
}

func errorMessage(payload any) string {
	switch p := payload.(type) {
	case error:
		return p.Error()
	case string:
		return p
	default:
		return fmt.Sprint(p)
	}
}
