// Package mapview is the map service handed to the host shell. It owns the
// surface, view controller, location stream, marker and tracking state, and
// publishes geolocation results through typed emitters.
//
// A Service is not safe for concurrent use; the host runs every call and
// every engine event on one loop.
package mapview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/emitter"
	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/marker"
	"github.com/OCAP2/mapview/internal/tracking"
	"github.com/OCAP2/mapview/internal/view"
	"github.com/OCAP2/mapview/pkg/core"
)

var (
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("map service not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("map service already initialized")
)

// Options is the unified variant configuration of the service.
type Options struct {
	DefaultCenter core.Position
	DefaultZoom   float64
	MinZoom       float64
	MaxZoom       float64
	Projection    int
	ZoomDuration  time.Duration
	TileURL       string

	MarkerStyle               engine.Style
	ShowAccuracy              bool
	VisibilityFollowsTracking bool
	RotateWithHeading         bool

	EmitMoveStart bool

	// ViewQueueSize bounds the queue in front of the view recorder. Settled
	// views beyond it are dropped and counted on the bus unless
	// ViewQueueBlocking is set, in which case the move waits for room.
	ViewQueueSize     int
	ViewQueueBlocking bool
}

// DefaultViewQueueSize is used when Options.ViewQueueSize is not positive.
const DefaultViewQueueSize = 64

// Service is the map-display module.
type Service struct {
	opts   Options
	base   *slog.Logger
	logger *slog.Logger
	en     *engine.Engine

	GeolocationChange   *emitter.Emitter[core.MeasurementResult]
	GeolocationError    *emitter.Emitter[string]
	GeolocationPosition *emitter.Emitter[core.Position]
	MapMoveStart        *emitter.Emitter[struct{}]
	ViewChange          *emitter.Emitter[core.ViewState]

	surface     *engine.Map
	views       *view.Controller
	geolocation *engine.Geolocation
	marker      *marker.Synchronizer
	tracker     *tracking.Tracker

	recorder    dispatcher.Key
	viewChanges atomic.Uint64
}

// New creates an uninitialized service on the given event bus.
func New(bus *dispatcher.Dispatcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:   opts,
		base:   logger,
		logger: logger.With("component", "mapview"),
		en:     engine.New(bus),

		GeolocationChange:   emitter.New[core.MeasurementResult]("geolocationChange"),
		GeolocationError:    emitter.New[string]("geolocationError"),
		GeolocationPosition: emitter.New[core.Position]("geolocationPosition"),
		MapMoveStart:        emitter.New[struct{}]("mapMoveStart"),
		ViewChange:          emitter.New[core.ViewState]("viewChange"),
	}
}

// Init builds the surface inside target. It must be called exactly once.
func (s *Service) Init(target engine.Target, center core.Optional[core.Position], zoom core.Optional[float64]) error {
	if s.surface != nil {
		return ErrAlreadyInitialized
	}

	s.views = view.New(s.en, view.Options{
		DefaultCenter: s.opts.DefaultCenter,
		DefaultZoom:   s.opts.DefaultZoom,
		MinZoom:       s.opts.MinZoom,
		MaxZoom:       s.opts.MaxZoom,
		Projection:    s.opts.Projection,
		ZoomDuration:  s.opts.ZoomDuration,
	})
	v := s.views.SetView(center, zoom)

	s.geolocation = s.en.NewGeolocation(engine.GeolocationOptions{
		Projection:      v.Projection(),
		TrackingOptions: engine.TrackingOptions{EnableHighAccuracy: true},
	})

	s.surface = s.en.NewMap(engine.MapOptions{
		Target: target,
		Layers: []engine.Layer{s.en.NewTileLayer(engine.TileSource{URL: s.opts.TileURL})},
	})
	s.surface.On(engine.EventMoveStart, s.onMoveStart)
	s.surface.On(engine.EventMoveEnd, s.onMoveEnd)
	s.recorder = s.surface.On(engine.EventMoveEnd, s.recordView, s.recorderOptions()...)
	s.views.Attach(s.surface)

	s.marker = marker.New(s.en, s.surface, marker.Options{
		Style:         s.opts.MarkerStyle,
		AccuracyStyle: marker.AccuracyStyle(),
		ShowAccuracy:  s.opts.ShowAccuracy,
	})
	s.tracker = tracking.New(s.geolocation, s.marker, tracking.Emitters{
		Change:   s.GeolocationChange,
		Error:    s.GeolocationError,
		Position: s.GeolocationPosition,
	}, tracking.Options{
		VisibilityFollowsTracking: s.opts.VisibilityFollowsTracking,
		RotateWithHeading:         s.opts.RotateWithHeading,
		Logger:                    s.base,
	})

	size, attached := s.surface.Size()
	s.logger.Info("map initialized",
		"center", v.Center(),
		"zoom", v.Zoom(),
		"projection", v.Projection(),
		"attached", attached,
		"size", size,
	)
	return nil
}

func (s *Service) onMoveStart(dispatcher.Event) error {
	if s.opts.EmitMoveStart {
		s.MapMoveStart.Emit(struct{}{})
	}
	return nil
}

func (s *Service) onMoveEnd(e dispatcher.Event) error {
	if state, ok := e.Payload.(core.ViewState); ok {
		s.ViewChange.Emit(state)
	}
	return nil
}

func (s *Service) recorderOptions() []dispatcher.Option {
	size := s.opts.ViewQueueSize
	if size <= 0 {
		size = DefaultViewQueueSize
	}
	opts := []dispatcher.Option{dispatcher.Buffered(size), dispatcher.Logged()}
	if s.opts.ViewQueueBlocking {
		opts = append(opts, dispatcher.Blocking())
	}
	return opts
}

// recordView runs off the loop behind the bus queue, so it only touches
// atomics.
func (s *Service) recordView(e dispatcher.Event) error {
	if _, ok := e.Payload.(core.ViewState); !ok {
		return fmt.Errorf("unexpected %s payload %T", engine.EventMoveEnd, e.Payload)
	}
	s.viewChanges.Add(1)
	return nil
}

// ViewChanges returns how many settled views the recorder has processed.
// Safe for concurrent use.
func (s *Service) ViewChanges() uint64 {
	return s.viewChanges.Load()
}

// Initialized reports whether Init has run.
func (s *Service) Initialized() bool {
	return s.surface != nil
}

// Resize re-reads the target size after the container changed.
func (s *Service) Resize() error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.surface.UpdateSize()
	return nil
}

// SetView replaces the view; missing values take the configured defaults.
func (s *Service) SetView(center core.Optional[core.Position], zoom core.Optional[float64]) error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.views.SetView(center, zoom)
	return nil
}

// MoveTo re-centers the view.
func (s *Service) MoveTo(pos core.Position) error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.views.MoveTo(pos)
	return nil
}

// ZoomIn animates one zoom level in.
func (s *Service) ZoomIn() error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.views.ZoomIn()
	return nil
}

// ZoomOut animates one zoom level out.
func (s *Service) ZoomOut() error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.views.ZoomOut()
	return nil
}

// Zoom returns the current zoom level.
func (s *Service) Zoom() (float64, error) {
	if s.surface == nil {
		return 0, ErrNotInitialized
	}
	return s.views.Zoom(), nil
}

// View returns the current camera state.
func (s *Service) View() (core.ViewState, error) {
	if s.surface == nil {
		return core.ViewState{}, ErrNotInitialized
	}
	return s.views.State(), nil
}

// Extent returns the visible bounding box.
func (s *Service) Extent() (core.Extent, error) {
	if s.surface == nil {
		return core.Extent{}, ErrNotInitialized
	}
	return s.views.Extent()
}

// ExtentPolygon returns the visible area as a WKT polygon.
func (s *Service) ExtentPolygon() (string, error) {
	if s.surface == nil {
		return "", ErrNotInitialized
	}
	return s.views.ExtentPolygon()
}

// ExtentRing returns the corners of the visible area as [[x,y],...],
// closed and in the same order as ExtentPolygon.
func (s *Service) ExtentRing() ([][]float64, error) {
	extent, err := s.Extent()
	if err != nil {
		return nil, err
	}
	return geo.RingCoordinates(geo.ExtentPolygon(extent)), nil
}

// RenderedLayers returns the ids of the visible layers, bottom first.
func (s *Service) RenderedLayers() []string {
	if s.surface == nil {
		return nil
	}
	layers := s.surface.RenderOrder()
	ids := make([]string, 0, len(layers))
	for _, l := range layers {
		ids = append(ids, l.ID())
	}
	return ids
}

// DroppedEmissions sums the values the output emitters dropped because a
// channel subscriber was full.
func (s *Service) DroppedEmissions() uint64 {
	return s.GeolocationChange.Dropped() +
		s.GeolocationError.Dropped() +
		s.GeolocationPosition.Dropped() +
		s.MapMoveStart.Dropped() +
		s.ViewChange.Dropped()
}

// EnableGeolocation turns tracking on or off.
func (s *Service) EnableGeolocation(on bool) error {
	if s.surface == nil {
		return ErrNotInitialized
	}
	s.tracker.Enable(on)
	return nil
}

// TrackingState returns the tracking snapshot. Before Init tracking is off.
func (s *Service) TrackingState() core.TrackingState {
	if s.tracker == nil {
		return core.TrackingState{}
	}
	return s.tracker.State()
}

// MarkerState returns the marker snapshot.
func (s *Service) MarkerState() core.MarkerState {
	if s.marker == nil {
		return core.MarkerState{}
	}
	return s.marker.State()
}

// Geolocation returns the location stream providers push fixes into,
// or nil before Init.
func (s *Service) Geolocation() *engine.Geolocation {
	return s.geolocation
}

// Close detaches the service from the bus and drops every emitter subscriber.
func (s *Service) Close() {
	if s.tracker != nil {
		for _, k := range s.tracker.Handlers() {
			s.geolocation.Off(k)
		}
	}
	if s.surface != nil {
		s.surface.Off(s.recorder)
	}
	s.GeolocationChange.Close()
	s.GeolocationError.Close()
	s.GeolocationPosition.Close()
	s.MapMoveStart.Close()
	s.ViewChange.Close()
}
