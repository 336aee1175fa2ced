// Package marker owns the single location marker drawn over the map.
package marker

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/pkg/core"
)

// Surface is the part of the map the marker attaches its overlay to.
type Surface interface {
	AddLayer(engine.Layer)
	RemoveLayer(engine.Layer) bool
	Layers() []engine.Layer
}

// Options configures the marker look.
type Options struct {
	Style         engine.Style
	AccuracyStyle engine.Style
	ShowAccuracy  bool
}

// CircleStyle is a small dot with a contrasting outline.
func CircleStyle() engine.Style {
	return engine.Style{
		Kind:        engine.StyleCircle,
		Radius:      6,
		FillColor:   "#3399CC",
		StrokeColor: "#fff",
		StrokeWidth: 2,
	}
}

// IconStyle draws an image centred on the position.
func IconStyle(src string) engine.Style {
	return engine.Style{
		Kind:      engine.StyleIcon,
		IconSrc:   src,
		IconScale: 1,
	}
}

// AccuracyStyle is the translucent fill of the accuracy circle.
func AccuracyStyle() engine.Style {
	return engine.Style{
		FillColor:   "rgba(51, 153, 204, 0.2)",
		StrokeColor: "#3399CC",
		StrokeWidth: 1,
	}
}

// Synchronizer keeps one marker in step with the location stream.
// Every operation except Create is a no-op until the marker exists.
type Synchronizer struct {
	en      *engine.Engine
	surface Surface
	opts    Options

	layer    *engine.VectorLayer
	source   *engine.VectorSource
	point    *engine.Feature
	accuracy *engine.Feature

	location core.Optional[geom.Point]
	rotation float64
}

// New creates a synchronizer. Nothing is attached until Create.
func New(en *engine.Engine, surface Surface, opts Options) *Synchronizer {
	if opts.Style.Kind == "" {
		opts.Style = CircleStyle()
	}
	return &Synchronizer{en: en, surface: surface, opts: opts}
}

// Exists reports whether the marker is attached.
func (s *Synchronizer) Exists() bool {
	return s.layer != nil
}

// Create attaches the overlay above every existing layer.
func (s *Synchronizer) Create(visible bool) {
	if s.Exists() {
		return
	}

	s.point = engine.NewFeature()
	s.point.SetStyle(s.opts.Style)
	s.source = engine.NewVectorSource(s.point)
	if s.opts.ShowAccuracy {
		s.accuracy = engine.NewFeature()
		s.accuracy.SetStyle(s.opts.AccuracyStyle)
		s.source.AddFeature(s.accuracy)
	}

	s.layer = s.en.NewVectorLayer(s.source)
	s.layer.SetZIndex(len(s.surface.Layers()) + 1)
	s.layer.SetVisible(visible)
	s.surface.AddLayer(s.layer)

	s.location = core.None[geom.Point]()
	s.rotation = 0
}

// Reposition moves the marker. Rotation only shows on icon markers.
func (s *Synchronizer) Reposition(pos core.Position, rotation float64) {
	if !s.Exists() {
		return
	}
	pt := geo.PointFromPosition(pos)
	s.location = core.Some(pt)
	s.rotation = rotation
	s.point.SetGeometry(pt.AsGeometry())

	style := s.point.Style()
	style.Rotation = rotation
	s.point.SetStyle(style)
}

// SetAccuracy replaces the accuracy circle. An absent polygon clears it.
func (s *Synchronizer) SetAccuracy(poly core.Optional[geom.Polygon]) {
	if !s.Exists() || s.accuracy == nil {
		return
	}
	if p, ok := poly.Get(); ok {
		s.accuracy.SetGeometry(p.AsGeometry())
		return
	}
	s.accuracy.ClearGeometry()
}

// SetVisible shows or hides the overlay.
func (s *Synchronizer) SetVisible(visible bool) {
	if !s.Exists() {
		return
	}
	s.layer.SetVisible(visible)
}

// Remove clears the features and detaches the overlay.
func (s *Synchronizer) Remove() {
	if !s.Exists() {
		return
	}
	s.source.Clear()
	s.surface.RemoveLayer(s.layer)

	s.layer = nil
	s.source = nil
	s.point = nil
	s.accuracy = nil
	s.location = core.None[geom.Point]()
	s.rotation = 0
}

// State returns a snapshot. An absent marker reports no geometry and hidden.
func (s *Synchronizer) State() core.MarkerState {
	if !s.Exists() {
		return core.MarkerState{}
	}
	geometry := core.None[core.Position]()
	if pt, ok := s.location.Get(); ok {
		if pos, ok := geo.PositionFromPoint(pt); ok {
			geometry = core.Some(pos)
		}
	}
	return core.MarkerState{
		Geometry:        geometry,
		RotationRadians: s.rotation,
		Visible:         s.layer.Visible(),
	}
}

// Layer returns the overlay, or nil when the marker does not exist.
func (s *Synchronizer) Layer() *engine.VectorLayer {
	return s.layer
}
