package engine

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/mapview/pkg/core"
)

// DefaultTileURL is the OpenStreetMap tile template.
const DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// Layer is anything the surface stacks and draws.
type Layer interface {
	ID() string
	ZIndex() int
	SetZIndex(int)
	Visible() bool
	SetVisible(bool)
}

type baseLayer struct {
	id      string
	zIndex  int
	visible bool
}

func (l *baseLayer) ID() string          { return l.id }
func (l *baseLayer) ZIndex() int         { return l.zIndex }
func (l *baseLayer) SetZIndex(z int)     { l.zIndex = z }
func (l *baseLayer) Visible() bool       { return l.visible }
func (l *baseLayer) SetVisible(vis bool) { l.visible = vis }

// TileSource describes where raster tiles come from. Nothing is fetched.
type TileSource struct {
	URL string
}

// TileLayer is a raster base layer.
type TileLayer struct {
	baseLayer
	source TileSource
}

// NewTileLayer creates a visible tile layer. An empty URL means OSM.
func (en *Engine) NewTileLayer(source TileSource) *TileLayer {
	if source.URL == "" {
		source.URL = DefaultTileURL
	}
	return &TileLayer{baseLayer: baseLayer{id: en.nextID("tile"), visible: true}, source: source}
}

// Source returns the tile source.
func (l *TileLayer) Source() TileSource { return l.source }

// VectorLayer draws the features of a VectorSource.
type VectorLayer struct {
	baseLayer
	source *VectorSource
}

// NewVectorLayer creates a visible vector layer.
func (en *Engine) NewVectorLayer(source *VectorSource) *VectorLayer {
	return &VectorLayer{baseLayer: baseLayer{id: en.nextID("vector"), visible: true}, source: source}
}

// Source returns the layer's source.
func (l *VectorLayer) Source() *VectorSource { return l.source }

// VectorSource is a collection of features.
type VectorSource struct {
	features []*Feature
}

// NewVectorSource creates a source holding the given features.
func NewVectorSource(features ...*Feature) *VectorSource {
	return &VectorSource{features: append([]*Feature(nil), features...)}
}

// AddFeature appends a feature.
func (s *VectorSource) AddFeature(f *Feature) { s.features = append(s.features, f) }

// Features returns the features in insertion order.
func (s *VectorSource) Features() []*Feature { return append([]*Feature(nil), s.features...) }

// Len returns the number of features.
func (s *VectorSource) Len() int { return len(s.features) }

// Clear removes all features.
func (s *VectorSource) Clear() { s.features = nil }

// StyleKind selects how a point feature is drawn.
type StyleKind string

const (
	StyleCircle StyleKind = "circle"
	StyleIcon   StyleKind = "icon"
)

// Style is the visual description of a feature.
type Style struct {
	Kind        StyleKind
	Radius      float64
	FillColor   string
	StrokeColor string
	StrokeWidth float64
	IconSrc     string
	IconScale   float64
	Rotation    float64
}

// Feature is a geometry with a style.
type Feature struct {
	geometry core.Optional[geom.Geometry]
	style    Style
}

// NewFeature creates a feature without geometry.
func NewFeature() *Feature { return &Feature{} }

// SetGeometry replaces the geometry.
func (f *Feature) SetGeometry(g geom.Geometry) { f.geometry = core.Some(g) }

// ClearGeometry removes the geometry.
func (f *Feature) ClearGeometry() { f.geometry = core.None[geom.Geometry]() }

// Geometry returns the geometry, if any.
func (f *Feature) Geometry() core.Optional[geom.Geometry] { return f.geometry }

// SetStyle replaces the style.
func (f *Feature) SetStyle(s Style) { f.style = s }

// Style returns the style.
func (f *Feature) Style() Style { return f.style }
