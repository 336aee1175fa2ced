package engine

import (
	"errors"
	"math"
	"time"

	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/pkg/core"
)

// ErrInvalidSize is returned when an extent is requested for a non-positive size.
var ErrInvalidSize = errors.New("viewport size must be positive")

// Zoom bounds applied when ViewOptions leaves them unset.
const (
	DefaultMinZoom = 0
	DefaultMaxZoom = 28
)

// ViewOptions configures a new View.
type ViewOptions struct {
	Center     core.Position
	Zoom       float64
	MinZoom    float64
	MaxZoom    float64
	Projection int
}

// Animation describes an animated view change. Unset fields keep their value.
type Animation struct {
	Center   core.Optional[core.Position]
	Zoom     core.Optional[float64]
	Duration time.Duration
}

// View is the camera: a center and a zoom level in one projection.
type View struct {
	observable

	center     core.Position
	zoom       float64
	minZoom    float64
	maxZoom    float64
	projection int

	lastAnimation core.Optional[Animation]
}

// NewView creates a view. A zero projection means EPSG:3857.
func (en *Engine) NewView(opts ViewOptions) *View {
	if opts.Projection == 0 {
		opts.Projection = geo.EPSG3857
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = DefaultMaxZoom
	}
	if opts.MinZoom < 0 || opts.MinZoom > opts.MaxZoom {
		opts.MinZoom = DefaultMinZoom
	}
	v := &View{
		observable: en.observable("view"),
		center:     opts.Center,
		minZoom:    opts.MinZoom,
		maxZoom:    opts.MaxZoom,
		projection: opts.Projection,
	}
	v.zoom = v.constrainZoom(opts.Zoom)
	return v
}

// Center returns the current center.
func (v *View) Center() core.Position { return v.center }

// Zoom returns the current zoom level.
func (v *View) Zoom() float64 { return v.zoom }

// Projection returns the EPSG code of the view.
func (v *View) Projection() int { return v.projection }

// State returns a snapshot of center and zoom.
func (v *View) State() core.ViewState {
	return core.ViewState{Center: v.center, Zoom: v.zoom}
}

// LastAnimation returns the most recent animation request.
func (v *View) LastAnimation() core.Optional[Animation] { return v.lastAnimation }

// SetCenter moves the view.
func (v *View) SetCenter(p core.Position) {
	v.center = p
	v.changed()
}

// SetZoom sets the zoom level, clamped to the view's bounds.
func (v *View) SetZoom(z float64) {
	v.zoom = v.constrainZoom(z)
	v.changed()
}

// Animate applies the animation target. The headless engine has no frame
// loop, so the final state is reached immediately; the request is recorded.
func (v *View) Animate(a Animation) {
	v.lastAnimation = core.Some(a)
	if c, ok := a.Center.Get(); ok {
		v.center = c
	}
	if z, ok := a.Zoom.Get(); ok {
		v.zoom = v.constrainZoom(z)
	}
	v.changed()
}

// Resolution returns projection units per pixel at the current zoom.
func (v *View) Resolution() float64 {
	return maxResolution(v.projection) / math.Pow(2, v.zoom)
}

// CalculateExtent returns the area visible in a viewport of the given size.
func (v *View) CalculateExtent(size core.Size) (core.Extent, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return core.Extent{}, ErrInvalidSize
	}
	res := v.Resolution()
	halfW := float64(size.Width) * res / 2
	halfH := float64(size.Height) * res / 2
	return core.Extent{
		MinX: v.center.X - halfW,
		MinY: v.center.Y - halfH,
		MaxX: v.center.X + halfW,
		MaxY: v.center.Y + halfH,
	}, nil
}

func (v *View) constrainZoom(z float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return v.minZoom
	}
	return math.Max(v.minZoom, math.Min(v.maxZoom, z))
}

func (v *View) changed() {
	v.notify(EventChange, v.State())
}

// maxResolution is the resolution at zoom 0 for 256 px tiles.
func maxResolution(projection int) float64 {
	if projection == geo.EPSG4326 {
		return 360.0 / 256
	}
	return 2 * 20037508.342789244 / 256
}
