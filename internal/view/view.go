// Package view controls the map camera: center, zoom and the visible extent.
package view

import (
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/pkg/core"
)

// ErrMissingViewportSize is returned by extent operations before the map is
// attached to a display surface with a size.
var ErrMissingViewportSize = errors.New("viewport size unavailable")

// DefaultZoomDuration is the length of a stepwise zoom animation.
const DefaultZoomDuration = 500 * time.Millisecond

// Surface is the map the controller drives.
type Surface interface {
	SetView(*engine.View)
	Size() (core.Size, bool)
}

// Options hold the camera defaults.
type Options struct {
	DefaultCenter core.Position
	DefaultZoom   float64
	MinZoom       float64
	MaxZoom       float64
	Projection    int
	ZoomDuration  time.Duration
}

// Controller owns the current view.
type Controller struct {
	en      *engine.Engine
	opts    Options
	surface Surface
	view    *engine.View
}

// New creates a controller holding a default view.
func New(en *engine.Engine, opts Options) *Controller {
	if opts.ZoomDuration <= 0 {
		opts.ZoomDuration = DefaultZoomDuration
	}
	c := &Controller{en: en, opts: opts}
	c.SetView(core.None[core.Position](), core.None[float64]())
	return c
}

// Attach binds the controller to a surface and hands it the current view.
func (c *Controller) Attach(s Surface) {
	c.surface = s
	s.SetView(c.view)
}

// SetView replaces the view. Missing arguments fall back to the defaults.
func (c *Controller) SetView(center core.Optional[core.Position], zoom core.Optional[float64]) *engine.View {
	c.view = c.en.NewView(engine.ViewOptions{
		Center:     center.OrElse(c.opts.DefaultCenter),
		Zoom:       zoom.OrElse(c.opts.DefaultZoom),
		MinZoom:    c.opts.MinZoom,
		MaxZoom:    c.opts.MaxZoom,
		Projection: c.opts.Projection,
	})
	if c.surface != nil {
		c.surface.SetView(c.view)
	}
	return c.view
}

// View returns the current view.
func (c *Controller) View() *engine.View {
	return c.view
}

// State returns the current center and zoom.
func (c *Controller) State() core.ViewState {
	return c.view.State()
}

// Zoom returns the current zoom level.
func (c *Controller) Zoom() float64 {
	return c.view.Zoom()
}

// MoveTo re-centers the view and keeps the zoom.
func (c *Controller) MoveTo(pos core.Position) {
	c.view.SetCenter(pos)
}

// ZoomIn animates one level closer.
func (c *Controller) ZoomIn() {
	c.zoomBy(1)
}

// ZoomOut animates one level further out.
func (c *Controller) ZoomOut() {
	c.zoomBy(-1)
}

// zoomBy reads the zoom at call time so rapid calls do not compound.
func (c *Controller) zoomBy(delta float64) {
	c.view.Animate(engine.Animation{
		Zoom:     core.Some(c.view.Zoom() + delta),
		Duration: c.opts.ZoomDuration,
	})
}

// Extent returns the visible bounding box in the view projection.
func (c *Controller) Extent() (core.Extent, error) {
	if c.surface == nil {
		return core.Extent{}, ErrMissingViewportSize
	}
	size, ok := c.surface.Size()
	if !ok {
		return core.Extent{}, ErrMissingViewportSize
	}
	extent, err := c.view.CalculateExtent(size)
	if err != nil {
		return core.Extent{}, fmt.Errorf("%w: %w", ErrMissingViewportSize, err)
	}
	return extent, nil
}

// ExtentPolygon returns the visible area as a WKT polygon.
func (c *Controller) ExtentPolygon() (string, error) {
	extent, err := c.Extent()
	if err != nil {
		return "", err
	}
	return geo.ExtentPolygon(extent).AsText(), nil
}
