package view

import (
	"testing"
	"time"

	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/engine"
	"github.com/OCAP2/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type fakeTarget struct {
	size     core.Size
	attached bool
}

func (f *fakeTarget) Size() (core.Size, bool) { return f.size, f.attached }

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	bus, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return engine.New(bus)
}

func attached(t *testing.T, opts Options, target *fakeTarget) (*Controller, *engine.Map) {
	t.Helper()
	en := newEngine(t)
	c := New(en, opts)
	m := en.NewMap(engine.MapOptions{Target: target})
	c.Attach(m)
	return c, m
}

func TestController_SetViewDefaults(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 7})

	c.SetView(core.None[core.Position](), core.None[float64]())

	assert.Equal(t, core.ViewState{Center: core.Position{X: 0, Y: 0}, Zoom: 7}, c.State())
}

func TestController_SetViewExplicit(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 7})
	old := c.View()

	v := c.SetView(core.Some(core.Position{X: 10, Y: 20}), core.Some(16.0))

	assert.NotSame(t, old, v)
	assert.Equal(t, core.ViewState{Center: core.Position{X: 10, Y: 20}, Zoom: 16}, c.State())
}

func TestController_SetViewReplacesSurfaceView(t *testing.T) {
	c, m := attached(t, Options{}, &fakeTarget{})
	assert.Same(t, c.View(), m.View())

	v := c.SetView(core.None[core.Position](), core.Some(3.0))
	assert.Same(t, v, m.View())
}

func TestController_MoveToKeepsZoom(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 5})

	c.MoveTo(core.Position{X: 12.34, Y: 56.78})

	assert.Equal(t, core.ViewState{Center: core.Position{X: 12.34, Y: 56.78}, Zoom: 5}, c.State())
}

func TestController_ZoomSteps(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 5})

	c.ZoomIn()
	assert.Equal(t, 6.0, c.Zoom())
	anim, ok := c.View().LastAnimation().Get()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, anim.Duration)

	c.ZoomOut()
	assert.Equal(t, 5.0, c.Zoom())
}

func TestController_ZoomReadsCurrentLevel(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 5})

	c.View().SetZoom(10)
	c.ZoomIn()
	c.ZoomIn()

	assert.Equal(t, 12.0, c.Zoom())
}

func TestController_ZoomOutStopsAtMinimum(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: 0})

	c.ZoomOut()

	assert.Equal(t, 0.0, c.Zoom())
}

// ZoomIn then ZoomOut restores the zoom only strictly inside the bounds. At
// the maximum the step in is clamped away and the step out still lands one
// level lower.
func TestController_ZoomInAtMaximumDoesNotRoundTrip(t *testing.T) {
	c := New(newEngine(t), Options{DefaultZoom: engine.DefaultMaxZoom})

	c.ZoomIn()
	assert.Equal(t, 28.0, c.Zoom())

	c.ZoomOut()
	assert.Equal(t, 27.0, c.Zoom())
}

func TestController_ExtentBeforeAttach(t *testing.T) {
	c := New(newEngine(t), Options{})

	_, err := c.Extent()
	assert.ErrorIs(t, err, ErrMissingViewportSize)

	_, err = c.ExtentPolygon()
	assert.ErrorIs(t, err, ErrMissingViewportSize)
}

func TestController_ExtentWithoutSize(t *testing.T) {
	c, _ := attached(t, Options{}, &fakeTarget{})

	_, err := c.Extent()
	assert.ErrorIs(t, err, ErrMissingViewportSize)
}

func TestController_Extent(t *testing.T) {
	c, _ := attached(t, Options{Projection: 4326, DefaultZoom: 0}, &fakeTarget{size: core.Size{Width: 256, Height: 128}, attached: true})

	extent, err := c.Extent()
	require.NoError(t, err)
	assert.InDelta(t, -180, extent.MinX, 1e-9)
	assert.InDelta(t, 180, extent.MaxX, 1e-9)
	assert.InDelta(t, -90, extent.MinY, 1e-9)
	assert.InDelta(t, 90, extent.MaxY, 1e-9)

	wkt, err := c.ExtentPolygon()
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((-180 -90,-180 90,180 90,180 -90,-180 -90))", wkt)
}
