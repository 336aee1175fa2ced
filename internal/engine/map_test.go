package engine

import (
	"testing"

	"github.com/OCAP2/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	size     core.Size
	attached bool
}

func (f *fakeTarget) Size() (core.Size, bool) { return f.size, f.attached }

func TestMap_MeasuresTargetOnCreate(t *testing.T) {
	en := newTestEngine(t)
	m := en.NewMap(MapOptions{Target: &fakeTarget{size: core.Size{Width: 800, Height: 600}, attached: true}})

	size, ok := m.Size()
	require.True(t, ok)
	assert.Equal(t, core.Size{Width: 800, Height: 600}, size)
}

func TestMap_DetachedTargetHasNoSize(t *testing.T) {
	en := newTestEngine(t)
	m := en.NewMap(MapOptions{Target: &fakeTarget{}})

	_, ok := m.Size()
	assert.False(t, ok)

	m2 := en.NewMap(MapOptions{})
	_, ok = m2.Size()
	assert.False(t, ok)
}

func TestMap_UpdateSizeFiresOnlyOnChange(t *testing.T) {
	en := newTestEngine(t)
	target := &fakeTarget{size: core.Size{Width: 100, Height: 100}, attached: true}
	m := en.NewMap(MapOptions{Target: target})

	rec := &recorder{}
	m.On(EventChangeSize, rec.handler)

	m.UpdateSize()
	assert.Empty(t, rec.events)

	target.size.Height = 300
	m.UpdateSize()
	require.Len(t, rec.events, 1)
	size, _ := m.Size()
	assert.Equal(t, 300, size.Height)
}

func TestMap_Layers(t *testing.T) {
	en := newTestEngine(t)
	base := en.NewTileLayer(TileSource{})
	m := en.NewMap(MapOptions{Layers: []Layer{base}})

	overlay := en.NewVectorLayer(NewVectorSource())
	overlay.SetZIndex(2)
	m.AddLayer(overlay)

	assert.Len(t, m.Layers(), 2)
	assert.Equal(t, DefaultTileURL, base.Source().URL)
	assert.Equal(t, []Layer{base, overlay}, m.RenderOrder())

	overlay.SetVisible(false)
	assert.Equal(t, []Layer{base}, m.RenderOrder())

	assert.True(t, m.RemoveLayer(overlay))
	assert.False(t, m.RemoveLayer(overlay))
	assert.Len(t, m.Layers(), 1)
}

func TestMap_MoveEventsFollowView(t *testing.T) {
	en := newTestEngine(t)
	first := en.NewView(ViewOptions{})
	m := en.NewMap(MapOptions{View: first})

	rec := &recorder{}
	m.On(EventMoveStart, rec.handler)
	m.On(EventMoveEnd, rec.handler)

	first.SetCenter(core.Position{X: 5, Y: 5})
	assert.Equal(t, []string{EventMoveStart, EventMoveEnd}, rec.events)

	second := en.NewView(ViewOptions{})
	m.SetView(second)
	rec.events = nil

	first.SetCenter(core.Position{X: 1, Y: 1})
	assert.Empty(t, rec.events, "old view must be detached")

	second.SetZoom(2)
	assert.Equal(t, []string{EventMoveStart, EventMoveEnd}, rec.events)
	assert.Same(t, second, m.View())
}

func TestVectorSource(t *testing.T) {
	f1, f2 := NewFeature(), NewFeature()
	src := NewVectorSource(f1)
	src.AddFeature(f2)

	assert.Equal(t, 2, src.Len())
	assert.Equal(t, []*Feature{f1, f2}, src.Features())

	src.Clear()
	assert.Equal(t, 0, src.Len())
}
