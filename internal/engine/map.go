package engine

import (
	"sort"

	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/pkg/core"
)

// Target is the display element a map renders into.
// Size reports false while the element is not attached or has no layout.
type Target interface {
	Size() (core.Size, bool)
}

// MapOptions configures a new Map.
type MapOptions struct {
	Target Target
	Layers []Layer
	View   *View
}

// Map is the renderable surface: a target, a layer stack and a view.
type Map struct {
	observable

	target Target
	layers []Layer
	view   *View
	size   core.Optional[core.Size]

	viewKey core.Optional[dispatcher.Key]
}

// NewMap creates a map and measures its target.
func (en *Engine) NewMap(opts MapOptions) *Map {
	m := &Map{
		observable: en.observable("map"),
		target:     opts.Target,
		layers:     append([]Layer(nil), opts.Layers...),
	}
	if opts.View != nil {
		m.SetView(opts.View)
	}
	m.UpdateSize()
	return m
}

// View returns the current view.
func (m *Map) View() *View { return m.view }

// SetView replaces the view. Move events follow the new view only.
func (m *Map) SetView(v *View) {
	if key, ok := m.viewKey.Get(); ok && m.view != nil {
		m.view.Off(key)
	}
	m.view = v
	m.viewKey = core.None[dispatcher.Key]()
	if v == nil {
		return
	}
	m.viewKey = core.Some(v.On(EventChange, func(e dispatcher.Event) error {
		if err := m.dispatch(EventMoveStart, e.Payload); err != nil {
			return err
		}
		return m.dispatch(EventMoveEnd, e.Payload)
	}))
}

// AddLayer puts a layer on the stack.
func (m *Map) AddLayer(l Layer) {
	m.layers = append(m.layers, l)
}

// RemoveLayer takes a layer off the stack and reports whether it was there.
func (m *Map) RemoveLayer(l Layer) bool {
	for i, existing := range m.layers {
		if existing == l {
			m.layers = append(m.layers[:i:i], m.layers[i+1:]...)
			return true
		}
	}
	return false
}

// Layers returns the layers in insertion order.
func (m *Map) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// RenderOrder returns the visible layers bottom to top.
func (m *Map) RenderOrder() []Layer {
	out := make([]Layer, 0, len(m.layers))
	for _, l := range m.layers {
		if l.Visible() {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex() < out[j].ZIndex() })
	return out
}

// UpdateSize re-reads the target size.
func (m *Map) UpdateSize() {
	next := core.None[core.Size]()
	if m.target != nil {
		if s, ok := m.target.Size(); ok && s.Width > 0 && s.Height > 0 {
			next = core.Some(s)
		}
	}
	if next == m.size {
		return
	}
	m.size = next
	m.notify(EventChangeSize, next)
}

// Size returns the last measured viewport size.
func (m *Map) Size() (core.Size, bool) {
	return m.size.Get()
}
