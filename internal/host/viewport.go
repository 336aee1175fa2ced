package host

import (
	"sync"

	"github.com/OCAP2/mapview/pkg/core"
)

// Viewport is the display element the map renders into. Its size is set by
// client resize commands.
type Viewport struct {
	mu       sync.RWMutex
	size     core.Size
	attached bool
}

// NewViewport creates a viewport. A non-positive size leaves it detached.
func NewViewport(width, height int) *Viewport {
	v := &Viewport{}
	v.SetSize(width, height)
	return v
}

// Size reports the pixel size and whether the element has a layout.
func (v *Viewport) Size() (core.Size, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.size, v.attached
}

// SetSize changes the size. A non-positive dimension detaches the element.
func (v *Viewport) SetSize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.size = core.Size{Width: width, Height: height}
	v.attached = width > 0 && height > 0
}
