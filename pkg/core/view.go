// pkg/core/view.go
package core

// ViewState is the camera state.
type ViewState struct {
	Center Position `json:"center"`
	Zoom   float64  `json:"zoom"`
}

// Size is a viewport size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Extent is a bounding box in the view projection.
type Extent struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Width returns the horizontal span.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Center returns the midpoint.
func (e Extent) Center() Position {
	return Position{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2}
}

// MarkerState is the observable state of the location marker.
type MarkerState struct {
	Geometry        Optional[Position] `json:"geometry"`
	RotationRadians float64            `json:"rotation"`
	Visible         bool               `json:"visible"`
}
