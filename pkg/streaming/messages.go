package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/mapview/pkg/core"
)

// Message types pushed by the server.
const (
	TypeGeolocationChange   = "geolocation_change"
	TypeGeolocationError    = "geolocation_error"
	TypeGeolocationPosition = "geolocation_position"
	TypeMapMoveStart        = "map_move_start"
	TypeViewState           = "view_state"
	TypeError               = "error"
)

// Command types accepted from clients.
const (
	TypeZoomIn            = "zoom_in"
	TypeZoomOut           = "zoom_out"
	TypeMoveTo            = "move_to"
	TypeEnableGeolocation = "enable_geolocation"
	TypeResize            = "resize"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement of a command.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the command type being acknowledged
}

// ErrorPayload reports a rejected command.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// GeolocationErrorPayload carries the stream error message unmodified.
type GeolocationErrorPayload struct {
	Message string `json:"message"`
}

// MoveToPayload re-centers the view. Coords, when set, is an "x,y" pair
// and takes precedence over X and Y.
type MoveToPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Coords string  `json:"coords,omitempty"`
}

// EnableGeolocationPayload switches tracking.
type EnableGeolocationPayload struct {
	Enabled bool `json:"enabled"`
}

// ResizePayload sets the viewport size in pixels.
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ViewResponse is returned by GET /view.
type ViewResponse struct {
	View    core.ViewState `json:"view"`
	Extent  *core.Extent   `json:"extent,omitempty"`
	Polygon string         `json:"polygon,omitempty"`
	Ring    [][]float64    `json:"ring,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Tracking core.TrackingState `json:"tracking"`
	Marker   core.MarkerState   `json:"marker"`
	Layers   []string           `json:"layers"`
}

// NewEnvelope marshals payload into an envelope of the given type.
// A nil payload yields an envelope without payload.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	env := Envelope{Type: msgType}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}
