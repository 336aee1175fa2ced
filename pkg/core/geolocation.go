// pkg/core/geolocation.go
package core

// Position is a coordinate pair in the view projection (x = easting/longitude,
// y = northing/latitude).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MeasurementSample is one raw reading from the location stream.
// Devices frequently lack altitude, heading or speed, so every field is optional.
type MeasurementSample struct {
	Accuracy         Optional[float64] `json:"accuracy"`
	Altitude         Optional[float64] `json:"altitude"`
	AltitudeAccuracy Optional[float64] `json:"altitudeAccuracy"`
	Heading          Optional[float64] `json:"heading"`
	Speed            Optional[float64] `json:"speed"`
}

// MeasurementResult is a display-ready sample. Each field is "<value> [<unit>]"
// or empty when the raw reading was absent.
type MeasurementResult struct {
	Accuracy         string `json:"accuracy"`
	Altitude         string `json:"altitude"`
	AltitudeAccuracy string `json:"altitudeAccuracy"`
	Heading          string `json:"heading"`
	Speed            string `json:"speed"`
}

// TrackingState is the on/off state of geolocation tracking.
type TrackingState struct {
	Enabled   bool             `json:"enabled"`
	LastError Optional[string] `json:"lastError"`
}
