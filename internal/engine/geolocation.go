package engine

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/pkg/core"
)

// Position error codes, as reported by device positioning APIs.
const (
	ErrCodePermissionDenied    = 1
	ErrCodePositionUnavailable = 2
	ErrCodeTimeout             = 3
)

// PositionError is the payload of an error event.
type PositionError struct {
	Code    int
	Message string
}

func (e PositionError) Error() string { return e.Message }

// TrackingOptions are passed through to the positioning provider.
type TrackingOptions struct {
	EnableHighAccuracy bool
	MaximumAge         time.Duration
	Timeout            time.Duration
}

// GeolocationOptions configures a Geolocation.
type GeolocationOptions struct {
	// Projection positions are delivered in. Zero means EPSG:3857.
	Projection      int
	TrackingOptions TrackingOptions
	// AccuracySides is the vertex count of the accuracy circle.
	AccuracySides int
}

// Fix is one reading from a positioning provider, in EPSG:4326.
// Heading is radians clockwise from true north.
type Fix struct {
	Longitude        float64
	Latitude         float64
	Accuracy         core.Optional[float64]
	Altitude         core.Optional[float64]
	AltitudeAccuracy core.Optional[float64]
	Heading          core.Optional[float64]
	Speed            core.Optional[float64]
	Time             time.Time
}

// Geolocation is the live location stream. Providers push fixes and errors
// into it; it only accepts them while tracking is on.
type Geolocation struct {
	observable

	opts      GeolocationOptions
	transform func(core.Position) core.Position
	tracking  bool

	position         core.Optional[core.Position]
	accuracy         core.Optional[float64]
	altitude         core.Optional[float64]
	altitudeAccuracy core.Optional[float64]
	heading          core.Optional[float64]
	speed            core.Optional[float64]
	accuracyGeometry core.Optional[geom.Polygon]
	lastFix          time.Time
}

// NewGeolocation creates a stream with tracking off.
func (en *Engine) NewGeolocation(opts GeolocationOptions) *Geolocation {
	if opts.Projection == 0 {
		opts.Projection = geo.EPSG3857
	}
	if opts.AccuracySides < 3 {
		opts.AccuracySides = 32
	}
	return &Geolocation{
		observable: en.observable("geolocation"),
		opts:       opts,
		transform:  geo.Transformer(geo.EPSG4326, opts.Projection),
	}
}

// SetTracking turns position updates on or off.
func (g *Geolocation) SetTracking(on bool) {
	if g.tracking == on {
		return
	}
	g.tracking = on
	g.notify(EventChangeTracking, on)
}

// Tracking reports whether updates are accepted.
func (g *Geolocation) Tracking() bool { return g.tracking }

// Options returns the options the stream was created with.
func (g *Geolocation) Options() GeolocationOptions { return g.opts }

// Projection returns the EPSG code positions are delivered in.
func (g *Geolocation) Projection() int { return g.opts.Projection }

// Update applies a fix. Fixes arriving while tracking is off are discarded.
// Events fire in this order: change:position, change:accuracyGeometry, change.
func (g *Geolocation) Update(fix Fix) error {
	if !g.tracking {
		return nil
	}

	pos := g.transform(core.Position{X: fix.Longitude, Y: fix.Latitude})
	g.position = core.Some(pos)
	g.accuracy = fix.Accuracy
	g.altitude = fix.Altitude
	g.altitudeAccuracy = fix.AltitudeAccuracy
	g.heading = fix.Heading
	g.speed = fix.Speed
	g.lastFix = fix.Time

	if acc, ok := fix.Accuracy.Get(); ok {
		g.accuracyGeometry = core.Some(geo.CirclePolygon(pos, acc, g.opts.Projection, g.opts.AccuracySides))
	} else {
		g.accuracyGeometry = core.None[geom.Polygon]()
	}

	if err := g.dispatch(EventChangePosition, pos); err != nil {
		return err
	}
	if err := g.dispatch(EventChangeAccuracyGeometry, g.accuracyGeometry); err != nil {
		return err
	}
	return g.dispatch(EventChange, nil)
}

// Fail reports a provider error. Errors arriving while tracking is off are discarded.
func (g *Geolocation) Fail(code int, message string) error {
	if !g.tracking {
		return nil
	}
	return g.dispatch(EventError, PositionError{Code: code, Message: message})
}

// Position returns the latest position in the stream's projection.
func (g *Geolocation) Position() core.Optional[core.Position] { return g.position }

// Accuracy returns the horizontal accuracy in metres.
func (g *Geolocation) Accuracy() core.Optional[float64] { return g.accuracy }

// Altitude returns the altitude in metres.
func (g *Geolocation) Altitude() core.Optional[float64] { return g.altitude }

// AltitudeAccuracy returns the altitude accuracy in metres.
func (g *Geolocation) AltitudeAccuracy() core.Optional[float64] { return g.altitudeAccuracy }

// Heading returns the heading in radians.
func (g *Geolocation) Heading() core.Optional[float64] { return g.heading }

// Speed returns the ground speed in metres per second.
func (g *Geolocation) Speed() core.Optional[float64] { return g.speed }

// AccuracyGeometry returns the accuracy circle around the position.
func (g *Geolocation) AccuracyGeometry() core.Optional[geom.Polygon] { return g.accuracyGeometry }

// LastFixTime returns the provider timestamp of the latest fix.
func (g *Geolocation) LastFixTime() time.Time { return g.lastFix }
