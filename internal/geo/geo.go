package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions travel through the engine in the view projection (EPSG:3857 by
// default). Device fixes arrive as EPSG:4326 longitude/latitude and are
// transformed once, at the geolocation boundary.

// Projection codes understood by the engine.
const (
	EPSG4326 = 4326
	EPSG3857 = 3857
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrUnsupportedProjection is returned for projection names other than EPSG:4326 and EPSG:3857.
var ErrUnsupportedProjection = errors.New("unsupported projection")

// PositionFromString parses a "x,y" string (longitude first) into a core.Position.
// Extra components such as elevation are ignored.
func PositionFromString(coords string) (core.Position, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return core.Position{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	return core.Position{X: x, Y: y}, nil
}

// ProjectionCode converts an "EPSG:<code>" name into its numeric code.
func ProjectionCode(name string) (int, error) {
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(name)), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProjection, name)
	}
	code, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProjection, name)
	}
	if code != EPSG4326 && code != EPSG3857 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProjection, name)
	}
	return code, nil
}

// Transformer returns a function converting positions between two projections.
func Transformer(from, to int) func(core.Position) core.Position {
	if from == to {
		return func(p core.Position) core.Position { return p }
	}
	f := wgs84.EPSG().Transform(from, to)
	return func(p core.Position) core.Position {
		x, y, _ := f(p.X, p.Y, 0)
		return core.Position{X: x, Y: y}
	}
}

// PointFromPosition creates a 2D point geometry.
func PointFromPosition(p core.Position) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: p.X, Y: p.Y},
		},
	)
}

// PositionFromPoint reads a point geometry back. It returns false for an empty point.
func PositionFromPoint(point geom.Point) (core.Position, bool) {
	coords, ok := point.Coordinates()
	if !ok {
		return core.Position{}, false
	}
	return core.Position{X: coords.X, Y: coords.Y}, true
}
