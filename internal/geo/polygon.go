package geo

import (
	"math"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// earthRadius is the mean radius used for circular accuracy polygons.
const earthRadius = 6371008.8

// ExtentPolygon builds a closed rectangular polygon covering the extent.
// Ring order: bottom-left, top-left, top-right, bottom-right, bottom-left.
func ExtentPolygon(e core.Extent) geom.Polygon {
	flat := []float64{
		e.MinX, e.MinY,
		e.MinX, e.MaxY,
		e.MaxX, e.MaxY,
		e.MaxX, e.MinY,
		e.MinX, e.MinY,
	}
	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// RingCoordinates returns the exterior ring of a polygon as [[x,y],...].
func RingCoordinates(poly geom.Polygon) [][]float64 {
	if poly.IsEmpty() {
		return nil
	}
	seq := poly.ExteriorRing().Coordinates()
	out := make([][]float64, seq.Length())
	for i := range out {
		xy := seq.GetXY(i)
		out[i] = []float64{xy.X, xy.Y}
	}
	return out
}

// CirclePolygon approximates a circle of radius metres around center, which
// is given in the projection identified by code. The circle is computed on the
// sphere in EPSG:4326 and projected back, so it stays round on the ground.
func CirclePolygon(center core.Position, radius float64, code int, sides int) geom.Polygon {
	if sides < 3 {
		sides = 32
	}
	toLonLat := Transformer(code, EPSG4326)
	fromLonLat := Transformer(EPSG4326, code)

	c := toLonLat(center)
	lat1 := c.Y * math.Pi / 180
	lon1 := c.X * math.Pi / 180
	d := radius / earthRadius

	flat := make([]float64, 0, (sides+1)*2)
	for i := 0; i < sides; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(sides)
		lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(bearing))
		lon2 := lon1 + math.Atan2(
			math.Sin(bearing)*math.Sin(d)*math.Cos(lat1),
			math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
		)
		p := fromLonLat(core.Position{X: lon2 * 180 / math.Pi, Y: lat2 * 180 / math.Pi})
		flat = append(flat, p.X, p.Y)
	}
	flat = append(flat, flat[0], flat[1])

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}
