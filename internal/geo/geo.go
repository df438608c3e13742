// Package geo holds the distance and geometry helpers shared by pricing, matching and live tracking.
package geo

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

var ErrNotLineString = errors.New("geometry must be a LineString with at least two points")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ValidCoordinate reports whether lat/lng are inside WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Bearing calculates the initial bearing (direction) in degrees.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLng := toRadians(lng2 - lng1)

	y := math.Sin(deltaLng) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLng)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// ParseLineString parses a GeoJSON LineString and returns its little-endian WKB encoding.
// An empty string yields nil geometry.
func ParseLineString(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	var g geom.T
	if err := gjson.Unmarshal([]byte(raw), &g); err != nil {
		return nil, err
	}
	ls, ok := g.(*geom.LineString)
	if !ok || ls.NumCoords() < 2 {
		return nil, ErrNotLineString
	}
	for _, c := range ls.Coords() {
		if !ValidCoordinate(c.Y(), c.X()) {
			return nil, errors.New("geometry coordinate out of range")
		}
	}
	return wkb.Marshal(ls, binary.LittleEndian)
}

// LineStringToGeoJSON converts WKB bytes into a GeoJSON string.
func LineStringToGeoJSON(wkbBytes []byte) (string, error) {
	if len(wkbBytes) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeLineString decodes stored WKB into a LineString.
func DecodeLineString(wkbBytes []byte) (*geom.LineString, error) {
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return nil, err
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, ErrNotLineString
	}
	return ls, nil
}

// Polyline returns the points of a stored route, falling back to the straight
// origin -> destination segment when no geometry was posted.
func Polyline(wkbBytes []byte, origin, destination Point) []Point {
	if len(wkbBytes) > 0 {
		if ls, err := DecodeLineString(wkbBytes); err == nil {
			pts := make([]Point, 0, ls.NumCoords())
			for _, c := range ls.Coords() {
				pts = append(pts, Point{Lat: c.Y(), Lng: c.X()})
			}
			return pts
		}
	}
	return []Point{origin, destination}
}

// DistanceToPolylineKm returns the shortest distance from p to any segment of line.
func DistanceToPolylineKm(p Point, line []Point) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Haversine(p.Lat, p.Lng, line[0].Lat, line[0].Lng)
	}
	best := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := distanceToSegmentKm(p, line[i], line[i+1]); d < best {
			best = d
		}
	}
	return best
}

// distanceToSegmentKm projects p onto a-b on a local equirectangular plane,
// then measures the real distance to the projected point.
func distanceToSegmentKm(p, a, b Point) float64 {
	k := math.Cos(toRadians((a.Lat + b.Lat) / 2))
	ax, ay := a.Lng*k, a.Lat
	bx, by := b.Lng*k, b.Lat
	px, py := p.Lng*k, p.Lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	closest := Point{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: a.Lng + t*(b.Lng-a.Lng)}
	return Haversine(p.Lat, p.Lng, closest.Lat, closest.Lng)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
