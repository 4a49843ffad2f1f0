package domain

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// DefaultViewPadding is the fraction of the bounding box span added on each
// side when fitting the map view to the filtered records.
const DefaultViewPadding = 0.2

// LatLng is a coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a latitude/longitude box in degrees. West exceeds East when the
// box crosses the antimeridian.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p LatLng) bool {
	if p.Lat < b.South || p.Lat > b.North {
		return false
	}
	if b.West <= b.East {
		return p.Lng >= b.West && p.Lng <= b.East
	}
	return p.Lng >= b.West || p.Lng <= b.East
}

// Center returns the midpoint of the box. For a box crossing the
// antimeridian the longitude is normalized into [-180, 180).
func (b Bounds) Center() LatLng {
	east := b.East
	if b.West > east {
		east += 360
	}
	lng := (b.West + east) / 2
	if lng >= 180 {
		lng -= 360
	}
	return LatLng{Lat: (b.South + b.North) / 2, Lng: lng}
}

// RecordBounds returns the bounding box of all record coordinates. The second
// result is false when records is empty.
func RecordBounds(records []Record) (Bounds, bool) {
	if len(records) == 0 {
		return Bounds{}, false
	}
	rect := s2.EmptyRect()
	for _, r := range records {
		rect = rect.AddPoint(s2.LatLngFromDegrees(r.Latitude, r.Longitude))
	}
	return rectToBounds(rect), true
}

// Pad grows the box by ratio of its height and width on every side. The
// result is clamped to valid latitudes.
func (b Bounds) Pad(ratio float64) Bounds {
	rect := boundsToRect(b)
	size := rect.Size()
	padded := s2.Rect{
		Lat: rect.Lat.Expanded(size.Lat.Radians() * ratio).Intersection(validLat),
		Lng: rect.Lng.Expanded(size.Lng.Radians() * ratio),
	}
	return rectToBounds(padded.PolarClosure())
}

var validLat = r1.Interval{Lo: -math.Pi / 2, Hi: math.Pi / 2}

func rectToBounds(r s2.Rect) Bounds {
	lo, hi := r.Lo(), r.Hi()
	return Bounds{
		South: lo.Lat.Degrees(),
		West:  lo.Lng.Degrees(),
		North: hi.Lat.Degrees(),
		East:  hi.Lng.Degrees(),
	}
}

func boundsToRect(b Bounds) s2.Rect {
	return s2.Rect{
		Lat: r1.Interval{Lo: b.South * math.Pi / 180, Hi: b.North * math.Pi / 180},
		Lng: s1.IntervalFromEndpoints(b.West*math.Pi/180, b.East*math.Pi/180),
	}
}

// Nearest returns the record closest to p by Euclidean distance in degree
// space. This is a planar approximation, not a geodesic distance. On ties the
// first record in iteration order wins. The second result is false when
// records is empty.
func Nearest(records []Record, p LatLng) (Record, bool) {
	best := -1
	minD := math.Inf(1)
	for i, r := range records {
		dLat := r.Latitude - p.Lat
		dLng := r.Longitude - p.Lng
		d := math.Sqrt(dLat*dLat + dLng*dLng)
		if d < minD {
			minD = d
			best = i
		}
	}
	if best < 0 {
		return Record{}, false
	}
	return records[best], true
}

// GreatCircleMeters is the s2 distance between two coordinates. It is
// reported alongside a selection and plays no part in picking the nearest
// site.
func GreatCircleMeters(a, b LatLng) float64 {
	const earthRadiusMeters = 6371000.0
	d := s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return d.Radians() * earthRadiusMeters
}
