package mapsession

import "github.com/couchcryptid/glacier-risk-map/internal/domain"

// Marker styling shared by every surface.
const (
	MarkerRadius      = 8
	MarkerFillOpacity = 0.85
	HeatCircleColor   = "red"
	HeatCircleOpacity = 0.15
)

// Marker is one record drawn as a colored circle marker with popup content.
type Marker struct {
	Key      string
	Position domain.LatLng
	Color    string
	Pulse    bool // High band markers animate
	Popup    domain.Detail
}

// Circle is a translucent fallback heat circle, sized in meters.
type Circle struct {
	Center       domain.LatLng
	RadiusMeters float64
}

// Surface is the rendering capability the manager draws on. Points and
// fallback circles share one layer group that ClearPoints empties.
//
// Handlers registered with OnClick and OnViewChange are called only for user
// input, never for FitBounds, and never while the surface holds its own lock.
type Surface interface {
	AddPoint(m Marker)
	AddCircle(c Circle)
	ClearPoints()
	FitBounds(b domain.Bounds)
	OnClick(fn func(domain.LatLng))
	OnViewChange(fn func(domain.Bounds))
}

// HeatCapable is implemented by surfaces that can draw a weighted heat layer.
// SetHeatData replaces the layer; nil removes it.
type HeatCapable interface {
	SetHeatData(points []domain.HeatPoint)
}
