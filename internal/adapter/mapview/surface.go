// Package mapview is an in-memory map surface that serializes its layers as
// GeoJSON for a browser client to draw.
package mapview

import (
	"sync"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Initial camera before the first fit.
var (
	DefaultCenter = domain.LatLng{Lat: 30, Lng: 80}
	DefaultZoom   = 4
)

// Feature layer names.
const (
	LayerMarkers      = "markers"
	LayerHeat         = "heat"
	LayerHeatFallback = "heat_fallback"
)

// HeatOptions styles the client heat layer.
type HeatOptions struct {
	MinOpacity float64           `json:"min_opacity"`
	Radius     int               `json:"radius"`
	Blur       int               `json:"blur"`
	Gradient   map[string]string `json:"gradient"`
}

// DefaultHeatOptions is the blue-to-red temperature gradient.
func DefaultHeatOptions() HeatOptions {
	return HeatOptions{
		MinOpacity: 0.3,
		Radius:     25,
		Blur:       15,
		Gradient: map[string]string{
			"0.2": "blue",
			"0.4": "cyan",
			"0.6": "lime",
			"0.8": "yellow",
			"1.0": "red",
		},
	}
}

// Layers is the serializable state of the surface.
type Layers struct {
	Center   domain.LatLng              `json:"center"`
	Zoom     int                        `json:"zoom"`
	View     *domain.Bounds             `json:"view"`
	Heat     *HeatOptions               `json:"heat,omitempty"`
	Features *geojson.FeatureCollection `json:"features"`
}

// Surface implements mapsession.Surface without heat capability. Use
// NewHeat for a surface that can draw a heat layer.
type Surface struct {
	mu          sync.Mutex
	markers     []mapsession.Marker
	circles     []mapsession.Circle
	heat        []domain.HeatPoint
	center      domain.LatLng
	zoom        int
	view        *domain.Bounds
	onClick     []func(domain.LatLng)
	onViewMoved []func(domain.Bounds)
}

// New creates an empty surface centered on DefaultCenter.
func New() *Surface {
	return &Surface{center: DefaultCenter, zoom: DefaultZoom}
}

// HeatSurface is a Surface with a heat layer.
type HeatSurface struct {
	*Surface
}

var _ mapsession.HeatCapable = (*HeatSurface)(nil)

// NewHeat creates an empty heat-capable surface.
func NewHeat() *HeatSurface {
	return &HeatSurface{Surface: New()}
}

// SetHeatData replaces the heat layer; nil removes it.
func (h *HeatSurface) SetHeatData(points []domain.HeatPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heat = append([]domain.HeatPoint(nil), points...)
	if points == nil {
		h.heat = nil
	}
}

func (s *Surface) AddPoint(m mapsession.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

func (s *Surface) AddCircle(c mapsession.Circle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circles = append(s.circles, c)
}

func (s *Surface) ClearPoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
	s.circles = nil
}

// FitBounds moves the camera without notifying view handlers.
func (s *Surface) FitBounds(b domain.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = &b
	s.center = b.Center()
}

func (s *Surface) OnClick(fn func(domain.LatLng)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick = append(s.onClick, fn)
}

func (s *Surface) OnViewChange(fn func(domain.Bounds)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onViewMoved = append(s.onViewMoved, fn)
}

// Click delivers a user click to the registered handlers.
func (s *Surface) Click(p domain.LatLng) {
	s.mu.Lock()
	handlers := append([]func(domain.LatLng){}, s.onClick...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(p)
	}
}

// SetView records a user pan or zoom and notifies the view handlers.
func (s *Surface) SetView(b domain.Bounds) {
	s.mu.Lock()
	s.view = &b
	s.center = b.Center()
	handlers := append([]func(domain.Bounds){}, s.onViewMoved...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(b)
	}
}

// Layers snapshots the surface as GeoJSON.
func (s *Surface) Layers() Layers {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := geojson.NewFeatureCollection()
	for _, c := range s.circles {
		f := geojson.NewFeature(point(c.Center))
		f.Properties["layer"] = LayerHeatFallback
		f.Properties["radius_m"] = c.RadiusMeters
		f.Properties["fill_color"] = mapsession.HeatCircleColor
		f.Properties["fill_opacity"] = mapsession.HeatCircleOpacity
		fc.Append(f)
	}
	for _, h := range s.heat {
		f := geojson.NewFeature(orb.Point{h.Lng, h.Lat})
		f.Properties["layer"] = LayerHeat
		f.Properties["intensity"] = h.Intensity
		fc.Append(f)
	}
	for _, m := range s.markers {
		f := geojson.NewFeature(point(m.Position))
		f.ID = m.Key
		f.Properties["layer"] = LayerMarkers
		f.Properties["key"] = m.Key
		f.Properties["color"] = m.Color
		f.Properties["radius"] = mapsession.MarkerRadius
		f.Properties["fill_opacity"] = mapsession.MarkerFillOpacity
		f.Properties["pulse"] = m.Pulse
		f.Properties["popup"] = m.Popup
		fc.Append(f)
	}

	out := Layers{Center: s.center, Zoom: s.zoom, Features: fc}
	if s.view != nil {
		v := *s.view
		out.View = &v
		fc.BBox = geojson.BBox{v.West, v.South, v.East, v.North}
	}
	if len(s.heat) > 0 {
		opts := DefaultHeatOptions()
		out.Heat = &opts
	}
	return out
}

func point(p domain.LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}
