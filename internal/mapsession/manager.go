// Package mapsession owns the lifecycle of a map surface: one-time
// activation, full re-rendering of the point and heat layers, view fitting,
// and click selection.
package mapsession

import (
	"log/slog"
	"sync"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/google/uuid"
)

// Option configures a Manager.
type Option func(*Manager)

// WithHeatLayer controls whether a heat-capable surface gets a true heat
// layer. When false the manager always draws fallback circles.
func WithHeatLayer(enabled bool) Option {
	return func(m *Manager) { m.useHeatLayer = enabled }
}

// Manager renders records onto a Surface once it is ready.
type Manager struct {
	id           string
	logger       *slog.Logger
	metrics      *observability.Metrics
	useHeatLayer bool

	mu            sync.Mutex
	surface       Surface
	heat          HeatCapable
	heatDrawn     bool
	records       []domain.Record
	heatmap       bool
	pending       bool
	userAdjusted  bool
	lastClick     *domain.LatLng
	selected      *domain.Record
	renders       int
	deferredCalls int
}

// New creates an uninitialized Manager.
func New(logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Manager {
	m := &Manager{
		id:           uuid.NewString(),
		logger:       logger,
		metrics:      metrics,
		useHeatLayer: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID is the session handle id.
func (m *Manager) ID() string {
	return m.id
}

// Ready activates the session on s. Only the first call has any effect; it
// returns false for every later call. A render requested before activation
// is replayed here.
func (m *Manager) Ready(s Surface) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surface != nil {
		m.logger.Debug("map surface already initialized", "session", m.id)
		return false
	}
	m.surface = s
	if h, ok := s.(HeatCapable); ok && m.useHeatLayer {
		m.heat = h
	}
	s.OnClick(m.handleClick)
	s.OnViewChange(m.handleViewChange)

	m.logger.Info("map session active",
		"session", m.id,
		"heat_layer", m.heat != nil,
		"deferred_renders", m.deferredCalls,
	)
	if m.pending {
		m.pending = false
		m.renderLocked()
	}
	return true
}

// Active reports whether Ready has been called.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surface != nil
}

// Render replaces the drawn layers with records. The slice is copied, so the
// caller may reuse it. Before activation the request is deferred.
func (m *Manager) Render(records []domain.Record, heatmap bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append([]domain.Record(nil), records...)
	m.heatmap = heatmap
	m.reselectLocked()

	if m.surface == nil {
		m.pending = true
		m.deferredCalls++
		return
	}
	m.renderLocked()
}

// ResetViewAdjustment allows the next render to fit the view again.
func (m *Manager) ResetViewAdjustment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userAdjusted = false
}

// UserAdjustedView reports whether the user has panned or zoomed since the
// last reset.
func (m *Manager) UserAdjustedView() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAdjusted
}

// Selected returns the record nearest to the last click among the rendered
// records.
func (m *Manager) Selected() (domain.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return domain.Record{}, false
	}
	return *m.selected, true
}

// LastClick returns the last clicked coordinate.
func (m *Manager) LastClick() (domain.LatLng, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastClick == nil {
		return domain.LatLng{}, false
	}
	return *m.lastClick, true
}

// Renders counts completed layer rebuilds.
func (m *Manager) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}

func (m *Manager) renderLocked() {
	s := m.surface

	s.ClearPoints()
	if m.heat != nil && m.heatDrawn {
		m.heat.SetHeatData(nil)
		m.heatDrawn = false
	}

	if m.heatmap && len(m.records) > 0 {
		if m.heat != nil {
			m.heat.SetHeatData(domain.HeatPoints(m.records))
			m.heatDrawn = true
		} else {
			for _, r := range m.records {
				s.AddCircle(Circle{
					Center:       domain.LatLng{Lat: r.Latitude, Lng: r.Longitude},
					RadiusMeters: domain.HeatRadius(r.Temperature),
				})
			}
		}
	}

	for _, r := range m.records {
		s.AddPoint(Marker{
			Key:      r.Key(),
			Position: domain.LatLng{Lat: r.Latitude, Lng: r.Longitude},
			Color:    domain.RiskColor(r.RiskScore),
			Pulse:    domain.BandHigh.Contains(r.RiskScore),
			Popup:    domain.DescribeRecord(r),
		})
	}

	if len(m.records) > 0 && !m.userAdjusted {
		if b, ok := domain.RecordBounds(m.records); ok {
			s.FitBounds(b.Pad(domain.DefaultViewPadding))
		}
	}

	m.renders++
	m.metrics.MapRenders.Inc()
	m.logger.Debug("map rendered",
		"session", m.id,
		"records", len(m.records),
		"heatmap", m.heatmap,
		"user_adjusted_view", m.userAdjusted,
	)
}

func (m *Manager) handleClick(p domain.LatLng) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastClick = &p
	m.reselectLocked()
}

func (m *Manager) handleViewChange(domain.Bounds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userAdjusted = true
}

func (m *Manager) reselectLocked() {
	m.selected = nil
	if m.lastClick == nil {
		return
	}
	if r, ok := domain.Nearest(m.records, *m.lastClick); ok {
		m.selected = &r
	}
}
