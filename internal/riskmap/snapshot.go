package riskmap

import (
	"context"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
)

// Snapshot is a consistent copy of everything the monitoring page shows.
type Snapshot struct {
	Status    Status              `json:"status"`
	SessionID string              `json:"session_id"`
	Filter    domain.FilterState  `json:"filter"`
	RiskBands []string            `json:"risk_bands"`
	Regions   []string            `json:"regions"`
	Records   []domain.Record     `json:"records"`
	Stats     domain.SummaryStats `json:"stats"`
	Selected  *domain.Detail      `json:"selected,omitempty"`
	// ClickDistanceMeters is the great circle distance from the last click
	// to the selected site.
	ClickDistanceMeters *float64            `json:"click_distance_meters,omitempty"`
	LastUpdated         *time.Time          `json:"last_updated,omitempty"`
	Skipped             []domain.ParseError `json:"skipped"`
}

// Snapshot copies the current view. The selected site, if any, is enriched
// with a place name when a geocoder is configured; the lookup runs without
// holding the view lock.
func (v *View) Snapshot(ctx context.Context) Snapshot {
	v.mu.Lock()
	snap := Snapshot{
		Status:    v.statusLocked(),
		SessionID: v.session.ID(),
		Filter:    v.filter,
		RiskBands: domain.RiskBandOptions(),
		Regions:   domain.Regions(v.records),
		Records:   append([]domain.Record{}, v.filtered...),
		Stats:     v.stats,
		Skipped:   append([]domain.ParseError{}, v.skipped...),
	}
	if v.lastUpdated != nil {
		t := *v.lastUpdated
		snap.LastUpdated = &t
	}
	v.mu.Unlock()

	if r, ok := v.session.Selected(); ok {
		site := domain.LatLng{Lat: r.Latitude, Lng: r.Longitude}
		detail := domain.EnrichDetail(ctx, domain.DescribeRecord(r), site, v.geocoder, v.logger)
		snap.Selected = &detail
		if click, ok := v.session.LastClick(); ok {
			d := domain.GreatCircleMeters(click, site)
			snap.ClickDistanceMeters = &d
		}
	}
	return snap
}
