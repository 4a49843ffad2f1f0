// Package riskmap composes the loader, the filter engine, the map session
// and the refresh scheduler into the monitoring view. The View is the only
// writer of the record collection and the filter state.
package riskmap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/couchcryptid/glacier-risk-map/internal/scheduler"
)

var (
	// ErrClosed is returned by operations on a closed view.
	ErrClosed = errors.New("monitoring view closed")
	// ErrStaleLoad is returned when a load finished after the view moved on
	// to a newer refresh epoch. Its result was discarded.
	ErrStaleLoad = errors.New("load superseded")
)

// Status summarizes what the view can show.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusNoData    Status = "no_data"
	StatusNoMatches Status = "no_matches"
	StatusReady     Status = "ready"
)

// DataLoader fetches and parses the glacier data source.
type DataLoader interface {
	Load(ctx context.Context) (domain.ParseResult, error)
}

// AlertPublisher receives alerts for High-band records after each load.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []domain.Alert) error
}

// Option configures a View.
type Option func(*View)

// WithAutoRefresh sets the initial auto-refresh state and its interval.
func WithAutoRefresh(enabled bool, interval time.Duration) Option {
	return func(v *View) {
		v.filter.AutoRefreshEnabled = enabled
		v.interval = interval
	}
}

// WithAlertPublisher publishes High-band alerts after every committed load.
func WithAlertPublisher(p AlertPublisher) Option {
	return func(v *View) { v.publisher = p }
}

// WithGeocoder enriches the selected site with a place name.
func WithGeocoder(g domain.Geocoder) Option {
	return func(v *View) { v.geocoder = g }
}

// View holds the record collection, the filter state and the derived view.
type View struct {
	loader    DataLoader
	session   *mapsession.Manager
	scheduler *scheduler.Scheduler
	publisher AlertPublisher
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
	interval  time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
	epoch       uint64
	loaded      bool
	records     []domain.Record
	skipped     []domain.ParseError
	filter      domain.FilterState
	filtered    []domain.Record
	stats       domain.SummaryStats
	lastUpdated *time.Time
}

// DefaultRefreshInterval is used when WithAutoRefresh gives no interval.
const DefaultRefreshInterval = 15 * time.Second

// New creates a view. Nothing is loaded until Open or Refresh.
func New(loader DataLoader, session *mapsession.Manager, sched *scheduler.Scheduler, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *View {
	v := &View{
		loader:    loader,
		session:   session,
		scheduler: sched,
		logger:    logger,
		metrics:   metrics,
		filter:    domain.DefaultFilterState(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.interval <= 0 {
		v.interval = DefaultRefreshInterval
	}
	v.filtered = []domain.Record{}
	return v
}

// Open starts the initial load in the background, and the refresh scheduler
// when auto-refresh is enabled. ctx bounds the lifetime of both. Calling Open
// twice is a no-op.
func (v *View) Open(ctx context.Context) {
	v.mu.Lock()
	if v.closed || v.ctx != nil {
		v.mu.Unlock()
		return
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	auto := v.filter.AutoRefreshEnabled
	runCtx := v.ctx
	v.mu.Unlock()

	v.logger.Info("monitoring view opened", "auto_refresh", auto, "interval", v.interval, "session", v.session.ID())
	if auto {
		// The scheduler's immediate invocation is the initial load.
		v.metrics.RefreshRunning.Set(1)
		v.scheduler.Start(runCtx, v.scheduledRefresh, v.interval)
		return
	}
	go v.scheduledRefresh(runCtx)
}

// Refresh loads the data source and commits the result unless the view was
// closed or its epoch changed while loading. Fetch failures keep the previous
// collection.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	epoch := v.epoch
	v.mu.Unlock()

	result, loadErr := v.loader.Load(ctx)

	v.mu.Lock()
	if v.closed || v.epoch != epoch {
		closed := v.closed
		v.mu.Unlock()
		v.metrics.StaleLoadsDiscarded.Inc()
		v.logger.Debug("stale load discarded", "epoch", epoch)
		if closed {
			return ErrClosed
		}
		return ErrStaleLoad
	}

	if loadErr != nil {
		v.loaded = true
		v.mu.Unlock()
		v.logger.Error("glacier data load failed, keeping previous records", "error", loadErr)
		return loadErr
	}

	now := domain.Now()
	v.loaded = true
	v.records = result.Records
	v.skipped = result.Skipped
	v.lastUpdated = &now
	v.recomputeLocked()
	v.renderLocked()
	v.metrics.RecordsLoaded.Set(float64(len(v.records)))
	alerts := domain.HighRiskAlerts(v.records)
	v.mu.Unlock()

	v.publishAlerts(ctx, alerts)
	return nil
}

func (v *View) scheduledRefresh(ctx context.Context) {
	if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleLoad) && !errors.Is(err, ErrClosed) {
		v.logger.Debug("scheduled refresh failed", "error", err)
	}
}

// SetRiskBand changes the risk band filter. The next render fits the view.
// Setting the current band is a no-op.
func (v *View) SetRiskBand(band domain.RiskBand) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filter.RiskBand == band {
		return
	}
	v.filter.RiskBand = band
	v.filterChangedLocked()
}

// SetRegion changes the region filter. An empty region means all regions.
func (v *View) SetRegion(region string) {
	if region == "" {
		region = domain.AllOption
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filter.Region == region {
		return
	}
	v.filter.Region = region
	v.filterChangedLocked()
}

// SetHeatmap toggles the heat overlay.
func (v *View) SetHeatmap(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filter.HeatmapEnabled == enabled {
		return
	}
	v.filter.HeatmapEnabled = enabled
	v.renderLocked()
}

// SetAutoRefresh starts or stops periodic refresh. Every change discards any
// load already in flight and loads again: enabling through the scheduler's
// immediate run, disabling through a single background load. Setting the
// current value is a no-op.
func (v *View) SetAutoRefresh(enabled bool) {
	v.mu.Lock()
	if v.closed || v.filter.AutoRefreshEnabled == enabled {
		v.mu.Unlock()
		return
	}
	v.filter.AutoRefreshEnabled = enabled
	v.epoch++
	runCtx := v.ctx
	v.mu.Unlock()

	v.logger.Info("auto refresh toggled", "enabled", enabled)
	if runCtx == nil {
		// Not opened yet; Open starts the scheduler.
		return
	}
	if enabled {
		v.metrics.RefreshRunning.Set(1)
	} else {
		v.metrics.RefreshRunning.Set(0)
	}
	v.scheduler.SetEnabled(runCtx, enabled, v.scheduledRefresh, v.interval)
	if !enabled {
		go v.scheduledRefresh(runCtx)
	}
}

// MapReady activates the map session on s. It reports false if the session
// was already active.
func (v *View) MapReady(s mapsession.Surface) bool {
	return v.session.Ready(s)
}

// SessionID identifies the map session.
func (v *View) SessionID() string {
	return v.session.ID()
}

// Close stops the scheduler and discards any in-flight load.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.epoch++
	cancel := v.cancel
	v.mu.Unlock()

	v.scheduler.Stop()
	if cancel != nil {
		cancel()
	}
	v.metrics.RefreshRunning.Set(0)
	v.logger.Info("monitoring view closed")
}

// CheckReadiness reports ready once the first load attempt has finished.
func (v *View) CheckReadiness(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if !v.loaded {
		return errors.New("glacier data has not been loaded yet")
	}
	return nil
}

func (v *View) filterChangedLocked() {
	v.recomputeLocked()
	v.session.ResetViewAdjustment()
	v.renderLocked()
}

func (v *View) recomputeLocked() {
	v.filtered = domain.Filter(v.records, v.filter.RiskBand, v.filter.Region)
	v.stats = domain.Summarize(v.filtered)
	v.metrics.FilteredRecords.Set(float64(len(v.filtered)))
}

func (v *View) renderLocked() {
	v.session.Render(v.filtered, v.filter.HeatmapEnabled)
}

func (v *View) statusLocked() Status {
	switch {
	case !v.loaded:
		return StatusLoading
	case len(v.records) == 0:
		return StatusNoData
	case len(v.filtered) == 0:
		return StatusNoMatches
	default:
		return StatusReady
	}
}
