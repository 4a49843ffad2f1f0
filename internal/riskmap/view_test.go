package riskmap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/adapter/mapview"
	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/couchcryptid/glacier-risk-map/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 15 * time.Second

	himalayaCSV = "name,latitude,longitude,region,risk_score,temperature,alert_level\n" +
		"Imja Tsho,27.898,86.925,Khumbu,8.4,-3.2,Critical\n" +
		"Tsho Rolpa,27.866,86.478,Rolwaling,6.1,-1.5,Moderate\n" +
		"Thulagi,28.486,84.485,Manaslu,3.9,-6.0,Low\n"
)

var errFetch = errors.New("connection refused")

type fakeLoader struct {
	mu     sync.Mutex
	result domain.ParseResult
	err    error
	gate   chan struct{}
	calls  atomic.Int32
	called chan struct{}
}

func newFakeLoader(text string) *fakeLoader {
	return &fakeLoader{result: domain.ParseCSV(text), called: make(chan struct{}, 16)}
}

func (f *fakeLoader) set(result domain.ParseResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = result, err
}

func (f *fakeLoader) Load(ctx context.Context) (domain.ParseResult, error) {
	f.calls.Add(1)
	f.called <- struct{}{}

	f.mu.Lock()
	gate, result, err := f.gate, f.result, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return result, err
}

func (f *fakeLoader) await(t *testing.T) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load")
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	batches  [][]domain.Alert
	failures int
}

func (p *fakePublisher) PublishAlerts(_ context.Context, alerts []domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, alerts)
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	return nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{PlaceName: "Chhukung", FormattedAddress: "Chhukung, Khumjung, Nepal"}, nil
}

type fixture struct {
	view    *View
	loader  *fakeLoader
	session *mapsession.Manager
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newFixture(t *testing.T, text string, opts ...Option) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetricsForTesting()
	session := mapsession.New(logger, metrics)
	loader := newFakeLoader(text)
	v := New(loader, session, scheduler.New(fc, logger), logger, metrics, opts...)
	t.Cleanup(v.Close)

	return &fixture{view: v, loader: loader, session: session, clock: fc, metrics: metrics}
}

func TestView_LoadingBeforeFirstLoad(t *testing.T) {
	f := newFixture(t, himalayaCSV)

	snap := f.view.Snapshot(context.Background())
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Empty(t, snap.Records)
	assert.Equal(t, []string{domain.AllOption}, snap.Regions)
	assert.Nil(t, snap.LastUpdated)
	require.Error(t, f.view.CheckReadiness(context.Background()))
}

func TestView_RefreshCommits(t *testing.T) {
	f := newFixture(t, himalayaCSV)

	require.NoError(t, f.view.Refresh(context.Background()))

	snap := f.view.Snapshot(context.Background())
	assert.Equal(t, StatusReady, snap.Status)
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, []string{"All", "Khumbu", "Rolwaling", "Manaslu"}, snap.Regions)
	assert.Equal(t, domain.RiskBandOptions(), snap.RiskBands)
	assert.Equal(t, 3, snap.Stats.Count)
	assert.Equal(t, 1, snap.Stats.HighRiskCount)
	require.NotNil(t, snap.LastUpdated)
	assert.Equal(t, f.clock.Now().UTC(), *snap.LastUpdated)
	assert.Equal(t, f.session.ID(), snap.SessionID)
	require.NoError(t, f.view.CheckReadiness(context.Background()))
	assert.InDelta(t, 3, testutil.ToFloat64(f.metrics.RecordsLoaded), 0)
}

func TestView_ScenarioSkipsBadLatitude(t *testing.T) {
	f := newFixture(t, "name,latitude,longitude,region,risk_score,temperature\nA,30.1,80.2,X,9,-5\nB,bad,80.2,X,3,-2\n")

	require.NoError(t, f.view.Refresh(context.Background()))

	snap := f.view.Snapshot(context.Background())
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "A", snap.Records[0].Name)
	assert.Equal(t, domain.SummaryStats{Count: 1, HighRiskCount: 1, AverageTemperature: -5, AverageRiskScore: 9}, snap.Stats)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, 3, snap.Skipped[0].Line)
}

func TestView_FirstLoadFailureIsNoData(t *testing.T) {
	f := newFixture(t, "")
	f.loader.set(domain.ParseResult{}, errFetch)

	err := f.view.Refresh(context.Background())
	require.ErrorIs(t, err, errFetch)

	snap := f.view.Snapshot(context.Background())
	assert.Equal(t, StatusNoData, snap.Status)
	assert.NoError(t, f.view.CheckReadiness(context.Background()))
}

func TestView_FailedRefreshKeepsRecords(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	require.NoError(t, f.view.Refresh(context.Background()))
	first := f.view.Snapshot(context.Background())

	f.clock.Advance(time.Minute)
	f.loader.set(domain.ParseResult{}, errFetch)
	require.Error(t, f.view.Refresh(context.Background()))

	snap := f.view.Snapshot(context.Background())
	assert.Equal(t, StatusReady, snap.Status)
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, first.LastUpdated, snap.LastUpdated)
}

func TestView_RefreshReplacesCollection(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	require.NoError(t, f.view.Refresh(context.Background()))

	f.loader.set(domain.ParseCSV("name,latitude,longitude\nOnly,1,2"), nil)
	require.NoError(t, f.view.Refresh(context.Background()))

	snap := f.view.Snapshot(context.Background())
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "Only", snap.Records[0].Name)
}

func TestView_Filters(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	require.NoError(t, f.view.Refresh(context.Background()))

	t.Run("risk band", func(t *testing.T) {
		f.view.SetRiskBand(domain.BandMedium)
		snap := f.view.Snapshot(context.Background())
		require.Len(t, snap.Records, 1)
		assert.Equal(t, "Tsho Rolpa", snap.Records[0].Name)
		assert.Equal(t, domain.BandMedium, snap.Filter.RiskBand)
	})

	t.Run("no matches", func(t *testing.T) {
		f.view.SetRiskBand(domain.BandHigh)
		f.view.SetRegion("Manaslu")
		snap := f.view.Snapshot(context.Background())
		assert.Equal(t, StatusNoMatches, snap.Status)
		assert.Empty(t, snap.Records)
		assert.Equal(t, domain.SummaryStats{}, snap.Stats)
		assert.Len(t, snap.Regions, 4, "regions come from the full collection")
	})

	t.Run("empty region means all", func(t *testing.T) {
		f.view.SetRiskBand(domain.BandAll)
		f.view.SetRegion("")
		snap := f.view.Snapshot(context.Background())
		assert.Equal(t, domain.AllOption, snap.Filter.Region)
		assert.Len(t, snap.Records, 3)
	})
}

func TestView_HighBandBoundary(t *testing.T) {
	f := newFixture(t, "name,latitude,longitude,risk_score\na,1,1,7.9\nb,2,2,8.0\nc,3,3,8.1\n")
	require.NoError(t, f.view.Refresh(context.Background()))

	f.view.SetRiskBand(domain.BandHigh)
	snap := f.view.Snapshot(context.Background())
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "b", snap.Records[0].Name)
	assert.Equal(t, "c", snap.Records[1].Name)
}

func TestView_RenderDeferredUntilMapReady(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	require.NoError(t, f.view.Refresh(context.Background()))
	assert.Equal(t, 0, f.session.Renders())

	surface := mapview.New()
	require.True(t, f.view.MapReady(surface))
	assert.False(t, f.view.MapReady(mapview.New()))
	assert.Equal(t, 1, f.session.Renders())
	assert.Len(t, surface.Layers().Features.Features, 3)
}

func TestView_HeatmapToggle(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	surface := mapview.New()
	f.view.MapReady(surface)
	require.NoError(t, f.view.Refresh(context.Background()))
	renders := f.session.Renders()

	f.view.SetHeatmap(true)
	assert.Equal(t, renders+1, f.session.Renders())
	assert.True(t, f.view.Snapshot(context.Background()).Filter.HeatmapEnabled)
	// Plain surface: fallback circles plus markers.
	assert.Len(t, surface.Layers().Features.Features, 6)

	f.view.SetHeatmap(true)
	assert.Equal(t, renders+1, f.session.Renders(), "unchanged value does not re-render")
}

func TestView_FilterChangeResetsUserAdjustedView(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	surface := mapview.New()
	f.view.MapReady(surface)
	require.NoError(t, f.view.Refresh(context.Background()))

	panned := domain.Bounds{South: 27, West: 85, North: 29, East: 88}
	surface.SetView(panned)
	require.True(t, f.session.UserAdjustedView())

	// A data update keeps the user's view.
	require.NoError(t, f.view.Refresh(context.Background()))
	assert.Equal(t, panned, *surface.Layers().View)

	f.view.SetRegion("Khumbu")
	assert.False(t, f.session.UserAdjustedView())
	assert.NotEqual(t, panned, *surface.Layers().View)
}

func TestView_UnchangedFilterKeepsUserAdjustedView(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	surface := mapview.New()
	f.view.MapReady(surface)
	require.NoError(t, f.view.Refresh(context.Background()))

	panned := domain.Bounds{South: 27, West: 85, North: 29, East: 88}
	surface.SetView(panned)
	renders := f.session.Renders()

	f.view.SetRiskBand(domain.BandAll)
	f.view.SetRegion(domain.AllOption)
	f.view.SetRegion("")

	assert.True(t, f.session.UserAdjustedView())
	assert.Equal(t, panned, *surface.Layers().View)
	assert.Equal(t, renders, f.session.Renders())
}

func TestView_SelectedSiteEnriched(t *testing.T) {
	f := newFixture(t, himalayaCSV, WithGeocoder(stubGeocoder{}))
	surface := mapview.New()
	f.view.MapReady(surface)
	require.NoError(t, f.view.Refresh(context.Background()))

	assert.Nil(t, f.view.Snapshot(context.Background()).Selected)

	surface.Click(domain.LatLng{Lat: 27.9, Lng: 86.9})
	snap := f.view.Snapshot(context.Background())
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "Imja Tsho", snap.Selected.Name)
	assert.Equal(t, "8.4/10", snap.Selected.RiskScore)
	assert.Equal(t, "Chhukung", snap.Selected.Place)
	require.NotNil(t, snap.ClickDistanceMeters)
	assert.InDelta(t, 2467, *snap.ClickDistanceMeters, 5)

	f.view.SetRegion("Manaslu")
	snap = f.view.Snapshot(context.Background())
	require.NotNil(t, snap.Selected, "selection follows the filtered records")
	assert.Equal(t, "Thulagi", snap.Selected.Name)
	require.NotNil(t, snap.ClickDistanceMeters)
	assert.InDelta(t, 245477, *snap.ClickDistanceMeters, 500)
}

func TestView_CloseDiscardsInFlightLoad(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	f.loader.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- f.view.Refresh(context.Background()) }()
	f.loader.await(t)

	f.view.Close()
	close(f.loader.gate)

	require.ErrorIs(t, <-errc, ErrClosed)
	assert.Equal(t, StatusLoading, f.view.Snapshot(context.Background()).Status)
	assert.ErrorIs(t, f.view.Refresh(context.Background()), ErrClosed)
}

func TestView_AutoRefreshToggleDiscardsInFlightLoad(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	f.loader.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- f.view.Refresh(context.Background()) }()
	f.loader.await(t)

	f.view.SetAutoRefresh(true)
	close(f.loader.gate)

	require.ErrorIs(t, <-errc, ErrStaleLoad)
	assert.Empty(t, f.view.Snapshot(context.Background()).Records)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StaleLoadsDiscarded), 0)
}

func TestView_AutoRefreshToggleDuringInitialLoadStillLoads(t *testing.T) {
	f := newFixture(t, himalayaCSV)
	f.loader.gate = make(chan struct{})

	f.view.Open(context.Background())
	f.loader.await(t)

	f.view.SetAutoRefresh(true)
	f.loader.await(t)
	f.view.SetAutoRefresh(false)
	f.loader.await(t)

	close(f.loader.gate)
	require.Eventually(t, func() bool {
		return f.view.Snapshot(context.Background()).Status == StatusReady
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, f.view.CheckReadiness(context.Background()))
	assert.Len(t, f.view.Snapshot(context.Background()).Records, 3)
	assert.Equal(t, int32(3), f.loader.calls.Load())
}

func TestView_OpenLoadsOnce(t *testing.T) {
	f := newFixture(t, himalayaCSV)

	f.view.Open(context.Background())
	f.loader.await(t)
	require.Eventually(t, func() bool {
		return f.view.Snapshot(context.Background()).Status == StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	f.view.Open(context.Background())
	f.clock.Advance(testInterval)
	assert.Never(t, func() bool { return f.loader.calls.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestView_AutoRefresh(t *testing.T) {
	f := newFixture(t, himalayaCSV, WithAutoRefresh(true, testInterval))

	f.view.Open(context.Background())
	f.loader.await(t)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RefreshRunning), 0)

	f.clock.Advance(testInterval)
	f.loader.await(t)
	assert.Equal(t, int32(2), f.loader.calls.Load())

	f.view.SetAutoRefresh(false)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.RefreshRunning), 0)
	f.loader.await(t)
	f.clock.Advance(testInterval)
	assert.Never(t, func() bool { return f.loader.calls.Load() > 3 }, 100*time.Millisecond, 10*time.Millisecond)

	f.view.SetAutoRefresh(true)
	f.loader.await(t)
	assert.True(t, f.view.Snapshot(context.Background()).Filter.AutoRefreshEnabled)
}

func TestView_PublishesHighRiskAlerts(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	f := newFixture(t, himalayaCSV, WithAlertPublisher(pub))

	require.NoError(t, f.view.Refresh(context.Background()))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 2, "one failed attempt then a retry")
	require.Len(t, pub.batches[1], 1)
	alert := pub.batches[1][0]
	assert.Equal(t, "Imja Tsho", alert.Name)
	assert.Equal(t, "Critical", alert.AlertLevel)
	assert.Equal(t, f.clock.Now().UTC(), alert.DetectedAt)
}

func TestView_PublishFailureKeepsView(t *testing.T) {
	pub := &fakePublisher{failures: publishAttempts}
	f := newFixture(t, himalayaCSV, WithAlertPublisher(pub))

	require.NoError(t, f.view.Refresh(context.Background()))
	assert.Equal(t, StatusReady, f.view.Snapshot(context.Background()).Status)
	assert.Len(t, pub.batches, publishAttempts)
}

func TestSnapshot_JSON(t *testing.T) {
	f := newFixture(t, "name,latitude,longitude,risk_score,temperature\nNaNSite,1,2,,bad\n")
	require.NoError(t, f.view.Refresh(context.Background()))

	data, err := json.Marshal(f.view.Snapshot(context.Background()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ready", decoded["status"])
	records := decoded["records"].([]any)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].(map[string]any)["risk_score"])
	filter := decoded["filter"].(map[string]any)
	assert.Equal(t, "All", filter["risk_band"])
}
