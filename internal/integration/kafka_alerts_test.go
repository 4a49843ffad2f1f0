//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/adapter/kafka"
	"github.com/couchcryptid/glacier-risk-map/internal/config"
	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/loader"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/couchcryptid/glacier-risk-map/internal/observability"
	"github.com/couchcryptid/glacier-risk-map/internal/riskmap"
	"github.com/couchcryptid/glacier-risk-map/internal/scheduler"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAlertTopic = "test-glacier-alerts"

const sitesCSV = "id,name,latitude,longitude,region,risk_score,temperature,alert_level\n" +
	"imja,Imja Tsho,27.898,86.925,Khumbu,8.4,-3.2,Critical\n" +
	"rolpa,Tsho Rolpa,27.866,86.478,Rolwaling,6.1,-1.5,Moderate\n" +
	"lumding,Lumding Tsho,27.783,86.613,Khumbu,9.1,-4.0,\n"

// TestHighRiskAlertsReachKafka loads a CSV file through the real loader and
// checks that each High-band site arrives on the alert topic keyed by site.
func TestHighRiskAlertsReachKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	path := filepath.Join(t.TempDir(), "glacier_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sitesCSV), 0o600))

	cfg := &config.Config{
		KafkaBrokers:    []string{broker},
		KafkaAlertTopic: testAlertTopic,
	}
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	writer := kafka.NewWriter(cfg, logger, metrics)
	t.Cleanup(func() { _ = writer.Close() })

	view := riskmap.New(
		loader.New(path, loader.Options{}, logger, metrics),
		mapsession.New(logger, metrics),
		scheduler.New(nil, logger),
		logger,
		metrics,
		riskmap.WithAlertPublisher(writer),
	)
	t.Cleanup(view.Close)

	require.NoError(t, view.Refresh(ctx))
	require.Equal(t, riskmap.StatusReady, view.Snapshot(ctx).Status)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testAlertTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := map[string]domain.Alert{}
	headers := map[string]map[string]string{}
	for len(got) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from alert topic")

		var alert domain.Alert
		require.NoError(t, json.Unmarshal(msg.Value, &alert))
		got[string(msg.Key)] = alert

		h := make(map[string]string, len(msg.Headers))
		for _, hdr := range msg.Headers {
			h[hdr.Key] = string(hdr.Value)
		}
		headers[string(msg.Key)] = h
	}

	require.Contains(t, got, "imja")
	require.Contains(t, got, "lumding")
	assert.NotContains(t, got, "rolpa")

	assert.Equal(t, "Critical", got["imja"].AlertLevel)
	assert.Equal(t, "Khumbu", got["imja"].Region)
	assert.InDelta(t, 8.4, got["imja"].RiskScore, 1e-9)
	assert.Equal(t, "High", got["lumding"].AlertLevel)

	assert.Equal(t, "Critical", headers["imja"]["alert_level"])
	assert.NotEmpty(t, headers["imja"]["detected_at"])
}
