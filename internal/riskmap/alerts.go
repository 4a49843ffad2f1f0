package riskmap

import (
	"context"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// Alert publishing retries with exponential backoff: start at 200ms, double
// each attempt, cap at 5s.
const (
	publishAttempts   = 3
	initialBackoff    = 200 * time.Millisecond
	maxPublishBackoff = 5 * time.Second
)

// publishAlerts hands alerts to the publisher, retrying transient failures.
// A publish that still fails is logged; it never affects the committed view.
func (v *View) publishAlerts(ctx context.Context, alerts []domain.Alert) {
	if v.publisher == nil || len(alerts) == 0 {
		return
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := v.publisher.PublishAlerts(ctx, alerts)
		if err == nil {
			v.logger.Info("high risk alerts published", "count", len(alerts))
			return
		}
		if attempt == publishAttempts || ctx.Err() != nil {
			v.logger.Error("publish alerts failed", "error", err, "count", len(alerts), "attempts", attempt)
			return
		}
		v.logger.Warn("publish alerts failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = retry.NextBackoff(backoff, maxPublishBackoff)
	}
}
