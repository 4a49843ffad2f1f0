package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert is a notice published for a site in the High risk band.
type Alert struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
	RiskScore  float64   `json:"risk_score"`
	AlertLevel string    `json:"alert_level"`
	Geo        LatLng    `json:"geo"`
	DetectedAt time.Time `json:"detected_at"`
}

// OutputAlert is the serialized form destined for the alert topic.
type OutputAlert struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// HighRiskAlerts builds one alert per High-band record, stamped with the
// package clock. Missing alert levels are reported as "High".
func HighRiskAlerts(records []Record) []Alert {
	now := Now()
	var alerts []Alert
	for _, r := range records {
		if !BandHigh.Contains(r.RiskScore) {
			continue
		}
		level := "High"
		if r.AlertLevel != nil && *r.AlertLevel != "" {
			level = *r.AlertLevel
		}
		alerts = append(alerts, Alert{
			Key:        r.Key(),
			Name:       r.Name,
			Region:     r.Region,
			RiskScore:  r.RiskScore,
			AlertLevel: level,
			Geo:        LatLng{Lat: r.Latitude, Lng: r.Longitude},
			DetectedAt: now,
		})
	}
	return alerts
}

// SerializeAlert marshals an alert into its keyed output form.
func SerializeAlert(a Alert) (OutputAlert, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return OutputAlert{}, fmt.Errorf("serialize alert: %w", err)
	}
	return OutputAlert{
		Key:   []byte(a.Key),
		Value: data,
		Headers: map[string]string{
			"alert_level": a.AlertLevel,
			"detected_at": a.DetectedAt.Format(time.RFC3339),
		},
	}, nil
}
