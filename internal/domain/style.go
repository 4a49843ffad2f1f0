package domain

import (
	"math"
	"strconv"
)

// Marker colors by risk score.
const (
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorGreen  = "green"
)

// Fallback heat circle radius bounds, in meters.
const (
	MinHeatRadius    = 5000.0
	MaxHeatRadius    = 50000.0
	heatRadiusPerDeg = 2000.0
)

// NotAvailable is shown for optional fields missing from the source.
const NotAvailable = "N/A"

// RiskColor maps a risk score to a marker color:
// >=8 red, >=6 orange, >=4 yellow, else green.
func RiskColor(score float64) string {
	switch {
	case score >= 8:
		return ColorRed
	case score >= 6:
		return ColorOrange
	case score >= 4:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// Detail is the display form of a record used for marker popups and the
// selected-site panel. Numbers are preformatted so NaN shows as "NaN".
type Detail struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Region      string `json:"region"`
	RiskScore   string `json:"risk_score"`  // one decimal, e.g. "8.4/10"
	Temperature string `json:"temperature"` // one decimal, e.g. "-3.2°C"
	AlertLevel  string `json:"alert_level"`
	LastUpdated string `json:"last_updated"`
	Coordinates string `json:"coordinates"` // four decimals, "lat, lng"
	Color       string `json:"color"`

	// Reverse geocoding enrichment, empty when disabled or unavailable.
	Place            string `json:"place,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
}

// DescribeRecord formats a record for display.
func DescribeRecord(r Record) Detail {
	return Detail{
		Key:         r.Key(),
		Name:        r.Name,
		Region:      r.Region,
		RiskScore:   FormatDecimal(r.RiskScore, 1) + "/10",
		Temperature: FormatDecimal(r.Temperature, 1) + "°C",
		AlertLevel:  orNotAvailable(r.AlertLevel),
		LastUpdated: orNotAvailable(r.LastUpdated),
		Coordinates: FormatDecimal(r.Latitude, 4) + ", " + FormatDecimal(r.Longitude, 4),
		Color:       RiskColor(r.RiskScore),
	}
}

// FormatDecimal formats v with a fixed number of decimals. NaN is "NaN".
func FormatDecimal(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func orNotAvailable(s *string) string {
	if s == nil {
		return NotAvailable
	}
	return *s
}

// HeatPoint is one weighted sample of the temperature heat layer.
type HeatPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
}

// HeatPoints builds (lat, lng, |temperature|) samples. NaN temperatures
// weigh zero.
func HeatPoints(records []Record) []HeatPoint {
	out := make([]HeatPoint, 0, len(records))
	for _, r := range records {
		out = append(out, HeatPoint{
			Lat:       r.Latitude,
			Lng:       r.Longitude,
			Intensity: math.Abs(zeroIfNaN(r.Temperature)),
		})
	}
	return out
}

// HeatRadius sizes a fallback heat circle linearly in |temperature|,
// clamped to [MinHeatRadius, MaxHeatRadius].
func HeatRadius(temperature float64) float64 {
	r := math.Abs(zeroIfNaN(temperature)) * heatRadiusPerDeg
	return math.Min(MaxHeatRadius, math.Max(MinHeatRadius, r))
}
