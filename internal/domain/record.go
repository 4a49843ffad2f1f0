package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// UnknownValue is the placeholder for a name or region missing from the source.
const UnknownValue = "Unknown"

// Record is one monitored glacier site observation.
type Record struct {
	ID          string
	Name        string
	Latitude    float64
	Longitude   float64
	Region      string
	RiskScore   float64
	Temperature float64
	AlertLevel  *string // nil when the source has no alert_level column
	LastUpdated *string // source text, never parsed
}

// Key returns a stable identifier for the record: the source id when present,
// otherwise a short SHA-256 of name|lat|lon. Stable keys let downstream
// consumers upsert alerts idempotently across refresh cycles.
func (r Record) Key() string {
	if r.ID != "" {
		return r.ID
	}
	input := fmt.Sprintf("%s|%.4f|%.4f", r.Name, r.Latitude, r.Longitude)
	hash := sha256.Sum256([]byte(input))
	return "site-" + hex.EncodeToString(hash[:8])
}

// recordJSON is the wire form of a Record. NaN values are not representable
// in JSON, so numeric fields that may hold NaN are pointers encoded as null.
type recordJSON struct {
	ID          string   `json:"id,omitempty"`
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Region      string   `json:"region"`
	RiskScore   *float64 `json:"risk_score"`
	Temperature *float64 `json:"temperature"`
	AlertLevel  *string  `json:"alert_level,omitempty"`
	LastUpdated *string  `json:"last_updated,omitempty"`
}

// MarshalJSON encodes the record, writing NaN risk scores and temperatures as null.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:          r.ID,
		Key:         r.Key(),
		Name:        r.Name,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Region:      r.Region,
		RiskScore:   finiteOrNil(r.RiskScore),
		Temperature: finiteOrNil(r.Temperature),
		AlertLevel:  r.AlertLevel,
		LastUpdated: r.LastUpdated,
	})
}

// UnmarshalJSON decodes the wire form; null numeric fields become NaN.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Record{
		ID:          w.ID,
		Name:        w.Name,
		Latitude:    w.Latitude,
		Longitude:   w.Longitude,
		Region:      w.Region,
		RiskScore:   nilToNaN(w.RiskScore),
		Temperature: nilToNaN(w.Temperature),
		AlertLevel:  w.AlertLevel,
		LastUpdated: w.LastUpdated,
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nilToNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ParseError describes a source row that was dropped during parsing.
type ParseError struct {
	Line   int    `json:"line"` // 1-indexed line in the source text, header is line 1
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParseResult is the outcome of parsing one source document: the records that
// passed validation and the rows that were skipped, in source order.
type ParseResult struct {
	Records []Record     `json:"records"`
	Skipped []ParseError `json:"skipped"`
}
