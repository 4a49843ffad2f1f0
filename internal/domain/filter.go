package domain

import (
	"fmt"
	"strings"
)

// AllOption is the selector sentinel that disables a filter.
const AllOption = "All"

// High and medium band thresholds on the 0-10 risk scale.
const (
	HighRiskThreshold   = 8.0
	MediumRiskThreshold = 5.0
)

// RiskBand is a named bucket of risk scores.
type RiskBand int

const (
	BandAll RiskBand = iota
	BandHigh
	BandMedium
	BandLow
)

var bandLabels = map[RiskBand]string{
	BandAll:    AllOption,
	BandHigh:   "High (8-10)",
	BandMedium: "Medium (5-7)",
	BandLow:    "Low (1-4)",
}

// RiskBandOptions lists the selector labels in display order.
func RiskBandOptions() []string {
	return []string{
		bandLabels[BandAll],
		bandLabels[BandHigh],
		bandLabels[BandMedium],
		bandLabels[BandLow],
	}
}

func (b RiskBand) String() string {
	if l, ok := bandLabels[b]; ok {
		return l
	}
	return "unknown"
}

// MarshalText encodes the band as its selector label.
func (b RiskBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts anything ParseRiskBand accepts.
func (b *RiskBand) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseRiskBand maps a selector label to a band. Labels match by prefix and
// case-insensitively, so "High (8-10)", "high" and "HIGH" are all BandHigh.
func ParseRiskBand(s string) (RiskBand, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "all":
		return BandAll, nil
	case strings.HasPrefix(v, "high"):
		return BandHigh, nil
	case strings.HasPrefix(v, "medium"):
		return BandMedium, nil
	case strings.HasPrefix(v, "low"):
		return BandLow, nil
	default:
		return BandAll, fmt.Errorf("unknown risk band %q", s)
	}
}

// Contains reports whether score falls in the band. Boundaries are half-open
// except at the top: 8 is High, never Medium. NaN belongs only to BandAll.
func (b RiskBand) Contains(score float64) bool {
	switch b {
	case BandAll:
		return true
	case BandHigh:
		return score >= HighRiskThreshold
	case BandMedium:
		return score >= MediumRiskThreshold && score < HighRiskThreshold
	case BandLow:
		return score < MediumRiskThreshold
	default:
		return false
	}
}

// FilterState holds the user-selected view options. It lives only in memory.
type FilterState struct {
	RiskBand           RiskBand `json:"risk_band"`
	Region             string   `json:"region"`
	HeatmapEnabled     bool     `json:"heatmap"`
	AutoRefreshEnabled bool     `json:"auto_refresh"`
}

// DefaultFilterState shows every record with overlays and refresh off.
func DefaultFilterState() FilterState {
	return FilterState{RiskBand: BandAll, Region: AllOption}
}

// Filter returns the records that satisfy both the band and region predicates,
// in input order. The input slice is never modified.
func Filter(records []Record, band RiskBand, region string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !band.Contains(r.RiskScore) {
			continue
		}
		if region != AllOption && region != "" && regionOf(r) != region {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Regions returns the region selector options: AllOption first, then each
// distinct region in order of first occurrence. The order is intentionally
// left unsorted so options track the source file.
func Regions(records []Record) []string {
	seen := map[string]bool{AllOption: true}
	out := []string{AllOption}
	for _, r := range records {
		reg := regionOf(r)
		if seen[reg] {
			continue
		}
		seen[reg] = true
		out = append(out, reg)
	}
	return out
}

// regionOf treats an empty region as Unknown so the selector and the
// predicate agree.
func regionOf(r Record) string {
	if r.Region == "" {
		return UnknownValue
	}
	return r.Region
}
