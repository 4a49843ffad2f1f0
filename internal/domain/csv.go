package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// newlines normalizes CRLF and bare CR line endings to LF before splitting.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Column names as published by the analysis backend. Each field is looked up
// by its lower-case name first and the capitalized variant second.
var (
	colID          = []string{"id"}
	colName        = []string{"name", "Name"}
	colLatitude    = []string{"latitude", "Latitude"}
	colLongitude   = []string{"longitude", "Longitude"}
	colRegion      = []string{"region", "Region"}
	colRiskScore   = []string{"risk_score", "Risk_Score"}
	colTemperature = []string{"temperature", "Temperature"}
	colAlertLevel  = []string{"alert_level", "Alert_Level"}
	colLastUpdated = []string{"last_updated", "Last_Updated"}
)

// ParseCSV parses glacier site text into records. Input with fewer than two
// lines yields an empty result. Rows whose coordinates are not finite numbers
// are reported in Skipped and never appear in Records.
func ParseCSV(text string) ParseResult {
	lines := strings.Split(newlines.Replace(strings.TrimSpace(text)), "\n")
	if len(lines) < 2 {
		return ParseResult{}
	}

	headers := splitFields(lines[0])

	var result ParseResult
	for i, line := range lines[1:] {
		rec, err := parseRow(headers, line)
		if err != nil {
			result.Skipped = append(result.Skipped, ParseError{
				Line:   i + 2,
				Raw:    line,
				Reason: err.Error(),
			})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

func parseRow(headers []string, line string) (Record, error) {
	parts := splitFields(line)

	// Later duplicates overwrite earlier ones: last column wins.
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(parts) {
			fields[h] = parts[i]
		}
	}

	latRaw, latOK := lookup(fields, colLatitude)
	lonRaw, lonOK := lookup(fields, colLongitude)
	lat := parseNumber(latRaw, latOK)
	lon := parseNumber(lonRaw, lonOK)
	if !isFinite(lat) {
		return Record{}, fmt.Errorf("latitude is not a finite number: %q", latRaw)
	}
	if !isFinite(lon) {
		return Record{}, fmt.Errorf("longitude is not a finite number: %q", lonRaw)
	}

	rec := Record{
		Name:      UnknownValue,
		Latitude:  lat,
		Longitude: lon,
		Region:    UnknownValue,
	}
	if v, ok := lookup(fields, colID); ok {
		rec.ID = v
	}
	if v, ok := lookup(fields, colName); ok {
		rec.Name = v
	}
	if v, ok := lookup(fields, colRegion); ok {
		rec.Region = v
	}
	risk, ok := lookup(fields, colRiskScore)
	rec.RiskScore = parseNumber(risk, ok)
	temp, ok := lookup(fields, colTemperature)
	rec.Temperature = parseNumber(temp, ok)
	if v, ok := lookup(fields, colAlertLevel); ok {
		rec.AlertLevel = &v
	}
	if v, ok := lookup(fields, colLastUpdated); ok {
		rec.LastUpdated = &v
	}
	return rec, nil
}

// splitFields splits a line on commas, trimming whitespace and one pair of
// surrounding quotes from each field. Quoted commas are not supported.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = unquote(strings.TrimSpace(p))
	}
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func lookup(fields map[string]string, names []string) (string, bool) {
	for _, n := range names {
		if v, ok := fields[n]; ok {
			return v, true
		}
	}
	return "", false
}

// parseNumber returns NaN for absent, empty, or malformed values.
func parseNumber(s string, present bool) float64 {
	s = strings.TrimSpace(s)
	if !present || s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
