package domain

import "math"

// SummaryStats aggregates the filtered records shown on the map.
type SummaryStats struct {
	Count              int     `json:"count"`
	HighRiskCount      int     `json:"high_risk_count"`
	AverageTemperature float64 `json:"average_temperature"`
	AverageRiskScore   float64 `json:"average_risk_score"`
}

// Summarize computes stats over records. An empty input yields zero stats.
// NaN risk scores and temperatures contribute zero to the sums but still
// count toward the denominator.
func Summarize(records []Record) SummaryStats {
	s := SummaryStats{Count: len(records)}
	if s.Count == 0 {
		return s
	}

	var tempSum, riskSum float64
	for _, r := range records {
		if r.RiskScore >= HighRiskThreshold {
			s.HighRiskCount++
		}
		tempSum += zeroIfNaN(r.Temperature)
		riskSum += zeroIfNaN(r.RiskScore)
	}
	s.AverageTemperature = tempSum / float64(s.Count)
	s.AverageRiskScore = riskSum / float64(s.Count)
	return s
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
