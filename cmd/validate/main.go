// Command validate checks a glacier data CSV the way the monitoring view will
// read it. It reports skipped rows, out-of-range values and duplicate site
// keys, then prints per-band and per-region stats.
//
// Usage:
//
//	go run ./cmd/validate -file data/mock/glacier_data.csv
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "path to the glacier data CSV")
	allowSkipped := flag.Bool("allow-skipped", false, "do not fail on skipped rows")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*file, *allowSkipped); code != 0 {
		os.Exit(code)
	}
}

func run(path string, allowSkipped bool) int {
	fmt.Println("=== Glacier Data Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", path, err)
		return 1
	}
	result := domain.ParseCSV(string(data))

	phases := []*phase{
		validateParse(result, allowSkipped),
		validateCoordinates(result.Records),
		validateRiskScores(result.Records),
		validateKeys(result.Records),
		validateBandPartition(result.Records),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-30s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d loaded, %d skipped\n", len(result.Records), len(result.Skipped))
	printStats(result.Records)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateParse(result domain.ParseResult, allowSkipped bool) *phase {
	p := &phase{name: "Parse"}
	if len(result.Records) == 0 {
		p.errorf("no records parsed")
	}
	if allowSkipped {
		return p
	}
	for _, s := range result.Skipped {
		p.errorf("line %d skipped (%s): %q", s.Line, s.Reason, s.Raw)
	}
	return p
}

func validateCoordinates(records []domain.Record) *phase {
	p := &phase{name: "Coordinate ranges"}
	for _, r := range records {
		if r.Latitude < -90 || r.Latitude > 90 {
			p.errorf("%s: latitude %v out of range", r.Name, r.Latitude)
		}
		if r.Longitude < -180 || r.Longitude > 180 {
			p.errorf("%s: longitude %v out of range", r.Name, r.Longitude)
		}
	}
	return p
}

func validateRiskScores(records []domain.Record) *phase {
	p := &phase{name: "Risk scores"}
	for _, r := range records {
		switch {
		case math.IsNaN(r.RiskScore):
			p.errorf("%s: risk score missing or not numeric", r.Name)
		case r.RiskScore < 0 || r.RiskScore > 10:
			p.errorf("%s: risk score %v outside 0-10", r.Name, r.RiskScore)
		}
		if math.IsNaN(r.Temperature) {
			p.errorf("%s: temperature missing or not numeric", r.Name)
		}
	}
	return p
}

func validateKeys(records []domain.Record) *phase {
	p := &phase{name: "Unique site keys"}
	seen := make(map[string]string, len(records))
	for _, r := range records {
		key := r.Key()
		if prev, ok := seen[key]; ok {
			p.errorf("key %s shared by %q and %q", key, prev, r.Name)
			continue
		}
		seen[key] = r.Name
	}
	return p
}

// validateBandPartition checks that every scored record falls in exactly one
// of the High, Medium and Low bands.
func validateBandPartition(records []domain.Record) *phase {
	p := &phase{name: "Band partition"}
	bands := []domain.RiskBand{domain.BandHigh, domain.BandMedium, domain.BandLow}
	for _, r := range records {
		if math.IsNaN(r.RiskScore) {
			continue
		}
		n := 0
		for _, b := range bands {
			if b.Contains(r.RiskScore) {
				n++
			}
		}
		if n != 1 {
			p.errorf("%s: risk score %v matches %d bands", r.Name, r.RiskScore, n)
		}
	}
	return p
}

func printStats(records []domain.Record) {
	all := domain.Summarize(records)
	fmt.Printf("All: count=%d high=%d avg_risk=%.2f avg_temp=%.2f\n",
		all.Count, all.HighRiskCount, all.AverageRiskScore, all.AverageTemperature)
	for _, band := range []domain.RiskBand{domain.BandHigh, domain.BandMedium, domain.BandLow} {
		s := domain.Summarize(domain.Filter(records, band, domain.AllOption))
		fmt.Printf("  %-14s count=%d avg_risk=%.2f avg_temp=%.2f\n",
			band, s.Count, s.AverageRiskScore, s.AverageTemperature)
	}
	for _, region := range domain.Regions(records)[1:] {
		s := domain.Summarize(domain.Filter(records, domain.BandAll, region))
		fmt.Printf("  %-14s count=%d high=%d\n", region, s.Count, s.HighRiskCount)
	}
}
