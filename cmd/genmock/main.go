// Command genmock writes a deterministic glacier_data.csv fixture for local
// development and tests. Output is stable for a given -seed, so fixtures can
// be regenerated without churning test assertions. The file is parsed back
// through the domain package to report the numbers tests rely on.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/glacier_data.csv -count 60 -bad 2
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
)

var baseTime = time.Date(2024, time.May, 1, 6, 0, 0, 0, time.UTC)

var header = []string{"id", "name", "latitude", "longitude", "region", "risk_score", "temperature", "alert_level", "last_updated"}

// anchor is a real glacial lake used as the center of a cluster of
// synthetic sites.
type anchor struct {
	name   string
	region string
	lat    float64
	lon    float64
	risk   float64
}

var anchors = []anchor{
	{"Imja Tsho", "Khumbu", 27.898, 86.925, 8.4},
	{"Tsho Rolpa", "Rolwaling", 27.866, 86.478, 7.6},
	{"Thulagi", "Manaslu", 28.486, 84.485, 6.2},
	{"South Lhonak", "Sikkim", 27.911, 88.197, 9.1},
	{"Chorabari", "Garhwal", 30.752, 79.059, 5.4},
	{"Gepang Gath", "Lahaul", 32.387, 77.224, 4.1},
	{"Shishper", "Hunza", 36.407, 74.585, 3.2},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the generated CSV")
	count := flag.Int("count", 60, "number of valid rows")
	bad := flag.Int("bad", 0, "number of rows with unparseable coordinates")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" || *count <= 0 || *bad < 0 {
		flag.Usage()
		return fmt.Errorf("missing or invalid flags: -out, -count, -bad")
	}

	text := generate(*count, *bad, *seed)
	if err := writeFile(*out, text); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %s", *out)

	printStats(domain.ParseCSV(text))
	return nil
}

// generate builds count sites spread around the anchors, followed by bad
// rows whose latitude cannot be parsed.
func generate(count, bad int, seed uint64) string {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')

	for i := range count {
		a := anchors[i%len(anchors)]
		lat := a.lat + (rng.Float64()-0.5)*0.6
		lon := a.lon + (rng.Float64()-0.5)*0.6
		// Rounded up front so the alert level agrees with the written score.
		risk := round1(clamp(a.risk+(rng.Float64()-0.5)*3, 0, 10))
		temp := round1(-0.5 - rng.Float64()*12)
		updated := baseTime.Add(-time.Duration(rng.IntN(72)) * time.Hour)

		name := a.name
		if i >= len(anchors) {
			name = fmt.Sprintf("%s satellite %d", a.name, i/len(anchors))
		}
		row := []string{
			fmt.Sprintf("glof-%03d", i+1),
			name,
			fmt.Sprintf("%.4f", lat),
			fmt.Sprintf("%.4f", lon),
			a.region,
			fmt.Sprintf("%.1f", risk),
			fmt.Sprintf("%.1f", temp),
			alertLevel(risk),
			updated.Format("2006-01-02 15:04"),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}

	for i := range bad {
		fmt.Fprintf(&b, "glof-bad-%d,Unsurveyed %d,n/a,86.9,Khumbu,5.0,-2.0,,\n", i+1, i+1)
	}
	return b.String()
}

func alertLevel(risk float64) string {
	switch {
	case risk >= domain.HighRiskThreshold:
		return "Critical"
	case risk >= domain.MediumRiskThreshold:
		return "Warning"
	default:
		return "Normal"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func writeFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o600)
}

func printStats(result domain.ParseResult) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Records: %d, skipped: %d\n", len(result.Records), len(result.Skipped))

	for _, band := range []domain.RiskBand{domain.BandHigh, domain.BandMedium, domain.BandLow} {
		s := domain.Summarize(domain.Filter(result.Records, band, domain.AllOption))
		fmt.Printf("  %-14s count=%d avg_risk=%.2f avg_temp=%.2f\n",
			band, s.Count, s.AverageRiskScore, s.AverageTemperature)
	}

	fmt.Println("Regions:")
	for _, region := range domain.Regions(result.Records)[1:] {
		s := domain.Summarize(domain.Filter(result.Records, domain.BandAll, region))
		fmt.Printf("  %-10s count=%d high=%d\n", region, s.Count, s.HighRiskCount)
	}
}
