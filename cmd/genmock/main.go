// Command genmock generates reconciliation unit fixtures for a synthetic
// region: source A is a gridded yearly timeseries, source B publishes
// period deltas directly. It runs the generated units through the real
// engine and prints the figures test assertions depend on.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/units_generated.json
//	go run ./cmd/genmock -region val-grande -bbox 8.35,45.95,8.65,46.15 -seed 7 -out /tmp/units.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/exzackley/fondogis/internal/config"
	"github.com/exzackley/fondogis/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// indicatorDef describes the synthetic climate signal for one indicator.
type indicatorDef struct {
	name     string
	baseline float64
	// lapse is the change per degree of latitude across the region.
	lapse float64
	// trend is the per-scenario change at 2085, in the indicator's unit or
	// percent for relative indicators.
	trend    map[string]float64
	noise    float64
	relative bool
}

var indicators = []indicatorDef{
	{
		name: "temperature", baseline: 9.5, lapse: -0.6, noise: 0.3,
		trend: map[string]float64{"ssp126": 1.4, "ssp245": 2.6, "ssp585": 4.8},
	},
	{
		name: "precipitation", baseline: 1150, lapse: 40, noise: 25, relative: true,
		trend: map[string]float64{"ssp126": -2, "ssp245": -6, "ssp585": -14},
	},
}

// reportedNames maps source-A scenario ids to the compact form source B uses.
var reportedNames = map[string]string{"ssp126": "ssp1_26", "ssp245": "ssp2_45", "ssp585": "ssp5_85"}

var reportedPeriods = []struct {
	label string
	mid   int
}{
	{"early_century", 2025},
	{"mid_century", 2055},
	{"end_century", 2085},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the generated unit fixture")
	regionID := flag.String("region", "gran-paradiso", "region id")
	bbox := flag.String("bbox", "7.05,45.45,7.45,45.65", "region bounding box: minLon,minLat,maxLon,maxLat")
	resolution := flag.Float64("resolution", 0.1, "lattice step in degrees for source A points")
	step := flag.Int("year-step", 5, "years between source A samples")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	bound, err := parseBBox(*bbox)
	if err != nil {
		return err
	}
	boundary, err := json.Marshal(geojson.NewGeometry(bound.ToPolygon()))
	if err != nil {
		return err
	}
	region, err := domain.RegionFromGeoJSON(*regionID, boundary)
	if err != nil {
		return err
	}
	grid, err := domain.BuildGrid(region, *resolution)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	units := make([]domain.Unit, 0, len(indicators))
	for _, ind := range indicators {
		units = append(units, generateUnit(rng, ind, region, boundary, grid.Points(), *step))
	}

	if err := writeJSON(*out, units); err != nil {
		return fmt.Errorf("writing unit fixture: %w", err)
	}
	log.Printf("wrote %d units over %d points: %s", len(units), grid.Len(), *out)

	return printStats(units)
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 comma-separated numbers, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[2] <= v[0] || v[3] <= v[1] {
		return orb.Bound{}, fmt.Errorf("bbox %q is empty", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func generateUnit(rng *rand.Rand, ind indicatorDef, region *domain.Region, boundary []byte, points []orb.Point, step int) domain.Unit {
	centerLat := region.Centroid().Lat()

	// signal is the noiseless value at a point in a year under a scenario.
	signal := func(p orb.Point, year int, scenario string) float64 {
		base := ind.baseline + ind.lapse*(p.Lat()-centerLat)
		if scenario == "historical" || year <= 2010 {
			return base
		}
		frac := math.Min(float64(year-2010)/75, 1.2)
		if ind.relative {
			return base * (1 + ind.trend[scenario]*frac/100)
		}
		return base + ind.trend[scenario]*frac
	}

	series := []domain.SeriesInput{{Scenario: "historical", Samples: samples(rng, ind, points, 1981, 2010, step, "historical", signal)}}
	for _, sc := range []string{"ssp126", "ssp245", "ssp585"} {
		series = append(series, domain.SeriesInput{Scenario: sc, Samples: samples(rng, ind, points, 2011, 2100, step, sc, signal)})
	}

	var reported []domain.ReportedDelta
	for _, sc := range []string{"ssp126", "ssp245", "ssp585"} {
		for _, period := range reportedPeriods {
			frac := float64(period.mid-2010) / 75
			delta := ind.trend[sc] * frac
			// Source B disagrees a little more under the high-emission scenario.
			spread := 0.1
			if sc == "ssp585" {
				spread = 0.35
			}
			if ind.relative {
				spread *= 10
			}
			delta += rng.NormFloat64() * spread
			reported = append(reported, domain.ReportedDelta{
				Scenario:  reportedNames[sc],
				TimeLabel: period.label,
				Value:     domain.Present(round(delta, 2)),
			})
		}
	}

	return domain.Unit{
		Region:    domain.UnitRegion{ID: region.ID(), Boundary: boundary},
		Indicator: ind.name,
		A:         domain.SourceInput{Name: "gee", Series: series},
		B:         domain.SourceInput{Name: "ssr", Reported: reported},
	}
}

func samples(rng *rand.Rand, ind indicatorDef, points []orb.Point, from, to, step int, scenario string, signal func(orb.Point, int, string) float64) []domain.RawSample {
	out := make([]domain.RawSample, 0, len(points)*((to-from)/step+1))
	for year := from; year <= to; year += step {
		for i := range points {
			p := points[i]
			// Roughly one sample in fifty is a gap, as in real extractions.
			if rng.IntN(50) == 0 {
				out = append(out, domain.RawSample{TimeLabel: strconv.Itoa(year), Point: &p, Value: domain.Absent()})
				continue
			}
			v := signal(p, year, scenario) + rng.NormFloat64()*ind.noise
			out = append(out, domain.RawSample{TimeLabel: strconv.Itoa(year), Point: &p, Value: domain.Present(round(v, 3))})
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(units []domain.Unit) error {
	// Set a fixed clock for reproducible GeneratedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	ref, err := config.LoadReference("")
	if err != nil {
		return err
	}
	tables, err := ref.Build()
	if err != nil {
		return err
	}
	engine := domain.NewEngine(tables.Model, tables.Pairs, tables.Tiers)

	fmt.Println("\n=== Stats for updating test assertions ===")
	for _, u := range units {
		report, err := engine.Reconcile(context.Background(), u)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", u.Indicator, err)
		}
		s := report.Comparison.Summary
		fmt.Printf("%s: id=%s samples=%d absent=%d compared=%d verdict=%s max=%s mean=%s\n",
			u.Indicator, report.ID, report.A.Samples, report.A.AbsentSamples,
			s.Compared, s.Verdict, s.MaxAbsDiff, s.MeanAbsDiff)
		for _, r := range report.Comparison.Results {
			fmt.Println("  " + r.String())
		}
	}
	return nil
}
