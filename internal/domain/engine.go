package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// DefaultResolution is the sampling lattice step in degrees used when a
// source does not name one.
const DefaultResolution = 0.05

// ErrNoFieldSource reports a remote source on an engine without a
// FieldSource.
var ErrNoFieldSource = errors.New("no field source configured")

// reportNamespace scopes deterministic report IDs.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:fondogis:report"))

// SourceSummary describes how one source's half of a report was derived.
type SourceSummary struct {
	Name          string             `json:"name"`
	Kind          string             `json:"kind"`
	Resolution    float64            `json:"resolution,omitempty"`
	Method        Method             `json:"method,omitempty"`
	GridPoints    int                `json:"grid_points,omitempty"`
	Tiled         int                `json:"tiled,omitempty"`
	Samples       int                `json:"samples"`
	AbsentSamples int                `json:"absent_samples"`
	Unresolved    []string           `json:"unresolved,omitempty"`
	Statistics    []SeriesStatistics `json:"statistics,omitempty"`
	Deltas        []Delta            `json:"deltas"`
}

// Report is the reconciliation of one unit.
type Report struct {
	ID           string        `json:"id"`
	Region       string        `json:"region"`
	Centroid     orb.Point     `json:"centroid"`
	Indicator    string        `json:"indicator"`
	ModelVersion string        `json:"model_version"`
	A            SourceSummary `json:"a"`
	B            SourceSummary `json:"b"`
	Comparison   ComparisonSet `json:"comparison"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// ReportID derives a stable identifier from what a report is about, so a
// reprocessed unit overwrites rather than duplicates its earlier report.
func ReportID(region, indicator, sourceA, sourceB, modelVersion string) string {
	name := strings.Join([]string{region, indicator, sourceA, sourceB, modelVersion}, "|")
	return uuid.NewSHA1(reportNamespace, []byte(name)).String()
}

// Engine reconciles units against a fixed canonical model, scenario table
// and tolerance scale. It holds no per-unit state and is safe for
// concurrent use.
type Engine struct {
	model      *CanonicalModel
	pairs      *ScenarioTable
	tiers      *ToleranceTiers
	fields     FieldSource
	resolution float64
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFieldSource enables remote sources. Without one, remote sources are
// reported with no samples.
func WithFieldSource(fs FieldSource) EngineOption {
	return func(e *Engine) { e.fields = fs }
}

// WithDefaultResolution sets the lattice step for sources that name none.
func WithDefaultResolution(deg float64) EngineOption {
	return func(e *Engine) {
		if deg > 0 {
			e.resolution = deg
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an engine. model, pairs and tiers are required.
func NewEngine(model *CanonicalModel, pairs *ScenarioTable, tiers *ToleranceTiers, opts ...EngineOption) *Engine {
	e := &Engine{
		model:      model,
		pairs:      pairs,
		tiers:      tiers,
		resolution: DefaultResolution,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the engine's canonical model.
func (e *Engine) Model() *CanonicalModel { return e.model }

// Reconcile runs one unit end to end: grid, sample, aggregate, delta and
// compare, for both sources. Only malformed input and context termination
// fail; missing data shows up as absent values in the report.
func (e *Engine) Reconcile(ctx context.Context, unit Unit) (Report, error) {
	if err := unit.Validate(); err != nil {
		return Report{}, err
	}
	region, err := unit.Region.Build()
	if err != nil {
		return Report{}, err
	}

	a, err := e.source(ctx, region, unit.Indicator, unit.A)
	if err != nil {
		return Report{}, fmt.Errorf("source %s: %w", unit.A.Name, err)
	}
	b, err := e.source(ctx, region, unit.Indicator, unit.B)
	if err != nil {
		return Report{}, fmt.Errorf("source %s: %w", unit.B.Name, err)
	}

	set := CompareDeltas(a.Deltas, b.Deltas, e.pairs, e.tiers)
	e.logger.Debug("unit reconciled",
		"region", region.ID(),
		"indicator", unit.Indicator,
		"compared", set.Summary.Compared,
		"incomparable", set.Summary.Incomparable,
		"verdict", set.Summary.Verdict,
	)

	return Report{
		ID:           ReportID(region.ID(), unit.Indicator, unit.A.Name, unit.B.Name, e.model.Version()),
		Region:       region.ID(),
		Centroid:     region.Centroid(),
		Indicator:    unit.Indicator,
		ModelVersion: e.model.Version(),
		A:            a,
		B:            b,
		Comparison:   set,
		GeneratedAt:  clock.Now().UTC(),
	}, nil
}

func (e *Engine) source(ctx context.Context, region *Region, indicator string, in SourceInput) (SourceSummary, error) {
	sum := SourceSummary{Name: in.Name, Kind: in.Kind()}

	var series []RawSeries
	switch sum.Kind {
	case KindReported:
		deltas, unresolved := ReportedDeltas(e.model, in.Name, indicator, in.Reported)
		sum.Deltas, sum.Unresolved = deltas, unresolved
		sum.Samples = len(in.Reported)
		for _, r := range in.Reported {
			if !r.Value.Valid {
				sum.AbsentSamples++
			}
		}
		return sum, nil

	case KindSeries:
		series = poolSeries(in.Name, indicator, in.Series)

	case KindGrid, KindRemote:
		grid, err := BuildGrid(region, e.resolutionFor(in))
		if err != nil {
			return SourceSummary{}, err
		}
		sum.Resolution, sum.Method = grid.Resolution(), methodOrDefault(in.Method)
		sum.GridPoints, sum.Tiled = grid.Len(), grid.Tiled()

		slices, err := e.fieldSlices(ctx, in)
		if err != nil {
			return SourceSummary{}, err
		}
		series, err = e.sampleSlices(ctx, grid, in, indicator, slices)
		if err != nil {
			return SourceSummary{}, err
		}
	}

	stats := make([]SeriesStatistics, 0, len(series))
	unresolved := make(map[string]bool)
	for _, s := range series {
		sum.Samples += len(s.Samples)
		for _, rs := range s.Samples {
			if !rs.Value.Valid {
				sum.AbsentSamples++
			}
		}
		st := Aggregate(e.model, s)
		for _, label := range st.Unresolved {
			unresolved[label] = true
		}
		stats = append(stats, st)
	}
	sum.Statistics = stats
	sum.Unresolved = sortedKeys(unresolved)
	sum.Deltas = Deltas(e.model, stats)
	return sum, nil
}

// poolSeries merges inputs that share a scenario into one series, in
// first-seen order, so each scenario is aggregated once.
func poolSeries(source, indicator string, inputs []SeriesInput) []RawSeries {
	var out []RawSeries
	idx := make(map[string]int, len(inputs))
	for _, s := range inputs {
		k, ok := idx[s.Scenario]
		if !ok {
			k = len(out)
			idx[s.Scenario] = k
			out = append(out, RawSeries{Source: source, Indicator: indicator, Scenario: s.Scenario})
		}
		out[k].Samples = append(out[k].Samples, s.Samples...)
	}
	return out
}

func (e *Engine) resolutionFor(in SourceInput) float64 {
	if in.Resolution > 0 {
		return in.Resolution
	}
	return e.resolution
}

func methodOrDefault(m Method) Method {
	if m == "" {
		return MethodBilinear
	}
	return m
}

// fieldSlice is one (scenario, time) field to sample.
type fieldSlice struct {
	scenario  string
	timeLabel string
	field     Field
}

func (e *Engine) fieldSlices(ctx context.Context, in SourceInput) ([]fieldSlice, error) {
	if in.Remote == nil {
		out := make([]fieldSlice, 0, len(in.Grids))
		for _, g := range in.Grids {
			f, err := NewGridField(g.Lattice, g.Values)
			if err != nil {
				return nil, fmt.Errorf("grid %s/%s: %w", g.Scenario, g.TimeLabel, err)
			}
			out = append(out, fieldSlice{scenario: g.Scenario, timeLabel: g.TimeLabel, field: f})
		}
		return out, nil
	}

	if e.fields == nil {
		e.logger.Warn("remote source skipped", "source", in.Name, "error", ErrNoFieldSource)
		return nil, nil
	}
	r := in.Remote
	var out []fieldSlice
	for _, scenario := range r.Scenarios {
		for _, label := range r.TimeLabels {
			key := FieldKey{Dataset: r.Dataset, Variable: r.Variable, Scenario: scenario, TimeLabel: label}
			f, err := e.fields.Field(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.logger.Warn("field unavailable, treating as absent",
					"source", in.Name, "scenario", scenario, "time", label, "error", err)
				continue
			}
			out = append(out, fieldSlice{scenario: scenario, timeLabel: label, field: f})
		}
	}
	return out, nil
}

// sampleSlices samples every slice over the grid and gathers the results
// into one series per scenario, in first-seen order.
func (e *Engine) sampleSlices(ctx context.Context, grid *SamplingGrid, in SourceInput, indicator string, slices []fieldSlice) ([]RawSeries, error) {
	var (
		order []string
		by    = make(map[string]*RawSeries)
	)
	for _, sl := range slices {
		samples, err := Sample(ctx, grid, sl.field, in.Method)
		if err != nil {
			return nil, err
		}
		s, ok := by[sl.scenario]
		if !ok {
			s = &RawSeries{Source: in.Name, Indicator: indicator, Scenario: sl.scenario}
			by[sl.scenario] = s
			order = append(order, sl.scenario)
		}
		s.Samples = append(s.Samples, SamplesAt(sl.timeLabel, samples)...)
	}
	out := make([]RawSeries, 0, len(order))
	for _, sc := range order {
		out = append(out, *by[sc])
	}
	return out, nil
}
