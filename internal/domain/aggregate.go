package domain

import (
	"sort"

	"github.com/paulmach/orb"
)

// RawSample is one source-native value: a time label, an optional lattice
// point, and a possibly absent value.
type RawSample struct {
	TimeLabel string     `json:"time"`
	Point     *orb.Point `json:"point,omitempty"`
	// Weight scales the sample's contribution to spatial statistics;
	// zero means 1.
	Weight float64 `json:"weight,omitempty"`
	Value  Value   `json:"value"`
}

// RawSeries is every sample one source produced for one indicator under one
// scenario, not yet mapped onto canonical periods.
type RawSeries struct {
	Source    string      `json:"source"`
	Indicator string      `json:"indicator"`
	Scenario  string      `json:"scenario"`
	Samples   []RawSample `json:"samples"`
}

// Spatial reports whether the series carries per-point samples.
func (s RawSeries) Spatial() bool {
	for _, rs := range s.Samples {
		if rs.Point != nil {
			return true
		}
	}
	return false
}

// SamplesAt converts sampled grid values for one time label into raw
// samples.
func SamplesAt(timeLabel string, samples Samples) []RawSample {
	out := make([]RawSample, len(samples))
	for k, gs := range samples {
		p := gs.Point
		out[k] = RawSample{TimeLabel: timeLabel, Point: &p, Weight: gs.Weight, Value: gs.Value}
	}
	return out
}

// SeriesStatistics is the per-period reduction of one RawSeries.
type SeriesStatistics struct {
	Source    string                     `json:"source"`
	Indicator string                     `json:"indicator"`
	Scenario  string                     `json:"scenario"`
	Spatial   bool                       `json:"spatial"`
	Periods   map[Period]PeriodStatistic `json:"periods"`
	// Unresolved lists the distinct labels whose samples were skipped.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Aggregate reduces a series to per-period statistics. All present samples
// resolving to the same period are pooled, across time labels and grid
// points alike, before any statistic is computed; a grid with more points
// weighs in proportionally, never as one average among averages. Sample
// weights apply to spatial series only; a scalar series takes the arithmetic
// mean. Samples with unresolvable labels are skipped and their labels
// recorded.
func Aggregate(model *CanonicalModel, series RawSeries) SeriesStatistics {
	spatial := series.Spatial()
	accs := make(map[Period]*Accumulator, 4)
	unresolved := make(map[string]bool)

	for _, rs := range series.Samples {
		p, err := model.ResolvePeriod(rs.TimeLabel)
		if err != nil {
			unresolved[rs.TimeLabel] = true
			continue
		}
		acc, ok := accs[p]
		if !ok {
			acc = &Accumulator{}
			accs[p] = acc
		}
		w := rs.Weight
		if w == 0 || !spatial {
			w = 1
		}
		acc.AddWeighted(rs.Value, w)
	}

	st := SeriesStatistics{
		Source:    series.Source,
		Indicator: series.Indicator,
		Scenario:  series.Scenario,
		Spatial:   spatial,
		Periods:   make(map[Period]PeriodStatistic, len(accs)),
	}
	for p, acc := range accs {
		st.Periods[p] = acc.Statistic(p, spatial)
	}
	for label := range unresolved {
		st.Unresolved = append(st.Unresolved, label)
	}
	sort.Strings(st.Unresolved)
	return st
}

// Reasons an otherwise expected delta is absent.
const (
	ReasonInsufficientBaseline = "insufficient_baseline"
	ReasonEmptyPeriod          = "empty_period"
	ReasonZeroBaseline         = "zero_baseline"
	ReasonNotReported          = "not_reported"
)

// Delta is the change of one source/indicator/scenario between the baseline
// and a future period. An absent Value carries a Reason.
type Delta struct {
	Source    string    `json:"source"`
	Indicator string    `json:"indicator"`
	Scenario  string    `json:"scenario"`
	Period    Period    `json:"period"`
	Kind      DeltaKind `json:"kind"`
	Value     Value     `json:"value"`
	Baseline  Value     `json:"baseline_mean,omitzero"`
	Future    Value     `json:"future_mean,omitzero"`
	Reason    string    `json:"reason,omitempty"`
}

// SeriesDeltas computes a delta for every future period present in st.
// fallback, when non-nil, is used if st has no populated baseline of its own.
func SeriesDeltas(model *CanonicalModel, st SeriesStatistics, fallback *PeriodStatistic) []Delta {
	baseline, ok := st.Periods[PeriodBaseline]
	if (!ok || baseline.Count == 0) && fallback != nil && fallback.Count > 0 {
		baseline = *fallback
	}
	kind := model.DeltaKind(st.Indicator)

	var out []Delta
	for _, p := range FuturePeriods() {
		future, ok := st.Periods[p]
		if !ok {
			continue
		}
		d := Delta{
			Source:    st.Source,
			Indicator: st.Indicator,
			Scenario:  st.Scenario,
			Period:    p,
			Kind:      kind,
			Baseline:  baseline.Mean,
			Future:    future.Mean,
		}
		switch {
		case baseline.Count == 0:
			d.Reason = ReasonInsufficientBaseline
		case future.Count == 0:
			d.Reason = ReasonEmptyPeriod
		case kind == DeltaRelative && baseline.Mean.Float == 0:
			d.Reason = ReasonZeroBaseline
		case kind == DeltaRelative:
			d.Value = Present((future.Mean.Float - baseline.Mean.Float) / baseline.Mean.Float * 100)
		default:
			d.Value = Present(future.Mean.Float - baseline.Mean.Float)
		}
		out = append(out, d)
	}
	return out
}

// Deltas computes deltas for every series of a source. A scenario without
// baseline samples borrows the baseline of the model's historical scenario
// for the same source and indicator; the historical series itself yields no
// deltas.
func Deltas(model *CanonicalModel, stats []SeriesStatistics) []Delta {
	type key struct{ source, indicator string }
	historical := make(map[key]PeriodStatistic)
	for _, st := range stats {
		if st.Scenario != model.HistoricalScenario() {
			continue
		}
		if b, ok := st.Periods[PeriodBaseline]; ok && b.Count > 0 {
			historical[key{st.Source, st.Indicator}] = b
		}
	}

	var out []Delta
	for _, st := range stats {
		if st.Scenario == model.HistoricalScenario() {
			continue
		}
		var fallback *PeriodStatistic
		if b, ok := historical[key{st.Source, st.Indicator}]; ok {
			fallback = &b
		}
		out = append(out, SeriesDeltas(model, st, fallback)...)
	}
	return out
}

// ReportedDelta is a change value published directly by a source that does
// not expose its baseline, e.g. a point-query service returning "°C change
// vs 1981–2010".
type ReportedDelta struct {
	Scenario  string `json:"scenario"`
	TimeLabel string `json:"time"`
	Value     Value  `json:"value"`
}

// ReportedDeltas normalises published deltas onto canonical periods. Labels
// that do not resolve to a future period are returned as unresolved.
func ReportedDeltas(model *CanonicalModel, source, indicator string, reported []ReportedDelta) ([]Delta, []string) {
	kind := model.DeltaKind(indicator)
	var (
		out        []Delta
		unresolved []string
	)
	for _, r := range reported {
		p, err := model.ResolvePeriod(r.TimeLabel)
		if err != nil || !p.IsFuture() {
			unresolved = append(unresolved, r.TimeLabel)
			continue
		}
		d := Delta{
			Source:    source,
			Indicator: indicator,
			Scenario:  r.Scenario,
			Period:    p,
			Kind:      kind,
			Value:     r.Value,
		}
		if !r.Value.Valid {
			d.Reason = ReasonNotReported
		}
		out = append(out, d)
	}
	return out, unresolved
}
