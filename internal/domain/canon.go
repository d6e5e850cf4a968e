package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Period is one of the four canonical time windows every source is
// normalised onto.
type Period string

const (
	PeriodBaseline Period = "baseline"
	PeriodEarly    Period = "2011-2040"
	PeriodMid      Period = "2041-2070"
	PeriodLate     Period = "2071-2100"
)

// Periods returns the canonical periods in chronological order.
func Periods() []Period {
	return []Period{PeriodBaseline, PeriodEarly, PeriodMid, PeriodLate}
}

// FuturePeriods returns the three projection periods in chronological order.
func FuturePeriods() []Period {
	return []Period{PeriodEarly, PeriodMid, PeriodLate}
}

// IsFuture reports whether p is one of the projection periods.
func (p Period) IsFuture() bool {
	return p == PeriodEarly || p == PeriodMid || p == PeriodLate
}

func (p Period) order() int {
	switch p {
	case PeriodBaseline:
		return 0
	case PeriodEarly:
		return 1
	case PeriodMid:
		return 2
	case PeriodLate:
		return 3
	default:
		return 4
	}
}

// Span is an inclusive range of calendar years.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether year lies inside the span.
func (s Span) Contains(year int) bool { return year >= s.Start && year <= s.End }

func (s Span) overlaps(o Span) bool { return s.Start <= o.End && o.Start <= s.End }

func (s Span) String() string { return fmt.Sprintf("%d-%d", s.Start, s.End) }

// DeltaKind selects how a future statistic is compared to the baseline.
type DeltaKind string

const (
	// DeltaAbsolute is future − baseline in the indicator's own unit.
	DeltaAbsolute DeltaKind = "absolute"
	// DeltaRelative is (future − baseline) / baseline · 100.
	DeltaRelative DeltaKind = "relative"
)

var (
	// ErrUnresolvedPeriod reports a time label that does not fall inside
	// exactly one canonical period.
	ErrUnresolvedPeriod = errors.New("unresolved period")

	// ErrInvalidModel reports a structurally broken canonical model or
	// scenario table.
	ErrInvalidModel = errors.New("invalid canonical model")
)

// UnresolvedPeriodError carries the offending label.
type UnresolvedPeriodError struct {
	Label  string
	Reason string
}

func (e *UnresolvedPeriodError) Error() string {
	return fmt.Sprintf("unresolved period %q: %s", e.Label, e.Reason)
}

func (e *UnresolvedPeriodError) Unwrap() error { return ErrUnresolvedPeriod }

// ModelConfig is the caller-supplied description of the canonical model.
type ModelConfig struct {
	Version string
	// Baseline is the historical reference interval.
	Baseline Span
	// Aliases maps source-native period names (case-insensitive) onto
	// canonical periods, e.g. "mid_century" -> 2041-2070.
	Aliases map[string]Period
	// HistoricalScenario names the scenario whose baseline is shared by every
	// future scenario of the same source when a scenario carries no baseline
	// samples of its own.
	HistoricalScenario string
	// RelativeIndicators are reported as percent change rather than absolute
	// change.
	RelativeIndicators []string
}

// DefaultModelConfig returns the reference configuration: a 1981–2010
// baseline and the period names used by the CORDEX/CMIP6 indicator sets.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Version:  "v1",
		Baseline: Span{Start: 1981, End: 2010},
		Aliases: map[string]Period{
			"reference":     PeriodBaseline,
			"historical":    PeriodBaseline,
			"early_century": PeriodEarly,
			"mid_century":   PeriodMid,
			"end_century":   PeriodLate,
		},
		HistoricalScenario: "historical",
		RelativeIndicators: []string{"precipitation"},
	}
}

// futureSpans are fixed; only the baseline is configurable.
var futureSpans = map[Period]Span{
	PeriodEarly: {Start: 2011, End: 2040},
	PeriodMid:   {Start: 2041, End: 2070},
	PeriodLate:  {Start: 2071, End: 2100},
}

// CanonicalModel is the shared, versioned coordinate system. It is immutable
// and safe for concurrent use; pass it explicitly to every component.
type CanonicalModel struct {
	version    string
	spans      map[Period]Span
	aliases    map[string]Period
	historical string
	relative   map[string]bool
}

// NewCanonicalModel validates cfg. Structural problems are fatal here so that
// no later computation runs on a broken coordinate system.
func NewCanonicalModel(cfg ModelConfig) (*CanonicalModel, error) {
	if strings.TrimSpace(cfg.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidModel)
	}
	if cfg.Baseline.Start <= 0 || cfg.Baseline.End < cfg.Baseline.Start {
		return nil, fmt.Errorf("%w: baseline span %s is empty or inverted", ErrInvalidModel, cfg.Baseline)
	}

	spans := make(map[Period]Span, 4)
	spans[PeriodBaseline] = cfg.Baseline
	for p, s := range futureSpans {
		if cfg.Baseline.overlaps(s) {
			return nil, fmt.Errorf("%w: baseline %s overlaps %s", ErrInvalidModel, cfg.Baseline, p)
		}
		spans[p] = s
	}

	aliases := make(map[string]Period, len(cfg.Aliases)+4)
	for _, p := range Periods() {
		aliases[string(p)] = p
	}
	for name, p := range cfg.Aliases {
		if p.order() > 3 {
			return nil, fmt.Errorf("%w: alias %q targets unknown period %q", ErrInvalidModel, name, p)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, fmt.Errorf("%w: empty alias", ErrInvalidModel)
		}
		aliases[key] = p
	}

	relative := make(map[string]bool, len(cfg.RelativeIndicators))
	for _, ind := range cfg.RelativeIndicators {
		relative[ind] = true
	}

	return &CanonicalModel{
		version:    cfg.Version,
		spans:      spans,
		aliases:    aliases,
		historical: cfg.HistoricalScenario,
		relative:   relative,
	}, nil
}

// MustDefaultModel returns the model built from DefaultModelConfig.
func MustDefaultModel() *CanonicalModel {
	m, err := NewCanonicalModel(DefaultModelConfig())
	if err != nil {
		panic(err)
	}
	return m
}

// Version identifies the coordinate system a report was produced under.
func (m *CanonicalModel) Version() string { return m.version }

// Span returns the year range of a canonical period.
func (m *CanonicalModel) Span(p Period) (Span, bool) {
	s, ok := m.spans[p]
	return s, ok
}

// HistoricalScenario returns the scenario used as shared baseline fallback.
func (m *CanonicalModel) HistoricalScenario() string { return m.historical }

// DeltaKind returns how deltas are expressed for an indicator.
func (m *CanonicalModel) DeltaKind(indicator string) DeltaKind {
	if m.relative[indicator] {
		return DeltaRelative
	}
	return DeltaAbsolute
}

var (
	yearRe      = regexp.MustCompile(`^\d{4}$`)
	yearRangeRe = regexp.MustCompile(`^(\d{4})\s*[-–]\s*(\d{4})$`)
	dateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// rangeSeparators split date pairs such as "2041-01-01/2070-12-31".
	rangeSeparators = []string{"/", "..", " to ", "_"}
)

// ResolvePeriod maps a source-native time label onto exactly one canonical
// period. Accepted forms: a canonical or alias name, a year ("2055"), a date
// ("2055-07-01" or RFC 3339), a year range ("2041-2070") or a date pair
// ("2041-01-01/2070-12-31"). Ranges must lie wholly inside one period.
func (m *CanonicalModel) ResolvePeriod(label string) (Period, error) {
	l := strings.TrimSpace(label)
	if l == "" {
		return "", &UnresolvedPeriodError{Label: label, Reason: "empty label"}
	}
	if p, ok := m.aliases[strings.ToLower(l)]; ok {
		return p, nil
	}

	start, end, err := parseYearRange(l)
	if err != nil {
		return "", &UnresolvedPeriodError{Label: label, Reason: err.Error()}
	}

	var startIn, endIn Period
	for _, p := range Periods() {
		s := m.spans[p]
		if s.Contains(start) {
			startIn = p
		}
		if s.Contains(end) {
			endIn = p
		}
	}

	switch {
	case startIn == "" && endIn == "":
		return "", &UnresolvedPeriodError{Label: label, Reason: "outside all canonical periods"}
	case startIn != endIn:
		return "", &UnresolvedPeriodError{Label: label, Reason: "spans a canonical period boundary"}
	}
	return startIn, nil
}

// parseYearRange turns a label into an inclusive year range.
func parseYearRange(label string) (int, int, error) {
	if m := yearRangeRe.FindStringSubmatch(label); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		return orderedRange(start, end)
	}
	if y, ok := parseSingleYear(label); ok {
		return y, y, nil
	}
	for _, sep := range rangeSeparators {
		parts := strings.Split(label, sep)
		if len(parts) != 2 {
			continue
		}
		start, okStart := parseSingleYear(strings.TrimSpace(parts[0]))
		end, okEnd := parseSingleYear(strings.TrimSpace(parts[1]))
		if okStart && okEnd {
			return orderedRange(start, end)
		}
	}
	return 0, 0, errors.New("unrecognised time label")
}

func orderedRange(start, end int) (int, int, error) {
	if end < start {
		return 0, 0, fmt.Errorf("inverted range %d-%d", start, end)
	}
	return start, end, nil
}

func parseSingleYear(s string) (int, bool) {
	switch {
	case yearRe.MatchString(s):
		y, err := strconv.Atoi(s)
		return y, err == nil
	case dateRe.MatchString(s):
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return 0, false
		}
		return t.Year(), true
	default:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, false
		}
		return t.Year(), true
	}
}

// ScenarioPair declares two source-native scenario identifiers comparable.
type ScenarioPair struct {
	Label string `json:"label" yaml:"label"`
	A     string `json:"a" yaml:"a"`
	B     string `json:"b" yaml:"b"`
}

// ScenarioTable is the static equivalence table between two sources'
// scenario vocabularies. Each scenario appears in at most one pair per side.
type ScenarioTable struct {
	pairs []ScenarioPair
	byA   map[string]int
	byB   map[string]int
}

// NewScenarioTable validates and indexes pairs.
func NewScenarioTable(pairs []ScenarioPair) (*ScenarioTable, error) {
	t := &ScenarioTable{
		pairs: make([]ScenarioPair, 0, len(pairs)),
		byA:   make(map[string]int, len(pairs)),
		byB:   make(map[string]int, len(pairs)),
	}
	for _, p := range pairs {
		if p.A == "" || p.B == "" {
			return nil, fmt.Errorf("%w: scenario pair %q has an empty side", ErrInvalidModel, p.Label)
		}
		if _, dup := t.byA[p.A]; dup {
			return nil, fmt.Errorf("%w: scenario %q paired twice on side A", ErrInvalidModel, p.A)
		}
		if _, dup := t.byB[p.B]; dup {
			return nil, fmt.Errorf("%w: scenario %q paired twice on side B", ErrInvalidModel, p.B)
		}
		if p.Label == "" {
			p.Label = p.A + " vs " + p.B
		}
		t.byA[p.A] = len(t.pairs)
		t.byB[p.B] = len(t.pairs)
		t.pairs = append(t.pairs, p)
	}
	return t, nil
}

// Pair returns the declared pair for (a, b). Unmapped scenarios are not an
// error; callers must treat them as non-comparable.
func (t *ScenarioTable) Pair(a, b string) (ScenarioPair, bool) {
	i, ok := t.byA[a]
	if !ok || t.pairs[i].B != b {
		return ScenarioPair{}, false
	}
	return t.pairs[i], true
}

// PairForA looks up the pair containing a source-A scenario.
func (t *ScenarioTable) PairForA(a string) (ScenarioPair, bool) {
	i, ok := t.byA[a]
	if !ok {
		return ScenarioPair{}, false
	}
	return t.pairs[i], true
}

// PairForB looks up the pair containing a source-B scenario.
func (t *ScenarioTable) PairForB(b string) (ScenarioPair, bool) {
	i, ok := t.byB[b]
	if !ok {
		return ScenarioPair{}, false
	}
	return t.pairs[i], true
}

// Pairs returns the declared pairs sorted by label.
func (t *ScenarioTable) Pairs() []ScenarioPair {
	out := append([]ScenarioPair(nil), t.pairs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
