package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrMalformedTiers reports an unusable tolerance tier table.
var ErrMalformedTiers = errors.New("malformed tolerance tiers")

// ClassIncomparable marks a comparison with at least one absent side. It is
// never one of the numeric tiers.
const ClassIncomparable = "incomparable"

// Tier is one agreement class: |diff| at or below UpperBound earns Label.
// Action tells reviewers what to do with it ("review", "investigate").
type Tier struct {
	UpperBound float64 `json:"upper_bound" yaml:"upper_bound"`
	Label      string  `json:"label" yaml:"label"`
	Action     string  `json:"action,omitempty" yaml:"action,omitempty"`
}

// ToleranceTiers is an ordered, non-overlapping classification of absolute
// differences with a catch-all for anything above the last bound.
type ToleranceTiers struct {
	tiers    []Tier
	fallback Tier
}

// NewToleranceTiers validates tiers: at least one, labels present, bounds
// positive, finite and strictly ascending.
func NewToleranceTiers(tiers []Tier, fallback Tier) (*ToleranceTiers, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrMalformedTiers)
	}
	if fallback.Label == "" {
		return nil, fmt.Errorf("%w: fallback tier needs a label", ErrMalformedTiers)
	}
	seen := map[string]bool{ClassIncomparable: true}
	prev := 0.0
	for i, t := range tiers {
		switch {
		case t.Label == "":
			return nil, fmt.Errorf("%w: tier %d has no label", ErrMalformedTiers, i)
		case seen[t.Label]:
			return nil, fmt.Errorf("%w: duplicate or reserved label %q", ErrMalformedTiers, t.Label)
		case !(t.UpperBound > prev) || math.IsInf(t.UpperBound, 0):
			return nil, fmt.Errorf("%w: tier %q bound %v must be finite and above %v", ErrMalformedTiers, t.Label, t.UpperBound, prev)
		}
		seen[t.Label] = true
		prev = t.UpperBound
	}
	if seen[fallback.Label] {
		return nil, fmt.Errorf("%w: fallback label %q reused", ErrMalformedTiers, fallback.Label)
	}
	fallback.UpperBound = math.Inf(1)
	return &ToleranceTiers{tiers: append([]Tier(nil), tiers...), fallback: fallback}, nil
}

// DefaultToleranceTiers returns the reference agreement scale for
// temperature deltas in °C.
func DefaultToleranceTiers() *ToleranceTiers {
	t, err := NewToleranceTiers([]Tier{
		{UpperBound: 0.3, Label: "excellent"},
		{UpperBound: 0.5, Label: "good"},
		{UpperBound: 1.0, Label: "moderate", Action: "review"},
	}, Tier{Label: "significant", Action: "investigate"})
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns the first tier whose inclusive upper bound covers |diff|.
func (t *ToleranceTiers) Classify(diff float64) Tier {
	abs := math.Abs(diff)
	for _, tier := range t.tiers {
		if abs <= tier.UpperBound {
			return tier
		}
	}
	return t.fallback
}

// Tiers returns the configured tiers followed by the fallback.
func (t *ToleranceTiers) Tiers() []Tier {
	return append(append([]Tier(nil), t.tiers...), t.fallback)
}

// ComparisonResult is the agreement between two sources' deltas for one
// scenario pair, indicator and period.
type ComparisonResult struct {
	Pair           ScenarioPair `json:"pair"`
	Indicator      string       `json:"indicator"`
	Period         Period       `json:"period"`
	A              Delta        `json:"a"`
	B              Delta        `json:"b"`
	Diff           Value        `json:"diff"`
	Classification string       `json:"classification"`
	Action         string       `json:"action,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// Incomparable reports whether the result carries no numeric classification.
func (r ComparisonResult) Incomparable() bool { return r.Classification == ClassIncomparable }

// Compare classifies diff = b − a. An absent side, or deltas expressed in
// different kinds, yields an incomparable result rather than a tier.
func Compare(a, b Delta, tiers *ToleranceTiers) ComparisonResult {
	r := ComparisonResult{
		Pair:      ScenarioPair{Label: a.Scenario + " vs " + b.Scenario, A: a.Scenario, B: b.Scenario},
		Indicator: a.Indicator,
		Period:    a.Period,
		A:         a,
		B:         b,
	}
	switch {
	case !a.Value.Valid:
		r.Classification, r.Reason = ClassIncomparable, absentReason("a", a)
	case !b.Value.Valid:
		r.Classification, r.Reason = ClassIncomparable, absentReason("b", b)
	case a.Kind != b.Kind:
		r.Classification, r.Reason = ClassIncomparable, fmt.Sprintf("kind mismatch: %s vs %s", a.Kind, b.Kind)
	default:
		diff := b.Value.Float - a.Value.Float
		tier := tiers.Classify(diff)
		r.Diff = Present(diff)
		r.Classification, r.Action = tier.Label, tier.Action
	}
	return r
}

func absentReason(side string, d Delta) string {
	if d.Reason == "" {
		return "delta " + side + " absent"
	}
	return "delta " + side + " absent: " + d.Reason
}

// Coverage counts what could not be compared at all.
type Coverage struct {
	// OnlyA and OnlyB count mapped (indicator, scenario, period) triples
	// present in one source only.
	OnlyA int `json:"only_a"`
	OnlyB int `json:"only_b"`
	// UnmappedA and UnmappedB list scenarios absent from the scenario table.
	UnmappedA []string `json:"unmapped_a,omitempty"`
	UnmappedB []string `json:"unmapped_b,omitempty"`
}

// Summary condenses a comparison set into one verdict.
type Summary struct {
	Compared     int    `json:"compared"`
	Incomparable int    `json:"incomparable"`
	MaxAbsDiff   Value  `json:"max_abs_diff"`
	MeanAbsDiff  Value  `json:"mean_abs_diff"`
	Verdict      string `json:"verdict"`
	Action       string `json:"action,omitempty"`
}

// ComparisonSet is the output of reconciling two sources.
type ComparisonSet struct {
	Results  []ComparisonResult `json:"results"`
	Coverage Coverage           `json:"coverage"`
	Summary  Summary            `json:"summary"`
}

type tripleKey struct {
	indicator string
	scenario  string
	period    Period
}

// CompareAll derives deltas from both sources' statistics and reconciles
// them. See CompareDeltas.
func CompareAll(model *CanonicalModel, statsA, statsB []SeriesStatistics, pairs *ScenarioTable, tiers *ToleranceTiers) ComparisonSet {
	return CompareDeltas(Deltas(model, statsA), Deltas(model, statsB), pairs, tiers)
}

// CompareDeltas produces one result per (indicator, scenario pair, period)
// present in both sources. Triples present on one side only are counted in
// Coverage, as are scenarios with no declared pair. A triple that one source
// reports more than once, e.g. under two labels resolving to the same period,
// is incomparable rather than silently resolved to one of its values.
func CompareDeltas(deltasA, deltasB []Delta, pairs *ScenarioTable, tiers *ToleranceTiers) ComparisonSet {
	keysA, byA := groupDeltas(deltasA)
	keysB, byB := groupDeltas(deltasB)
	matched := make(map[tripleKey]bool, len(keysB))
	unmappedA := make(map[string]bool)
	unmappedB := make(map[string]bool)

	var set ComparisonSet
	for _, ka := range keysA {
		pair, ok := pairs.PairForA(ka.scenario)
		if !ok {
			unmappedA[ka.scenario] = true
			continue
		}
		kb := tripleKey{ka.indicator, pair.B, ka.period}
		bs, ok := byB[kb]
		if !ok {
			set.Coverage.OnlyA++
			continue
		}
		matched[kb] = true
		as := byA[ka]
		r := Compare(as[0], bs[0], tiers)
		r.Pair = pair
		if len(as) > 1 || len(bs) > 1 {
			r.Diff, r.Action = Value{}, ""
			r.Classification = ClassIncomparable
			r.Reason = fmt.Sprintf("duplicate delta: %d from a, %d from b", len(as), len(bs))
		}
		set.Results = append(set.Results, r)
	}
	for _, kb := range keysB {
		if matched[kb] {
			continue
		}
		if _, ok := pairs.PairForB(kb.scenario); !ok {
			unmappedB[kb.scenario] = true
			continue
		}
		set.Coverage.OnlyB++
	}

	set.Coverage.UnmappedA = sortedKeys(unmappedA)
	set.Coverage.UnmappedB = sortedKeys(unmappedB)

	sort.Slice(set.Results, func(i, j int) bool {
		ri, rj := set.Results[i], set.Results[j]
		if ri.Indicator != rj.Indicator {
			return ri.Indicator < rj.Indicator
		}
		if ri.Pair.Label != rj.Pair.Label {
			return ri.Pair.Label < rj.Pair.Label
		}
		return ri.Period.order() < rj.Period.order()
	})
	set.Summary = Summarize(set.Results, tiers)
	return set
}

// Summarize reports max and mean |diff| over classified results and grades
// the worst one.
func Summarize(results []ComparisonResult, tiers *ToleranceTiers) Summary {
	var (
		s           Summary
		sum, maxAbs float64
	)
	for _, r := range results {
		if r.Incomparable() {
			s.Incomparable++
			continue
		}
		abs := math.Abs(r.Diff.Float)
		sum += abs
		if s.Compared == 0 || abs > maxAbs {
			maxAbs = abs
		}
		s.Compared++
	}
	if s.Compared == 0 {
		s.Verdict = ClassIncomparable
		return s
	}
	s.MaxAbsDiff = Present(maxAbs)
	s.MeanAbsDiff = Present(sum / float64(s.Compared))
	worst := tiers.Classify(maxAbs)
	s.Verdict, s.Action = worst.Label, worst.Action
	return s
}

// groupDeltas indexes deltas by triple, keeping first-seen key order.
func groupDeltas(deltas []Delta) ([]tripleKey, map[tripleKey][]Delta) {
	var keys []tripleKey
	by := make(map[tripleKey][]Delta, len(deltas))
	for _, d := range deltas {
		k := tripleKey{d.Indicator, d.Scenario, d.Period}
		if _, ok := by[k]; !ok {
			keys = append(keys, k)
		}
		by[k] = append(by[k], d)
	}
	return keys, by
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String renders a result as one table row, e.g. for CLI output.
func (r ComparisonResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-22s %-10s %-10s %8s %8s %8s  %s",
		r.Pair.Label, r.Indicator, r.Period, r.A.Value, r.B.Value, r.Diff, r.Classification)
	if r.Action != "" {
		fmt.Fprintf(&b, " (%s)", r.Action)
	}
	return b.String()
}
