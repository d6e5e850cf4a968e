package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = `{"type":"Polygon","coordinates":[[[10,40],[10.5,40],[10.5,40.5],[10,40.5],[10,40]]]}`

func testEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	pairs, err := NewScenarioTable([]ScenarioPair{{Label: "SSP2-4.5", A: "ssp245", B: "ssp2_45"}})
	require.NoError(t, err)
	return NewEngine(MustDefaultModel(), pairs, DefaultToleranceTiers(), opts...)
}

func testUnit() Unit {
	return Unit{
		Region:    UnitRegion{ID: "gran-paradiso", Boundary: json.RawMessage(testBoundary)},
		Indicator: "temperature",
		A: SourceInput{
			Name: "gee",
			Series: []SeriesInput{
				{Scenario: "historical", Samples: []RawSample{scalar("1981-2010", 10.0)}},
				{Scenario: "ssp245", Samples: []RawSample{scalar("2041-2070", 11.20)}},
			},
		},
		B: SourceInput{
			Name:     "ssr",
			Reported: []ReportedDelta{{Scenario: "ssp2_45", TimeLabel: "mid_century", Value: Present(1.35)}},
		},
	}
}

func TestEngine_Reconcile(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { SetClock(nil) })

	report, err := testEngine(t).Reconcile(context.Background(), testUnit())
	require.NoError(t, err)

	assert.Equal(t, "gran-paradiso", report.Region)
	assert.Equal(t, "temperature", report.Indicator)
	assert.Equal(t, "v1", report.ModelVersion)
	assert.Equal(t, frozen, report.GeneratedAt)
	assert.InDelta(t, 10.25, report.Centroid.Lon(), 1e-9)

	assert.Equal(t, KindSeries, report.A.Kind)
	assert.Equal(t, KindReported, report.B.Kind)
	require.Len(t, report.A.Deltas, 1)
	assert.InDelta(t, 1.20, report.A.Deltas[0].Value.Float, 1e-9)

	require.Len(t, report.Comparison.Results, 1)
	r := report.Comparison.Results[0]
	assert.Equal(t, "SSP2-4.5", r.Pair.Label)
	assert.Equal(t, PeriodMid, r.Period)
	assert.InDelta(t, 0.15, r.Diff.Float, 1e-9)
	assert.Equal(t, "excellent", r.Classification)
	assert.Equal(t, "excellent", report.Comparison.Summary.Verdict)
}

func TestEngine_Reconcile_AbsentSideIsIncomparable(t *testing.T) {
	unit := testUnit()
	unit.A = SourceInput{
		Name:     "gee",
		Reported: []ReportedDelta{{Scenario: "ssp245", TimeLabel: "2041-2070", Value: Present(2.5)}},
	}
	unit.B.Reported = []ReportedDelta{{Scenario: "ssp2_45", TimeLabel: "2041-2070", Value: Absent()}}

	report, err := testEngine(t).Reconcile(context.Background(), unit)
	require.NoError(t, err)

	require.Len(t, report.Comparison.Results, 1)
	assert.True(t, report.Comparison.Results[0].Incomparable())
	assert.Equal(t, 1, report.B.AbsentSamples)
	assert.Equal(t, ClassIncomparable, report.Comparison.Summary.Verdict)
}

func TestEngine_Reconcile_PoolsSeriesSharingAScenario(t *testing.T) {
	unit := testUnit()
	unit.A.Series = append(unit.A.Series,
		SeriesInput{Scenario: "ssp245", Samples: []RawSample{scalar("2055", 11.40)}})

	report, err := testEngine(t).Reconcile(context.Background(), unit)
	require.NoError(t, err)

	require.Len(t, report.A.Statistics, 2, "one statistics entry per scenario")
	require.Len(t, report.A.Deltas, 1)
	assert.InDelta(t, 1.30, report.A.Deltas[0].Value.Float, 1e-9)
	require.Len(t, report.Comparison.Results, 1)
	assert.Equal(t, "excellent", report.Comparison.Results[0].Classification)
}

func TestEngine_Reconcile_DuplicateReportedDeltas(t *testing.T) {
	unit := testUnit()
	unit.B.Reported = []ReportedDelta{
		{Scenario: "ssp2_45", TimeLabel: "2041-2070", Value: Present(1.35)},
		{Scenario: "ssp2_45", TimeLabel: "2055", Value: Present(9.0)},
	}

	report, err := testEngine(t).Reconcile(context.Background(), unit)
	require.NoError(t, err)

	require.Len(t, report.Comparison.Results, 1)
	r := report.Comparison.Results[0]
	assert.True(t, r.Incomparable())
	assert.Contains(t, r.Reason, "duplicate delta")
}

func TestEngine_Reconcile_DeterministicID(t *testing.T) {
	e := testEngine(t)
	r1, err := e.Reconcile(context.Background(), testUnit())
	require.NoError(t, err)
	r2, err := e.Reconcile(context.Background(), testUnit())
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, ReportID("gran-paradiso", "temperature", "gee", "ssr", "v1"), r1.ID)
	assert.NotEqual(t, r1.ID, ReportID("gran-paradiso", "precipitation", "gee", "ssr", "v1"))
}

func constantGrid(scenario, label string, v float64) GridInput {
	rows := make([][]Value, 10)
	for j := range rows {
		rows[j] = make([]Value, 10)
		for i := range rows[j] {
			rows[j][i] = Present(v)
		}
	}
	return GridInput{
		Scenario:  scenario,
		TimeLabel: label,
		Lattice:   Lattice{OriginLon: 9.75, OriginLat: 39.75, Resolution: 0.125},
		Values:    rows,
	}
}

func TestEngine_Reconcile_GridSource(t *testing.T) {
	unit := testUnit()
	unit.A = SourceInput{
		Name:       "gee",
		Resolution: 0.1,
		Grids: []GridInput{
			constantGrid("historical", "1981-2010", 10),
			constantGrid("ssp245", "2041-2070", 11.3),
		},
	}

	report, err := testEngine(t).Reconcile(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, KindGrid, report.A.Kind)
	assert.Equal(t, MethodBilinear, report.A.Method)
	assert.Equal(t, 36, report.A.Tiled)
	assert.Positive(t, report.A.GridPoints)
	assert.Equal(t, 2*report.A.GridPoints, report.A.Samples)
	assert.Zero(t, report.A.AbsentSamples)

	require.Len(t, report.A.Statistics, 2)
	assert.True(t, report.A.Statistics[0].Spatial)

	require.Len(t, report.Comparison.Results, 1)
	assert.InDelta(t, 0.05, report.Comparison.Results[0].Diff.Float, 1e-9)
}

type stubFieldSource struct {
	fields map[FieldKey]Field
	err    error
}

func (s stubFieldSource) Field(_ context.Context, key FieldKey) (Field, error) {
	if f, ok := s.fields[key]; ok {
		return f, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, errors.New("not found")
}

func TestEngine_Reconcile_RemoteSource(t *testing.T) {
	grid := func(v float64) Field {
		g := constantGrid("", "", v)
		f, err := NewGridField(g.Lattice, g.Values)
		require.NoError(t, err)
		return f
	}
	fs := stubFieldSource{fields: map[FieldKey]Field{
		{Dataset: "cmip6", Variable: "tas", Scenario: "historical", TimeLabel: "1981-2010"}: grid(10),
		{Dataset: "cmip6", Variable: "tas", Scenario: "ssp245", TimeLabel: "2041-2070"}:     grid(11.4),
	}}

	unit := testUnit()
	unit.A = SourceInput{
		Name: "gee",
		Remote: &RemoteInput{
			Dataset:    "cmip6",
			Variable:   "tas",
			Scenarios:  []string{"historical", "ssp245"},
			TimeLabels: []string{"1981-2010", "2041-2070"},
		},
	}

	t.Run("with field source", func(t *testing.T) {
		report, err := testEngine(t, WithFieldSource(fs)).Reconcile(context.Background(), unit)
		require.NoError(t, err)
		require.Len(t, report.Comparison.Results, 1)
		assert.InDelta(t, -0.05, report.Comparison.Results[0].Diff.Float, 1e-9)
	})

	t.Run("without field source", func(t *testing.T) {
		report, err := testEngine(t).Reconcile(context.Background(), unit)
		require.NoError(t, err)
		assert.Empty(t, report.A.Deltas)
		assert.Empty(t, report.Comparison.Results)
		assert.Equal(t, 1, report.Comparison.Coverage.OnlyB)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := testEngine(t, WithFieldSource(stubFieldSource{err: context.Canceled})).Reconcile(ctx, unit)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_Reconcile_InvalidUnit(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name   string
		mutate func(*Unit)
		want   error
	}{
		{"no region id", func(u *Unit) { u.Region.ID = "" }, ErrInvalidUnit},
		{"no indicator", func(u *Unit) { u.Indicator = "" }, ErrInvalidUnit},
		{"same source twice", func(u *Unit) { u.B.Name = u.A.Name }, ErrInvalidUnit},
		{"two input forms", func(u *Unit) { u.A.Reported = u.B.Reported }, ErrInvalidUnit},
		{"no input form", func(u *Unit) { u.B.Reported = nil }, ErrInvalidUnit},
		{"no boundary", func(u *Unit) { u.Region.Boundary = nil }, ErrInvalidRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := testUnit()
			tt.mutate(&unit)
			_, err := e.Reconcile(context.Background(), unit)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeUnit(t *testing.T) {
	data, err := json.Marshal(testUnit())
	require.NoError(t, err)

	unit, err := DecodeUnit(data)
	require.NoError(t, err)
	assert.Equal(t, "gran-paradiso", unit.Region.ID)
	assert.Equal(t, KindSeries, unit.A.Kind())
	assert.Equal(t, Present(1.35), unit.B.Reported[0].Value)

	_, err = DecodeUnit([]byte(`{"indicator":"temperature"}`))
	assert.ErrorIs(t, err, ErrInvalidUnit)

	_, err = DecodeUnit([]byte(`{`))
	assert.Error(t, err)
}

func TestUnitRegion_CustomCentroid(t *testing.T) {
	c := orb.Point{10.1, 40.1}
	r, err := UnitRegion{ID: "x", Boundary: json.RawMessage(testBoundary), Centroid: &c}.Build()
	require.NoError(t, err)
	assert.Equal(t, c, r.Centroid())
}
