package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeriod(t *testing.T) {
	model := MustDefaultModel()

	tests := []struct {
		label string
		want  Period
	}{
		{"baseline", PeriodBaseline},
		{"1981-2010", PeriodBaseline},
		{"reference", PeriodBaseline},
		{"historical", PeriodBaseline},
		{"1995", PeriodBaseline},
		{"2011-2040", PeriodEarly},
		{"early_century", PeriodEarly},
		{"2011..2040", PeriodEarly},
		{"Mid_Century", PeriodMid},
		{"2055", PeriodMid},
		{"2055-07-01", PeriodMid},
		{"2055-07-01T00:00:00Z", PeriodMid},
		{"2041-01-01/2070-12-31", PeriodMid},
		{"2041_2070", PeriodMid},
		{"  2041 - 2070 ", PeriodMid},
		{"2071–2100", PeriodLate},
		{"end_century", PeriodLate},
		{"2071 to 2100", PeriodLate},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := model.ResolvePeriod(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePeriod_Unresolved(t *testing.T) {
	model := MustDefaultModel()

	tests := []struct {
		name   string
		label  string
		reason string
	}{
		{"empty", "  ", "empty label"},
		{"before baseline", "1950", "outside all canonical periods"},
		{"one year before baseline", "1980", "outside all canonical periods"},
		{"after horizon", "2101", "outside all canonical periods"},
		{"straddles baseline and early", "2001-2020", "spans a canonical period boundary"},
		{"straddles early and mid", "2030-2050", "spans a canonical period boundary"},
		{"inverted", "2070-2041", "inverted range 2070-2041"},
		{"gibberish", "soon", "unrecognised time label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.ResolvePeriod(tt.label)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnresolvedPeriod)

			var upe *UnresolvedPeriodError
			require.True(t, errors.As(err, &upe))
			assert.Equal(t, tt.label, upe.Label)
			assert.Equal(t, tt.reason, upe.Reason)
		})
	}
}

func TestResolvePeriod_ConfigurableBaseline(t *testing.T) {
	cfg := DefaultModelConfig()
	cfg.Baseline = Span{Start: 1971, End: 2000}
	model, err := NewCanonicalModel(cfg)
	require.NoError(t, err)

	p, err := model.ResolvePeriod("1980")
	require.NoError(t, err)
	assert.Equal(t, PeriodBaseline, p)

	_, err = model.ResolvePeriod("2005")
	assert.ErrorIs(t, err, ErrUnresolvedPeriod, "gap between baseline and early period")
}

func TestNewCanonicalModel_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
	}{
		{"missing version", func(c *ModelConfig) { c.Version = "" }},
		{"inverted baseline", func(c *ModelConfig) { c.Baseline = Span{Start: 2010, End: 1981} }},
		{"baseline overlaps future", func(c *ModelConfig) { c.Baseline = Span{Start: 1991, End: 2020} }},
		{"alias to unknown period", func(c *ModelConfig) { c.Aliases = map[string]Period{"later": "2101-2130"} }},
		{"blank alias", func(c *ModelConfig) { c.Aliases = map[string]Period{" ": PeriodMid} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultModelConfig()
			tt.mutate(&cfg)
			_, err := NewCanonicalModel(cfg)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestCanonicalModel_DeltaKind(t *testing.T) {
	model := MustDefaultModel()
	assert.Equal(t, DeltaAbsolute, model.DeltaKind("temperature"))
	assert.Equal(t, DeltaRelative, model.DeltaKind("precipitation"))
	assert.Equal(t, "historical", model.HistoricalScenario())
	assert.Equal(t, "v1", model.Version())

	span, ok := model.Span(PeriodBaseline)
	require.True(t, ok)
	assert.Equal(t, "1981-2010", span.String())
}

func TestScenarioTable(t *testing.T) {
	table, err := NewScenarioTable([]ScenarioPair{
		{A: "ssp245", B: "ssp2_45"},
		{Label: "high emissions", A: "ssp585", B: "ssp5_85"},
	})
	require.NoError(t, err)

	pair, ok := table.Pair("ssp245", "ssp2_45")
	require.True(t, ok)
	assert.Equal(t, "ssp245 vs ssp2_45", pair.Label)

	_, ok = table.Pair("ssp245", "ssp5_85")
	assert.False(t, ok, "declared sides must match")

	pair, ok = table.PairForB("ssp5_85")
	require.True(t, ok)
	assert.Equal(t, "ssp585", pair.A)

	_, ok = table.PairForA("ssp126")
	assert.False(t, ok)

	labels := []string{}
	for _, p := range table.Pairs() {
		labels = append(labels, p.Label)
	}
	assert.Equal(t, []string{"high emissions", "ssp245 vs ssp2_45"}, labels)
}

func TestNewScenarioTable_Invalid(t *testing.T) {
	_, err := NewScenarioTable([]ScenarioPair{{A: "ssp245"}})
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewScenarioTable([]ScenarioPair{{A: "ssp245", B: "x"}, {A: "ssp245", B: "y"}})
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewScenarioTable([]ScenarioPair{{A: "a1", B: "x"}, {A: "a2", B: "x"}})
	assert.ErrorIs(t, err, ErrInvalidModel)
}
