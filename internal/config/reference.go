package config

import (
	"fmt"
	"os"

	"github.com/exzackley/fondogis/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Reference is the reconciliation reference file: canonical-model overrides,
// the scenario equivalence table and the tolerance tiers. Every section is
// optional and falls back to the built-in reference values.
type Reference struct {
	Model     *ModelSection        `yaml:"model" validate:"omitempty"`
	Scenarios []domain.ScenarioPair `yaml:"scenarios" validate:"dive"`
	Tiers     []TierEntry          `yaml:"tiers" validate:"dive"`
	Fallback  *TierEntry           `yaml:"fallback" validate:"omitempty"`
}

// ModelSection overrides parts of the canonical model. Unset fields keep
// their default.
type ModelSection struct {
	Version            string            `yaml:"version"`
	Baseline           *BaselineSection  `yaml:"baseline" validate:"omitempty"`
	Aliases            map[string]string `yaml:"aliases" validate:"dive,keys,required,endkeys,oneof=baseline 2011-2040 2041-2070 2071-2100"`
	HistoricalScenario string            `yaml:"historical_scenario"`
	RelativeIndicators []string          `yaml:"relative_indicators" validate:"dive,required"`
}

// BaselineSection is the historical reference interval in calendar years.
type BaselineSection struct {
	Start int `yaml:"start" validate:"required,gt=0"`
	End   int `yaml:"end" validate:"required,gtefield=Start"`
}

// TierEntry is one tolerance tier as written in the file.
type TierEntry struct {
	UpperBound float64 `yaml:"upper_bound" validate:"gte=0"`
	Label      string  `yaml:"label" validate:"required"`
	Action     string  `yaml:"action"`
}

// DefaultScenarioPairs is the built-in equivalence table between CMIP6 SSP
// identifiers and the compact form used by national reports.
func DefaultScenarioPairs() []domain.ScenarioPair {
	return []domain.ScenarioPair{
		{Label: "SSP1-2.6", A: "ssp126", B: "ssp1_26"},
		{Label: "SSP2-4.5", A: "ssp245", B: "ssp2_45"},
		{Label: "SSP3-7.0", A: "ssp370", B: "ssp3_70"},
		{Label: "SSP5-8.5", A: "ssp585", B: "ssp5_85"},
	}
}

// LoadReference reads and validates the reference file at path. An empty
// path yields an empty Reference, which builds the default tables.
func LoadReference(path string) (*Reference, error) {
	if path == "" {
		return &Reference{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	return ParseReference(data)
}

// ParseReference decodes and validates a YAML reference document.
func ParseReference(data []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("decode reference file: %w", err)
	}
	if err := validate.Struct(ref); err != nil {
		return nil, fmt.Errorf("validate reference file: %w", err)
	}
	if len(ref.Tiers) > 0 && ref.Fallback == nil {
		return nil, fmt.Errorf("validate reference file: tiers given without a fallback tier")
	}
	return &ref, nil
}

// CanonicalModel builds the canonical model, applying overrides onto
// domain.DefaultModelConfig.
func (r *Reference) CanonicalModel() (*domain.CanonicalModel, error) {
	cfg := domain.DefaultModelConfig()
	if m := r.Model; m != nil {
		if m.Version != "" {
			cfg.Version = m.Version
		}
		if m.Baseline != nil {
			cfg.Baseline = domain.Span{Start: m.Baseline.Start, End: m.Baseline.End}
		}
		for name, p := range m.Aliases {
			cfg.Aliases[name] = domain.Period(p)
		}
		if m.HistoricalScenario != "" {
			cfg.HistoricalScenario = m.HistoricalScenario
		}
		if m.RelativeIndicators != nil {
			cfg.RelativeIndicators = m.RelativeIndicators
		}
	}
	return domain.NewCanonicalModel(cfg)
}

// ScenarioTable builds the equivalence table, or the default one when the
// file lists no pairs.
func (r *Reference) ScenarioTable() (*domain.ScenarioTable, error) {
	pairs := r.Scenarios
	if len(pairs) == 0 {
		pairs = DefaultScenarioPairs()
	}
	return domain.NewScenarioTable(pairs)
}

// ToleranceTiers builds the classification scale, or the default one when
// the file lists no tiers.
func (r *Reference) ToleranceTiers() (*domain.ToleranceTiers, error) {
	if len(r.Tiers) == 0 {
		return domain.DefaultToleranceTiers(), nil
	}
	tiers := make([]domain.Tier, len(r.Tiers))
	for i, t := range r.Tiers {
		tiers[i] = domain.Tier{UpperBound: t.UpperBound, Label: t.Label, Action: t.Action}
	}
	fb := domain.Tier{Label: r.Fallback.Label, Action: r.Fallback.Action}
	return domain.NewToleranceTiers(tiers, fb)
}

// Tables holds everything the reconciliation engine is constructed from.
type Tables struct {
	Model *domain.CanonicalModel
	Pairs *domain.ScenarioTable
	Tiers *domain.ToleranceTiers
}

// Build constructs and validates all three tables.
func (r *Reference) Build() (Tables, error) {
	model, err := r.CanonicalModel()
	if err != nil {
		return Tables{}, err
	}
	pairs, err := r.ScenarioTable()
	if err != nil {
		return Tables{}, err
	}
	tiers, err := r.ToleranceTiers()
	if err != nil {
		return Tables{}, err
	}
	return Tables{Model: model, Pairs: pairs, Tiers: tiers}, nil
}
