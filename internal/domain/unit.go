package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrInvalidUnit reports a reconciliation unit that cannot be processed.
var ErrInvalidUnit = errors.New("invalid reconciliation unit")

// Source kinds, one per sampling method a pipeline may use.
const (
	KindSeries   = "series"
	KindGrid     = "grid"
	KindRemote   = "remote"
	KindReported = "reported"
)

// UnitRegion is the wire form of a region: an id, a GeoJSON boundary and an
// optional published centroid ([lon, lat]).
type UnitRegion struct {
	ID       string          `json:"id"`
	Boundary json.RawMessage `json:"boundary"`
	Centroid *orb.Point      `json:"centroid,omitempty"`
}

// Build decodes the boundary into a Region.
func (u UnitRegion) Build() (*Region, error) {
	if len(u.Boundary) == 0 {
		return nil, fmt.Errorf("%w: region %q has no boundary", ErrInvalidRegion, u.ID)
	}
	r, err := RegionFromGeoJSON(u.ID, u.Boundary)
	if err != nil {
		return nil, err
	}
	if u.Centroid != nil {
		r = r.WithCentroid(*u.Centroid)
	}
	return r, nil
}

// SeriesInput is a raw series for one scenario; points, if any, are the
// source's own.
type SeriesInput struct {
	Scenario string      `json:"scenario"`
	Samples  []RawSample `json:"samples"`
}

// GridInput is one native field slice delivered inline.
type GridInput struct {
	Scenario  string    `json:"scenario"`
	TimeLabel string    `json:"time"`
	Lattice   Lattice   `json:"lattice"`
	Values    [][]Value `json:"values"`
}

// RemoteInput asks the engine's FieldSource for every (scenario, time)
// combination of a dataset variable.
type RemoteInput struct {
	Dataset    string   `json:"dataset"`
	Variable   string   `json:"variable"`
	Scenarios  []string `json:"scenarios"`
	TimeLabels []string `json:"times"`
}

// SourceInput is one pipeline's contribution to a unit. Exactly one of
// Series, Grids, Remote or Reported is set.
type SourceInput struct {
	Name string `json:"name"`
	// Resolution is the sampling lattice step in degrees for grid and
	// remote sources; zero uses the engine default.
	Resolution float64         `json:"resolution,omitempty"`
	Method     Method          `json:"method,omitempty"`
	Series     []SeriesInput   `json:"series,omitempty"`
	Grids      []GridInput     `json:"grids,omitempty"`
	Remote     *RemoteInput    `json:"remote,omitempty"`
	Reported   []ReportedDelta `json:"reported,omitempty"`
}

// Kind reports which input form the source uses, or "" when the source sets
// none or several.
func (s SourceInput) Kind() string {
	kind, n := "", 0
	if len(s.Series) > 0 {
		kind, n = KindSeries, n+1
	}
	if len(s.Grids) > 0 {
		kind, n = KindGrid, n+1
	}
	if s.Remote != nil {
		kind, n = KindRemote, n+1
	}
	if len(s.Reported) > 0 {
		kind, n = KindReported, n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Unit is the independent unit of work: one region, one indicator, two
// sources. Units share no state and may be reconciled in parallel.
type Unit struct {
	Region    UnitRegion  `json:"region"`
	Indicator string      `json:"indicator"`
	A         SourceInput `json:"a"`
	B         SourceInput `json:"b"`
}

// Validate checks the unit's shape without decoding geometry.
func (u Unit) Validate() error {
	switch {
	case u.Region.ID == "":
		return fmt.Errorf("%w: region id is required", ErrInvalidUnit)
	case u.Indicator == "":
		return fmt.Errorf("%w: indicator is required", ErrInvalidUnit)
	case u.A.Name == "" || u.B.Name == "":
		return fmt.Errorf("%w: both sources need a name", ErrInvalidUnit)
	case u.A.Name == u.B.Name:
		return fmt.Errorf("%w: sources must differ, both are %q", ErrInvalidUnit, u.A.Name)
	case u.A.Kind() == "":
		return fmt.Errorf("%w: source %q must set exactly one input form", ErrInvalidUnit, u.A.Name)
	case u.B.Kind() == "":
		return fmt.Errorf("%w: source %q must set exactly one input form", ErrInvalidUnit, u.B.Name)
	}
	return nil
}

// DecodeUnit parses and validates a unit from JSON.
func DecodeUnit(data []byte) (Unit, error) {
	var u Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return Unit{}, fmt.Errorf("decode unit: %w", err)
	}
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	return u, nil
}
