package domain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Method selects how a lattice point is valued from the native field.
type Method string

const (
	// MethodBilinear interpolates the four enclosing native cells. Temperature
	// and precipitation vary smoothly, so this beats a flat cell value,
	// especially where a region covers only part of a native cell.
	MethodBilinear Method = "bilinear"
	// MethodNearest returns the enclosing native cell unmodified. Validation
	// and debugging only.
	MethodNearest Method = "nearest"
)

// ErrUnknownMethod reports an unsupported sampling method.
var ErrUnknownMethod = errors.New("unknown sampling method")

// GridSample is the value of the field at one lattice point. Weight is the
// point's share of the region (1.0 under binary inclusion).
type GridSample struct {
	Point  orb.Point `json:"point"`
	Value  Value     `json:"value"`
	Weight float64   `json:"weight"`
}

// Samples is indexed like the grid's Points.
type Samples []GridSample

// Present counts samples with a value.
func (s Samples) Present() int {
	n := 0
	for _, gs := range s {
		if gs.Value.Valid {
			n++
		}
	}
	return n
}

type cellIndex struct{ i, j int }

// sampler memoises native cell lookups for one Sample call; neighbouring
// lattice points share most of their enclosing cells.
type sampler struct {
	field   Field
	lattice Lattice
	cells   map[cellIndex]Value
}

// Sample values every grid point from field. Points the field cannot cover
// are absent. Besides invalid input (nil grid or field, unknown method, bad
// native lattice), the only error is the context's when it ends during a
// field lookup; the partial result is discarded.
func Sample(ctx context.Context, grid *SamplingGrid, field Field, method Method) (Samples, error) {
	if grid == nil {
		return nil, errors.New("sample: nil grid")
	}
	if field == nil {
		return nil, errors.New("sample: nil field")
	}
	if method == "" {
		method = MethodBilinear
	}
	if method != MethodBilinear && method != MethodNearest {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	lattice := field.Lattice()
	if err := lattice.Validate(); err != nil {
		return nil, err
	}

	s := &sampler{field: field, lattice: lattice, cells: make(map[cellIndex]Value)}
	out := make(Samples, len(grid.Points()))
	for k, p := range grid.Points() {
		var (
			v   Value
			err error
		)
		if method == MethodNearest {
			v, err = s.nearest(ctx, p)
		} else {
			v, err = s.bilinear(ctx, p)
		}
		if err != nil {
			return nil, err
		}
		out[k] = GridSample{Point: p, Value: v, Weight: 1}
	}
	return out, nil
}

func (s *sampler) nearest(ctx context.Context, p orb.Point) (Value, error) {
	i, j := s.lattice.Cell(p.Lon(), p.Lat())
	return s.cell(ctx, i, j)
}

// bilinear interpolates between the four enclosing cell centers. A point
// whose nearest native cell is absent lies outside the field's coverage and
// is absent, exactly as under MethodNearest. Otherwise corners with zero
// weight are not requested, so a point on a cell center returns exactly that
// cell's value, and absent corners drop out with the remaining weights
// renormalised.
func (s *sampler) bilinear(ctx context.Context, p orb.Point) (Value, error) {
	covered, err := s.nearest(ctx, p)
	if err != nil || !covered.Valid {
		return Value{}, err
	}

	fx, fy := s.lattice.fractional(p.Lon(), p.Lat())
	i0, j0 := math.Floor(fx), math.Floor(fy)
	tx, ty := fx-i0, fy-j0

	corners := [4]struct {
		i, j int
		w    float64
	}{
		{int(i0), int(j0), (1 - tx) * (1 - ty)},
		{int(i0) + 1, int(j0), tx * (1 - ty)},
		{int(i0), int(j0) + 1, (1 - tx) * ty},
		{int(i0) + 1, int(j0) + 1, tx * ty},
	}

	var sum, wsum float64
	for _, c := range corners {
		if c.w == 0 {
			continue
		}
		v, err := s.cell(ctx, c.i, c.j)
		if err != nil {
			return Value{}, err
		}
		if !v.Valid {
			continue
		}
		sum += c.w * v.Float
		wsum += c.w
	}
	if wsum == 0 {
		return Value{}, nil
	}
	return Present(sum / wsum), nil
}

// cell fetches a native cell once per Sample call. Lookup failures become
// absent values; only context termination is surfaced.
func (s *sampler) cell(ctx context.Context, i, j int) (Value, error) {
	key := cellIndex{i, j}
	if v, ok := s.cells[key]; ok {
		return v, nil
	}
	lon, lat := s.lattice.Center(i, j)
	v, err := s.field.ValueAt(ctx, lat, lon)
	if err != nil {
		if ctx.Err() != nil {
			return Value{}, ctx.Err()
		}
		v = Value{}
	}
	s.cells[key] = v
	return v, nil
}
