package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidResolution reports a non-positive or non-finite step.
	ErrInvalidResolution = errors.New("invalid grid resolution")

	// ErrGridTooLarge reports a lattice that would exceed maxLatticePoints.
	ErrGridTooLarge = errors.New("sampling grid too large")
)

// maxLatticePoints bounds the tiled lattice; 0.01° over a 40°×40° box.
const maxLatticePoints = 16_000_000

// snapEpsilon absorbs floating-point noise when a coordinate sits on a
// lattice line, in units of lattice steps.
const snapEpsilon = 1e-9

// SamplingGrid is the ordered set of lattice points inside a region at one
// resolution. Points are ordered south to north, then west to east. A grid is
// never mutated; build a new one when the region or resolution changes.
type SamplingGrid struct {
	region     *Region
	resolution float64
	points     []orb.Point
	tiled      int
}

// BuildGrid tiles the region's bounding box with points at integer multiples
// of resolutionDeg and keeps those that fall inside the region polygon.
// Anchoring the lattice at multiples of the step (not at the bounding box
// corner) makes two grids for the same region and resolution co-register, and
// a grid at half the step a superset of the coarser one.
func BuildGrid(region *Region, resolutionDeg float64) (*SamplingGrid, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrInvalidRegion)
	}
	if !(resolutionDeg > 0) || math.IsInf(resolutionDeg, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResolution, resolutionDeg)
	}

	b := region.Bound()
	xMin, xMax := b.Min.Lon()/resolutionDeg, b.Max.Lon()/resolutionDeg
	yMin, yMax := b.Min.Lat()/resolutionDeg, b.Max.Lat()/resolutionDeg
	// The float estimate bounds the lattice from above, so rejecting here
	// keeps the int conversions and nx*ny below from overflowing.
	if est := (xMax - xMin + 1) * (yMax - yMin + 1); !(est <= 2*maxLatticePoints) {
		return nil, fmt.Errorf("%w: ~%.3g points at %v°", ErrGridTooLarge, est, resolutionDeg)
	}
	iMin, iMax := latticeCeil(xMin), latticeFloor(xMax)
	jMin, jMax := latticeCeil(yMin), latticeFloor(yMax)

	nx, ny := iMax-iMin+1, jMax-jMin+1
	if nx < 0 {
		nx = 0
	}
	if ny < 0 {
		ny = 0
	}
	if nx*ny > maxLatticePoints {
		return nil, fmt.Errorf("%w: %d×%d points at %v°", ErrGridTooLarge, nx, ny, resolutionDeg)
	}

	g := &SamplingGrid{region: region, resolution: resolutionDeg, tiled: nx * ny}
	for j := jMin; j <= jMax; j++ {
		lat := float64(j) * resolutionDeg
		for i := iMin; i <= iMax; i++ {
			p := orb.Point{float64(i) * resolutionDeg, lat}
			if region.Contains(p) {
				g.points = append(g.points, p)
			}
		}
	}
	return g, nil
}

// latticeCeil is math.Ceil that treats values within snapEpsilon of an
// integer as that integer.
func latticeCeil(x float64) int {
	if r := math.Round(x); math.Abs(x-r) < snapEpsilon {
		return int(r)
	}
	return int(math.Ceil(x))
}

func latticeFloor(x float64) int {
	if r := math.Round(x); math.Abs(x-r) < snapEpsilon {
		return int(r)
	}
	return int(math.Floor(x))
}

// Region returns the region the grid was built for.
func (g *SamplingGrid) Region() *Region { return g.region }

// Resolution returns the lattice step in degrees.
func (g *SamplingGrid) Resolution() float64 { return g.resolution }

// Points returns the included lattice points. Callers must not modify it.
func (g *SamplingGrid) Points() []orb.Point { return g.points }

// Len is the number of included points.
func (g *SamplingGrid) Len() int { return len(g.points) }

// Tiled is the size of the full lattice over the bounding box, before
// polygon filtering.
func (g *SamplingGrid) Tiled() int { return g.tiled }
