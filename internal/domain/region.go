package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidRegion reports a region without an identifier or a usable boundary.
var ErrInvalidRegion = errors.New("invalid region")

// Region is an identified area with a polygon boundary (lon/lat, closed rings)
// and a representative centroid. It is immutable once constructed; grids hold
// a reference to it rather than a copy.
type Region struct {
	id       string
	boundary orb.MultiPolygon
	centroid orb.Point
	bound    orb.Bound
}

// NewRegion builds a region from a single polygon. Holes are honoured.
func NewRegion(id string, polygon orb.Polygon) (*Region, error) {
	return NewMultiRegion(id, orb.MultiPolygon{polygon})
}

// NewMultiRegion builds a region from one or more polygons, e.g. a protected
// area made of several islands. The boundary is copied and every ring closed.
func NewMultiRegion(id string, mp orb.MultiPolygon) (*Region, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRegion)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: %s has no polygons", ErrInvalidRegion, id)
	}

	boundary := make(orb.MultiPolygon, 0, len(mp))
	for i, poly := range mp {
		if len(poly) == 0 {
			return nil, fmt.Errorf("%w: %s polygon %d is empty", ErrInvalidRegion, id, i)
		}
		rings := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			closed, err := closeRing(ring)
			if err != nil {
				return nil, fmt.Errorf("%w: %s polygon %d: %v", ErrInvalidRegion, id, i, err)
			}
			rings = append(rings, closed)
		}
		boundary = append(boundary, rings)
	}

	centroid, area := planar.CentroidArea(boundary)
	if area == 0 {
		return nil, fmt.Errorf("%w: %s has zero area", ErrInvalidRegion, id)
	}

	return &Region{
		id:       id,
		boundary: boundary,
		centroid: centroid,
		bound:    boundary.Bound(),
	}, nil
}

func closeRing(ring orb.Ring) (orb.Ring, error) {
	out := append(orb.Ring(nil), ring...)
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	// A closed triangle has four vertices.
	if len(out) < 4 {
		return nil, fmt.Errorf("ring has %d vertices, need at least 3 distinct", len(ring))
	}
	return out, nil
}

// WithCentroid returns a copy of the region using a caller-supplied centroid,
// for sources whose point queries were issued at a published reference point.
func (r *Region) WithCentroid(p orb.Point) *Region {
	cp := *r
	cp.centroid = p
	return &cp
}

// ID returns the region identifier.
func (r *Region) ID() string { return r.id }

// Boundary returns the region polygons. Callers must not modify the result.
func (r *Region) Boundary() orb.MultiPolygon { return r.boundary }

// Centroid returns the representative point of the region.
func (r *Region) Centroid() orb.Point { return r.centroid }

// Bound returns the region's bounding box.
func (r *Region) Bound() orb.Bound { return r.bound }

// Contains reports whether a lon/lat point lies inside the boundary.
func (r *Region) Contains(p orb.Point) bool {
	return planar.MultiPolygonContains(r.boundary, p)
}

// RegionFromGeoJSON decodes a GeoJSON FeatureCollection, Feature or bare
// geometry. Every Polygon and MultiPolygon found contributes to the boundary.
func RegionFromGeoJSON(id string, data []byte) (*Region, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: decode geojson: %v", ErrInvalidRegion, err)
	}

	var geoms []orb.Geometry
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode feature collection: %v", ErrInvalidRegion, err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode feature: %v", ErrInvalidRegion, err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode geometry: %v", ErrInvalidRegion, err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		}
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: %s geojson has no polygon geometry", ErrInvalidRegion, id)
	}
	return NewMultiRegion(id, mp)
}
