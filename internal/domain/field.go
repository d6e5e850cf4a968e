package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Lattice describes a source's native grid. Cell centers sit at
// Origin + k·Resolution along each axis.
type Lattice struct {
	OriginLon  float64 `json:"origin_lon"`
	OriginLat  float64 `json:"origin_lat"`
	Resolution float64 `json:"resolution"`
}

// Validate rejects a lattice that cannot index cells.
func (l Lattice) Validate() error {
	if !(l.Resolution > 0) || math.IsInf(l.Resolution, 0) {
		return fmt.Errorf("%w: native lattice step %v", ErrInvalidResolution, l.Resolution)
	}
	return nil
}

// fractional returns the position of a point in cell units, snapped onto a
// cell center when floating-point noise puts it a hair away.
func (l Lattice) fractional(lon, lat float64) (float64, float64) {
	return snap((lon - l.OriginLon) / l.Resolution), snap((lat - l.OriginLat) / l.Resolution)
}

func snap(x float64) float64 {
	if r := math.Round(x); math.Abs(x-r) < snapEpsilon {
		return r
	}
	return x
}

// Center returns the lon/lat of cell (i, j).
func (l Lattice) Center(i, j int) (lon, lat float64) {
	return l.OriginLon + float64(i)*l.Resolution, l.OriginLat + float64(j)*l.Resolution
}

// Cell returns the indices of the cell whose center is nearest to the point.
func (l Lattice) Cell(lon, lat float64) (i, j int) {
	fx, fy := l.fractional(lon, lat)
	return int(math.Round(fx)), int(math.Round(fy))
}

// Field supplies values of one indicator/scenario/time slice at arbitrary
// coordinates, at its own native resolution. ValueAt may block on an external
// source and must honour ctx. An absent Value means "no data here"; the engine
// treats an error the same way unless ctx itself is done.
type Field interface {
	Lattice() Lattice
	ValueAt(ctx context.Context, lat, lon float64) (Value, error)
}

// FieldKey identifies one slice of a remote gridded dataset.
type FieldKey struct {
	Dataset   string `json:"dataset"`
	Variable  string `json:"variable"`
	Scenario  string `json:"scenario"`
	TimeLabel string `json:"time"`
}

// FieldSource binds keys to fields. Implementations live in adapters.
type FieldSource interface {
	Field(ctx context.Context, key FieldKey) (Field, error)
}

// GridField is an in-memory Field over a row-major matrix of native cells.
// Row j holds cells at latitude OriginLat + j·Resolution.
type GridField struct {
	lattice Lattice
	rows    [][]Value
}

// NewGridField validates the lattice and matrix shape.
func NewGridField(l Lattice, rows [][]Value) (*GridField, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("grid field has no rows")
	}
	width := len(rows[0])
	for j, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("grid field row %d has %d cells, want %d", j, len(row), width)
		}
	}
	return &GridField{lattice: l, rows: rows}, nil
}

// Lattice returns the native grid description.
func (g *GridField) Lattice() Lattice { return g.lattice }

// ValueAt returns the value of the nearest native cell, absent outside
// coverage.
func (g *GridField) ValueAt(_ context.Context, lat, lon float64) (Value, error) {
	i, j := g.lattice.Cell(lon, lat)
	if j < 0 || j >= len(g.rows) || i < 0 || i >= len(g.rows[j]) {
		return Value{}, nil
	}
	return g.rows[j][i], nil
}
