package main

import "math"

const (
	GridCellSize = 4096.0 // world units per grid cell edge
	GridSize     = 5      // loaded grid is GridSize x GridSize cells around the center
)

// GameID is a stable, mod-scoped identity. The zero value means "none".
type GameID struct {
	ModID  uint32 `msgpack:"m"`
	BaseID uint32 `msgpack:"b"`
}

// IsZero reports whether id is the empty identity
func (id GameID) IsZero() bool {
	return id == GameID{}
}

// GridCellCoords is a coarse exterior grid cell
type GridCellCoords struct {
	X int32 `msgpack:"x"`
	Y int32 `msgpack:"y"`
}

// CalculateGridCellCoords returns the grid cell containing the world position (x, y)
func CalculateGridCellCoords(x, y float32) GridCellCoords {
	return GridCellCoords{
		X: int32(math.Floor(float64(x) / GridCellSize)),
		Y: int32(math.Floor(float64(y) / GridCellSize)),
	}
}

// IsCellInGridCell reports whether cell lies inside the loaded grid centered on center.
// The test is symmetric in its arguments.
func IsCellInGridCell(cell, center GridCellCoords) bool {
	const radius = GridSize / 2
	return absInt32(cell.X-center.X) <= radius && absInt32(cell.Y-center.Y) <= radius
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// CellComponent places an entity, or a player's locus, in the world.
// An empty WorldSpaceID means an interior cell matched by exact Cell.
type CellComponent struct {
	Cell         GameID         `msgpack:"c"`
	WorldSpaceID GameID         `msgpack:"w"`
	CenterCoords GridCellCoords `msgpack:"g"`
}

// Overlaps is the single spatial primitive: does a locus at l cover something placed at c
func (l CellComponent) Overlaps(c CellComponent) bool {
	if c.WorldSpaceID.IsZero() {
		return l.WorldSpaceID.IsZero() && l.Cell == c.Cell
	}
	return l.WorldSpaceID == c.WorldSpaceID && IsCellInGridCell(c.CenterCoords, l.CenterCoords)
}
