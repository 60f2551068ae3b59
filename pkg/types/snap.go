package types

import "math"

// SnapToGrid rounds a raw pixel coordinate to the nearest multiple of
// gridSize. Idempotent: snapping an already snapped value is a no-op.
func SnapToGrid(v float64, gridSize int) float64 {
	if gridSize <= 0 {
		return v
	}
	return math.Round(v/float64(gridSize)) * float64(gridSize)
}

// Snap aligns a raw position to the battlefield's grid.
func (b *Battlefield) Snap(x, y float64) (float64, float64) {
	return SnapToGrid(x, b.GridSize), SnapToGrid(y, b.GridSize)
}
