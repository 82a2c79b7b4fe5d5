// Package spatial implements the pairwise co-localization statistic core:
// the cross-type K and L functions with edge correction, an optional
// inhomogeneous baseline from a kernel-smoothed intensity surface, and the
// context-corrected (parent-referenced) variant.
package spatial

import (
	"math"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// estimatedPointsPerCell sizes the initial grid allocation.
const estimatedPointsPerCell = 4

// gridIndex is a regular-grid spatial index over a fixed point set,
// supporting range queries up to any radius. Cell size should be close to
// the largest query radius so most queries scan a 3x3 block.
type gridIndex struct {
	cellSize float64
	grid     map[int64][]int
	points   []cells.Point
}

// newGridIndex builds the index. cellSize must be positive.
func newGridIndex(points []cells.Point, cellSize float64) *gridIndex {
	gi := &gridIndex{
		cellSize: cellSize,
		grid:     make(map[int64][]int, len(points)/estimatedPointsPerCell+1),
		points:   points,
	}
	for i, p := range points {
		id := gi.cellID(gi.cell(p.X), gi.cell(p.Y))
		gi.grid[id] = append(gi.grid[id], i)
	}
	return gi
}

func (gi *gridIndex) cell(v float64) int64 {
	return int64(math.Floor(v / gi.cellSize))
}

// cellID maps a signed cell coordinate pair to a unique key using zigzag
// encoding followed by Szudzik's pairing function.
func (gi *gridIndex) cellID(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// within appends to dst the indices of all indexed points at Euclidean
// distance <= r from q, and returns the extended slice.
func (gi *gridIndex) within(q cells.Point, r float64, dst []int) []int {
	r2 := r * r
	span := int64(math.Ceil(r / gi.cellSize))
	cx := gi.cell(q.X)
	cy := gi.cell(q.Y)

	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, idx := range gi.grid[gi.cellID(cx+dx, cy+dy)] {
				p := gi.points[idx]
				ddx := p.X - q.X
				ddy := p.Y - q.Y
				if ddx*ddx+ddy*ddy <= r2 {
					dst = append(dst, idx)
				}
			}
		}
	}
	return dst
}
