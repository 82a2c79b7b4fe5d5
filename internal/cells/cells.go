// Package cells defines the typed per-cell data model consumed by the
// spatial statistic core: individual cell records, per-image point
// patterns, and the bounded observation window each pattern lives in.
package cells

import (
	"fmt"
	"math"
)

// Cell is one segmented cell: a position inside an image, a categorical
// phenotype label, and an optional marker-intensity vector. A cell belongs
// to exactly one image.
type Cell struct {
	ImageID string
	X, Y    float64
	Type    string
	Markers []float64
}

// Point is a bare 2D coordinate used by the statistic core.
type Point struct {
	X, Y float64
}

// Window is the bounded rectangular observation region of one image.
type Window struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Area returns the window area.
func (w Window) Area() float64 {
	return (w.XMax - w.XMin) * (w.YMax - w.YMin)
}

// Contains reports whether p lies inside the window (boundary inclusive).
func (w Window) Contains(p Point) bool {
	return p.X >= w.XMin && p.X <= w.XMax && p.Y >= w.YMin && p.Y <= w.YMax
}

// BoundaryDistance returns the distance from p to the nearest window edge.
// Used by the border edge-correction: a point contributes at radius r only
// if its full r-neighbourhood lies inside the window.
func (w Window) BoundaryDistance(p Point) float64 {
	d := p.X - w.XMin
	if v := w.XMax - p.X; v < d {
		d = v
	}
	if v := p.Y - w.YMin; v < d {
		d = v
	}
	if v := w.YMax - p.Y; v < d {
		d = v
	}
	return d
}

// Validate checks the window is well formed with strictly positive area.
func (w Window) Validate() error {
	for _, v := range []float64{w.XMin, w.XMax, w.YMin, w.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("window has non-finite bound: %+v", w)
		}
	}
	if w.XMax <= w.XMin || w.YMax <= w.YMin {
		return fmt.Errorf("window has non-positive extent: %+v", w)
	}
	return nil
}

// BoundingWindow returns the tight axis-aligned window around pts.
// Returns a zero window if pts is empty.
func BoundingWindow(pts []Point) Window {
	if len(pts) == 0 {
		return Window{}
	}
	w := Window{XMin: pts[0].X, XMax: pts[0].X, YMin: pts[0].Y, YMax: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < w.XMin {
			w.XMin = p.X
		}
		if p.X > w.XMax {
			w.XMax = p.X
		}
		if p.Y < w.YMin {
			w.YMin = p.Y
		}
		if p.Y > w.YMax {
			w.YMax = p.Y
		}
	}
	return w
}

// Pattern is the point pattern of one image: its window plus all cells,
// indexed by phenotype label. Patterns are immutable once built and safe
// for concurrent readers.
type Pattern struct {
	ImageID string
	Window  Window

	byType map[string][]Point
	types  []string
	total  int
}

// NewPattern builds a Pattern from per-cell records. All cells must carry
// the given image id and lie inside the window. A malformed window or an
// out-of-window coordinate is a degenerate-window condition for the image.
func NewPattern(imageID string, w Window, cs []Cell) (*Pattern, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	p := &Pattern{
		ImageID: imageID,
		Window:  w,
		byType:  make(map[string][]Point),
	}
	for _, c := range cs {
		if c.ImageID != imageID {
			return nil, fmt.Errorf("cell belongs to image %q, pattern is %q", c.ImageID, imageID)
		}
		pt := Point{X: c.X, Y: c.Y}
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || !w.Contains(pt) {
			return nil, fmt.Errorf("image %q: cell at (%v, %v) outside window %+v", imageID, c.X, c.Y, w)
		}
		if _, ok := p.byType[c.Type]; !ok {
			p.types = append(p.types, c.Type)
		}
		p.byType[c.Type] = append(p.byType[c.Type], pt)
		p.total++
	}
	return p, nil
}

// Points returns the coordinates of all cells with the given type label.
// The returned slice must not be mutated.
func (p *Pattern) Points(typ string) []Point {
	return p.byType[typ]
}

// PointsOf returns the pooled coordinates of all cells whose type is in
// labels, preserving per-type insertion order.
func (p *Pattern) PointsOf(labels []string) []Point {
	var out []Point
	for _, l := range labels {
		out = append(out, p.byType[l]...)
	}
	return out
}

// Count returns the number of cells with the given type label.
func (p *Pattern) Count(typ string) int {
	return len(p.byType[typ])
}

// Total returns the number of cells in the image.
func (p *Pattern) Total() int {
	return p.total
}

// Types returns the type labels present in the image, in first-seen order.
func (p *Pattern) Types() []string {
	return p.types
}

// Restrict returns a copy of the pattern clipped to the sub-window w.
// Cells outside w are dropped. Used by the context-corrected statistic,
// which evaluates relationships inside the parent population's extent.
func (p *Pattern) Restrict(w Window) (*Pattern, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := &Pattern{
		ImageID: p.ImageID,
		Window:  w,
		byType:  make(map[string][]Point),
	}
	for _, typ := range p.types {
		for _, pt := range p.byType[typ] {
			if !w.Contains(pt) {
				continue
			}
			if _, ok := out.byType[typ]; !ok {
				out.types = append(out.types, typ)
			}
			out.byType[typ] = append(out.byType[typ], pt)
			out.total++
		}
	}
	return out, nil
}
