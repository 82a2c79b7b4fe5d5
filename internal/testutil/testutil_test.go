package testutil

import (
	"math/rand"
	"testing"

	"github.com/SydneyBioX/kontext/internal/cells"
)

func TestCSRCellsStayInWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := cells.Window{XMin: 0, XMax: 100, YMin: 0, YMax: 50}
	for _, c := range CSRCells(rng, "img", "a", 500, w) {
		if !w.Contains(cells.Point{X: c.X, Y: c.Y}) {
			t.Fatalf("cell at (%v, %v) escaped window", c.X, c.Y)
		}
		if c.ImageID != "img" || c.Type != "a" {
			t.Fatalf("unexpected cell labels: %+v", c)
		}
	}
}

func TestColocatedCellsJitterBound(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	w := cells.Window{XMin: 0, XMax: 100, YMin: 0, YMax: 100}
	src := CSRCells(rng, "img", "a", 100, w)
	dst := ColocatedCells(rng, "b", src, 0.5)
	for i := range dst {
		dx := dst[i].X - src[i].X
		dy := dst[i].Y - src[i].Y
		if dx > 0.5 || dx < -0.5 || dy > 0.5 || dy < -0.5 {
			t.Fatalf("jitter exceeds eps: (%v, %v)", dx, dy)
		}
	}
}

func TestSeparatedCellsRespectGap(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := cells.Window{XMin: 0, XMax: 100, YMin: 0, YMax: 100}
	cs := SeparatedCells(rng, "img", "a", "b", 50, 50, w, 20)
	for _, c := range cs {
		switch c.Type {
		case "a":
			if c.X > 40 {
				t.Fatalf("type a cell at x=%v crossed into the gap", c.X)
			}
		case "b":
			if c.X < 60 {
				t.Fatalf("type b cell at x=%v crossed into the gap", c.X)
			}
		}
	}
}

func TestGradientCellsSkewRight(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	w := cells.Window{XMin: 0, XMax: 100, YMin: 0, YMax: 100}
	cs := GradientCells(rng, "img", "a", 1000, w)
	right := 0
	for _, c := range cs {
		if c.X > 50 {
			right++
		}
	}
	// A linear gradient puts 75% of mass in the right half.
	if right < 650 {
		t.Errorf("only %d/1000 cells in the right half, want a strong right skew", right)
	}
}

func TestClampToWindow(t *testing.T) {
	w := cells.Window{XMin: 0, XMax: 10, YMin: 0, YMax: 10}
	cs := ClampToWindow([]cells.Cell{{X: -1, Y: 5}, {X: 11, Y: 12}}, w)
	if cs[0].X != 0 || cs[1].X != 10 || cs[1].Y != 10 {
		t.Errorf("clamp failed: %+v", cs)
	}
}
