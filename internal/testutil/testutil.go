// Package testutil provides shared test utilities and fixtures.
//
// It centralises assertion shorthands and the deterministic synthetic
// point-pattern generators used by the statistic tests: complete spatial
// randomness, co-located pairs, separated halves, and density gradients.
package testutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// CSRCells scatters n cells of the given type uniformly at random over the
// window (complete spatial randomness).
func CSRCells(rng *rand.Rand, imageID, typ string, n int, w cells.Window) []cells.Cell {
	out := make([]cells.Cell, n)
	for i := range out {
		out[i] = cells.Cell{
			ImageID: imageID,
			X:       w.XMin + rng.Float64()*(w.XMax-w.XMin),
			Y:       w.YMin + rng.Float64()*(w.YMax-w.YMin),
			Type:    typ,
		}
	}
	return out
}

// ColocatedCells places one cell of typ at each source cell's position,
// jittered by at most eps. Produces a strongly attractive pattern.
func ColocatedCells(rng *rand.Rand, typ string, src []cells.Cell, eps float64) []cells.Cell {
	out := make([]cells.Cell, len(src))
	for i, c := range src {
		out[i] = cells.Cell{
			ImageID: c.ImageID,
			X:       c.X + (rng.Float64()*2-1)*eps,
			Y:       c.Y + (rng.Float64()*2-1)*eps,
			Type:    typ,
		}
	}
	return out
}

// SeparatedCells scatters nA cells of typeA in the left half of the window
// and nB cells of typeB in the right half, leaving a central gap of the
// given width. Produces a strongly dispersed cross-type pattern.
func SeparatedCells(rng *rand.Rand, imageID, typeA, typeB string, nA, nB int, w cells.Window, gap float64) []cells.Cell {
	mid := (w.XMin + w.XMax) / 2
	left := cells.Window{XMin: w.XMin, XMax: mid - gap/2, YMin: w.YMin, YMax: w.YMax}
	right := cells.Window{XMin: mid + gap/2, XMax: w.XMax, YMin: w.YMin, YMax: w.YMax}
	out := CSRCells(rng, imageID, typeA, nA, left)
	return append(out, CSRCells(rng, imageID, typeB, nB, right)...)
}

// GradientCells scatters n cells with density increasing linearly from the
// left to the right edge of the window, via rejection sampling. Two
// independent types drawn this way show a false attraction signal under a
// homogeneous baseline.
func GradientCells(rng *rand.Rand, imageID, typ string, n int, w cells.Window) []cells.Cell {
	out := make([]cells.Cell, 0, n)
	width := w.XMax - w.XMin
	for len(out) < n {
		x := w.XMin + rng.Float64()*width
		// Acceptance proportional to position across the window.
		if rng.Float64() > (x-w.XMin)/width {
			continue
		}
		out = append(out, cells.Cell{
			ImageID: imageID,
			X:       x,
			Y:       w.YMin + rng.Float64()*(w.YMax-w.YMin),
			Type:    typ,
		})
	}
	return out
}

// ClampToWindow nudges any cell coordinate outside the window back onto
// the nearest boundary. Jittered generators can overshoot by eps.
func ClampToWindow(cs []cells.Cell, w cells.Window) []cells.Cell {
	for i := range cs {
		cs[i].X = math.Min(math.Max(cs[i].X, w.XMin), w.XMax)
		cs[i].Y = math.Min(math.Max(cs[i].Y, w.YMin), w.YMax)
	}
	return cs
}

// MustPattern builds a Pattern or fails the test.
func MustPattern(t *testing.T, imageID string, w cells.Window, cs []cells.Cell) *cells.Pattern {
	t.Helper()
	p, err := cells.NewPattern(imageID, w, cs)
	if err != nil {
		t.Fatalf("building pattern %s: %v", imageID, err)
	}
	return p
}
