package spatial

import (
	"fmt"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// Mode selects how the child relationship is compared with the parent
// baseline.
type Mode int

const (
	// ModeDifference reports child minus parent; 0 means the child is
	// localised to `from` exactly as its parent population is.
	ModeDifference Mode = iota
	// ModeRatio reports child over parent; 1 is the neutral value.
	ModeRatio
)

// Neutral returns the value indicating no child-specific localisation
// signal under this mode.
func (m Mode) Neutral() float64 {
	if m == ModeRatio {
		return 1
	}
	return 0
}

// ContextResult carries the raw and context-corrected statistics for one
// (image, from, to, parent) relationship. Both are reported so callers can
// detect sign disagreements between the naive and corrected conclusions.
type ContextResult struct {
	// Child is the from→to curve evaluated inside the parent's extent.
	Child Curve
	// Parent is the from→parent reference curve over the same extent.
	Parent Curve
	// Value is the context-corrected scalar under the requested mode.
	Value float64
}

// ContextL computes the context-normalised co-localization of `to` with
// `from`, referenced against the parent population given by parentLeaves
// (the fine labels the parent contains; it must include `to`).
//
// The relationship is evaluated inside the window spanned by the parent
// population rather than the full image, so regional structure shared by
// the whole parent does not masquerade as child-specific signal.
func ContextL(p *cells.Pattern, from, to string, parentLeaves []string, mode Mode, opts Options) (ContextResult, error) {
	found := false
	for _, l := range parentLeaves {
		if l == to {
			found = true
			break
		}
	}
	if !found {
		return ContextResult{}, fmt.Errorf("parent population %v does not contain child type %q", parentLeaves, to)
	}

	parentPts := p.PointsOf(parentLeaves)
	if len(parentPts) < opts.minCells() {
		return ContextResult{}, fmt.Errorf("%w: image %s has %d parent cells (need %d)",
			ErrInsufficientCells, p.ImageID, len(parentPts), opts.minCells())
	}

	// Restrict to the parent's spatial extent.
	pw := cells.BoundingWindow(parentPts)
	if err := pw.Validate(); err != nil {
		return ContextResult{}, fmt.Errorf("%w: image %s: parent extent: %v", ErrDegenerateWindow, p.ImageID, err)
	}
	sub, err := p.Restrict(pw)
	if err != nil {
		return ContextResult{}, fmt.Errorf("%w: image %s: %v", ErrDegenerateWindow, p.ImageID, err)
	}

	if sub.Count(to) < opts.minCells() {
		return ContextResult{}, fmt.Errorf("%w: image %s has %d %q cells inside parent extent (need %d)",
			ErrInsufficientCells, p.ImageID, sub.Count(to), to, opts.minCells())
	}
	fromPts := sub.Points(from)
	if len(fromPts) < opts.minCells() {
		return ContextResult{}, fmt.Errorf("%w: image %s has %d %q cells inside parent extent (need %d)",
			ErrInsufficientCells, p.ImageID, len(fromPts), from, opts.minCells())
	}

	child, err := crossCurve(sub.Window, fromPts, sub.Points(to), from == to, opts)
	if err != nil {
		return ContextResult{}, err
	}

	parentInside := sub.PointsOf(parentLeaves)
	sameSet := len(parentLeaves) == 1 && parentLeaves[0] == from
	parent, err := crossCurve(sub.Window, fromPts, parentInside, sameSet, opts)
	if err != nil {
		return ContextResult{}, err
	}

	res := ContextResult{Child: child, Parent: parent}
	switch mode {
	case ModeRatio:
		var num, den float64
		for i := range child.L {
			num += child.L[i]
			den += parent.L[i]
		}
		if den == 0 {
			res.Value = mode.Neutral()
		} else {
			res.Value = num / den
		}
	default:
		for i := range child.L {
			res.Value += child.L[i] - parent.L[i]
		}
	}
	return res, nil
}
