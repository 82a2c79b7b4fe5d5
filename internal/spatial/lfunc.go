package spatial

import (
	"fmt"
	"math"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// EdgeCorrection selects how truncated neighbourhoods near the window
// boundary are compensated.
type EdgeCorrection int

const (
	// EdgeNone applies no correction; estimates are biased downward near
	// the boundary but remain deterministic and cheap.
	EdgeNone EdgeCorrection = iota
	// EdgeBorder restricts contributing source points at radius r to those
	// whose full r-neighbourhood lies inside the window.
	EdgeBorder
)

// Options configures a single statistic evaluation.
type Options struct {
	// Radii is the ascending sequence of positive radii the curve is
	// evaluated at. The summary statistic sums over this sequence.
	Radii []float64
	// Edge selects the edge-correction policy. Default is EdgeBorder.
	Edge EdgeCorrection
	// Sigma, when positive, enables the tissue-inhomogeneity correction:
	// pair contributions are weighted by kernel-smoothed intensity
	// estimates with this bandwidth instead of assuming a homogeneous
	// process.
	Sigma float64
	// MinCells is the minimum number of cells either type must have in the
	// image for the statistic to be defined. Values below 1 mean 1.
	MinCells int
}

func (o Options) minCells() int {
	if o.MinCells < 1 {
		return 1
	}
	return o.MinCells
}

// Validate checks the radius sequence is positive, finite, and strictly
// ascending. Violations are configuration errors, not per-unit failures.
func (o Options) Validate() error {
	if len(o.Radii) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidRadii)
	}
	prev := 0.0
	for _, r := range o.Radii {
		if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: radius %v must be positive and finite", ErrInvalidRadii, r)
		}
		if r <= prev {
			return fmt.Errorf("%w: radii must be strictly ascending", ErrInvalidRadii)
		}
		prev = r
	}
	return nil
}

// Curve holds the evaluated L function over a radius sequence together
// with its baseline (the expected L under no spatial association).
type Curve struct {
	Radii    []float64
	L        []float64 // variance-stabilised L-hat at each radius
	Baseline []float64 // expected L: r for a Poisson process
}

// Summary collapses the curve to the scalar u = sum_r [L(r) - baseline(r)].
// Positive u indicates attraction, negative indicates dispersion.
func (c Curve) Summary() float64 {
	var u float64
	for i := range c.Radii {
		u += c.L[i] - c.Baseline[i]
	}
	return u
}

// CrossL evaluates the cross-type L function of `from` versus `to` within
// the pattern's window. The statistic is undefined (ErrInsufficientCells)
// when either type has fewer than Options.MinCells members in the image.
func CrossL(p *cells.Pattern, from, to string, opts Options) (Curve, error) {
	if err := p.Window.Validate(); err != nil {
		return Curve{}, fmt.Errorf("%w: image %s: %v", ErrDegenerateWindow, p.ImageID, err)
	}
	fromPts := p.Points(from)
	toPts := p.Points(to)
	if len(fromPts) < opts.minCells() {
		return Curve{}, fmt.Errorf("%w: image %s has %d %q cells (need %d)",
			ErrInsufficientCells, p.ImageID, len(fromPts), from, opts.minCells())
	}
	if len(toPts) < opts.minCells() {
		return Curve{}, fmt.Errorf("%w: image %s has %d %q cells (need %d)",
			ErrInsufficientCells, p.ImageID, len(toPts), to, opts.minCells())
	}
	return crossCurve(p.Window, fromPts, toPts, from == to, opts)
}

// crossCurve is the shared estimator over raw coordinate sets. sameSet
// must be true when fromPts and toPts are the identical point set, so
// self-pairs are excluded.
func crossCurve(w cells.Window, fromPts, toPts []cells.Point, sameSet bool, opts Options) (Curve, error) {
	if err := opts.Validate(); err != nil {
		return Curve{}, err
	}
	area := w.Area()
	rMax := opts.Radii[len(opts.Radii)-1]

	idx := newGridIndex(toPts, rMax)

	// Pair weights and per-radius source mass accumulate in one pass
	// over the source points; candidates come from the grid index.
	var fromSurf, toSurf *intensitySurface
	if opts.Sigma > 0 {
		fromSurf = newIntensitySurface(fromPts, opts.Sigma)
		toSurf = newIntensitySurface(toPts, opts.Sigma)
	}

	k := make([]float64, len(opts.Radii))
	var scratch []int

	// Accumulate, per radius, the weighted pair count over eligible source
	// points, and the normalising mass of those source points.
	pairSums := make([]float64, len(opts.Radii))
	srcMass := make([]float64, len(opts.Radii))
	var totalMass float64

	for i, p := range fromPts {
		srcWeight := 1.0
		if fromSurf != nil {
			if lam := fromSurf.at(p, i); lam > 0 {
				srcWeight = 1 / lam
			}
		}
		totalMass += srcWeight

		bdist := w.BoundaryDistance(p)
		scratch = idx.within(p, rMax, scratch[:0])

		for ri, r := range opts.Radii {
			if opts.Edge == EdgeBorder && bdist < r {
				continue // neighbourhood truncated at this radius
			}
			srcMass[ri] += srcWeight

			r2 := r * r
			var sum float64
			for _, j := range scratch {
				if sameSet && j == i {
					continue
				}
				q := toPts[j]
				dx := q.X - p.X
				dy := q.Y - p.Y
				if dx*dx+dy*dy > r2 {
					continue
				}
				pw := 1.0
				if toSurf != nil {
					if lam := toSurf.at(q, j); lam > 0 {
						pw = 1 / lam
					}
				}
				sum += pw
			}
			pairSums[ri] += srcWeight * sum
		}
	}

	nTo := float64(len(toPts))
	if sameSet {
		nTo-- // a point is never its own neighbour
	}
	if nTo <= 0 {
		return Curve{}, fmt.Errorf("%w: single-cell type cannot pair with itself", ErrInsufficientCells)
	}

	for ri := range opts.Radii {
		if srcMass[ri] <= 0 {
			// No source point survives the border restriction at this
			// radius; fall back to the uncorrected estimate so the curve
			// stays finite rather than reporting a hole mid-sequence.
			noEdge := opts
			noEdge.Edge = EdgeNone
			noEdge.Radii = opts.Radii[ri:]
			tail, err := crossCurve(w, fromPts, toPts, sameSet, noEdge)
			if err != nil {
				return Curve{}, err
			}
			c := curveShell(opts.Radii)
			for j := 0; j < ri; j++ {
				c.L[j] = lTransform(k[j])
			}
			copy(c.L[ri:], tail.L)
			return c, nil
		}

		if opts.Sigma > 0 {
			// Inhomogeneous estimate: pair weights 1/(lambda_i lambda_j),
			// rescaled from the eligible source mass to the full mass.
			k[ri] = pairSums[ri] * (totalMass / srcMass[ri]) / area
		} else {
			// Homogeneous estimate: |W| / (n_i n_j) * mean pair count over
			// eligible source points, scaled back to all source points.
			lambdaTo := nTo / area
			k[ri] = pairSums[ri] / srcMass[ri] / lambdaTo
		}
	}

	c := curveShell(opts.Radii)
	for ri := range opts.Radii {
		c.L[ri] = lTransform(k[ri])
	}
	return c, nil
}

func curveShell(radii []float64) Curve {
	c := Curve{
		Radii:    append([]float64(nil), radii...),
		L:        make([]float64, len(radii)),
		Baseline: make([]float64, len(radii)),
	}
	copy(c.Baseline, c.Radii)
	return c
}

// lTransform converts a K estimate to the variance-stabilised L scale.
func lTransform(k float64) float64 {
	if k <= 0 {
		return 0
	}
	return math.Sqrt(k / math.Pi)
}
