package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/SydneyBioX/kontext/internal/cells"
)

// intensitySurface is a kernel-smoothed estimate of the first-order
// intensity of one point set, used as the inhomogeneous baseline when
// tissue density is not uniform. The kernel is an isotropic Gaussian with
// bandwidth sigma.
type intensitySurface struct {
	pts   []cells.Point
	sigma float64
	norm  float64 // 1 / (2 pi sigma^2)
}

func newIntensitySurface(pts []cells.Point, sigma float64) *intensitySurface {
	return &intensitySurface{
		pts:   pts,
		sigma: sigma,
		norm:  1 / (2 * math.Pi * sigma * sigma),
	}
}

// at evaluates the smoothed intensity at q. exclude is the index of q
// itself when q belongs to the surface's own point set (leave-one-out
// estimate); pass -1 otherwise. If leave-one-out empties the sum (a lone
// point), the self term is kept so the estimate stays positive.
func (s *intensitySurface) at(q cells.Point, exclude int) float64 {
	inv2s2 := 1 / (2 * s.sigma * s.sigma)
	var sum float64
	for i, p := range s.pts {
		if i == exclude {
			continue
		}
		dx := p.X - q.X
		dy := p.Y - q.Y
		sum += math.Exp(-(dx*dx + dy*dy) * inv2s2)
	}
	if sum == 0 && exclude >= 0 {
		sum = 1 // exp(0) for the excluded self term
	}
	return s.norm * sum
}

// kdPoint adapts cells.Point to gonum's kdtree interfaces for the
// bandwidth heuristic below.
type kdPoint cells.Point

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

func (p kdPoint) Dims() int { return 2 }

func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p kdPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(kdPlane{kdPoints: p, Dim: d}, kdtree.MedianOfMedians(kdPlane{kdPoints: p, Dim: d}))
}

type kdPlane struct {
	kdPoints
	kdtree.Dim
}

func (p kdPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.kdPoints[i].X < p.kdPoints[j].X
	case 1:
		return p.kdPoints[i].Y < p.kdPoints[j].Y
	default:
		panic("illegal dimension")
	}
}
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}
func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}

// SuggestBandwidth returns a data-driven smoothing bandwidth for pts: the
// mean nearest-neighbour distance scaled up so the kernel bridges typical
// point gaps. Useful when a caller enables inhomogeneity correction
// without choosing sigma explicitly.
func SuggestBandwidth(pts []cells.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	kps := make(kdPoints, len(pts))
	for i, p := range pts {
		kps[i] = kdPoint(p)
	}
	tree := kdtree.New(kps, false)

	var sum float64
	for _, p := range kps {
		keep := kdtree.NewNKeeper(2) // nearest kept entry is the query point itself
		tree.NearestSet(keep, p)
		var best float64
		for _, cd := range keep.Heap {
			if cd.Comparable == nil || cd.Dist <= 0 || math.IsInf(cd.Dist, 1) {
				continue
			}
			if best == 0 || cd.Dist < best {
				best = cd.Dist
			}
		}
		sum += math.Sqrt(best)
	}
	return 2 * sum / float64(len(pts))
}
