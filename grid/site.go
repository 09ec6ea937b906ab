package grid

import "gonum.org/v1/gonum/spatial/kdtree"

// site is a sample position carrying its depth; distance is horizontal only.
type site struct {
	X, Y, Depth float64
}

// Compare implements kdtree.Comparable.
func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	if d == 0 {
		return s.X - q.X
	}

	return s.Y - q.Y
}

// Dims implements kdtree.Comparable.
func (s site) Dims() int { return 2 }

// Distance returns the squared horizontal distance.
func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx, dy := s.X-q.X, s.Y-q.Y

	return dx*dx + dy*dy
}

// sitePoints satisfies kdtree.Interface.
type sitePoints []site

func (p sitePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p sitePoints) Len() int                              { return len(p) }
func (p sitePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p sitePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(sitePlane{sitePoints: p, Dim: d}, kdtree.MedianOfRandoms(sitePlane{sitePoints: p, Dim: d}, 100))
}

// sitePlane sorts sitePoints along one dimension.
type sitePlane struct {
	sitePoints
	kdtree.Dim
}

func (p sitePlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.sitePoints[i].X < p.sitePoints[j].X
	}

	return p.sitePoints[i].Y < p.sitePoints[j].Y
}

func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	return sitePlane{sitePoints: p.sitePoints[start:end], Dim: p.Dim}
}

func (p sitePlane) Swap(i, j int) {
	p.sitePoints[i], p.sitePoints[j] = p.sitePoints[j], p.sitePoints[i]
}
