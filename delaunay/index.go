package delaunay

import "math"

// bucketIndex is a uniform grid over the normalized unit box; each cell lists
// the triangles whose bounding box overlaps it.
type bucketIndex struct {
	size    int
	minX    float64
	minY    float64
	cellW   float64
	cellH   float64
	buckets [][]int
}

func newBucketIndex(pts []Point, tris []Triangle) bucketIndex {
	size := int(math.Ceil(math.Sqrt(float64(len(tris)))))
	if size < 1 {
		size = 1
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	idx := bucketIndex{
		size:    size,
		minX:    minX,
		minY:    minY,
		cellW:   math.Max(maxX-minX, 1e-12) / float64(size),
		cellH:   math.Max(maxY-minY, 1e-12) / float64(size),
		buckets: make([][]int, size*size),
	}
	for k, tr := range tris {
		lo, hi := pts[tr[0]], pts[tr[0]]
		for _, v := range tr[1:] {
			p := pts[v]
			lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
			hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
		}
		c0, r0 := idx.cell(lo)
		c1, r1 := idx.cell(hi)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				idx.buckets[r*size+c] = append(idx.buckets[r*size+c], k)
			}
		}
	}

	return idx
}

// cell clamps p into the grid and returns its (column, row).
func (b bucketIndex) cell(p Point) (int, int) {
	c := int((p.X - b.minX) / b.cellW)
	r := int((p.Y - b.minY) / b.cellH)

	return clamp(c, b.size-1), clamp(r, b.size-1)
}

// candidates lists triangles that may contain p; nil outside the padded box.
func (b bucketIndex) candidates(p Point) []int {
	pad := locateEps
	maxX := b.minX + b.cellW*float64(b.size)
	maxY := b.minY + b.cellH*float64(b.size)
	if p.X < b.minX-pad || p.Y < b.minY-pad || p.X > maxX+pad || p.Y > maxY+pad ||
		math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return nil
	}
	c, r := b.cell(p)

	return b.buckets[r*b.size+c]
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}

	return v
}
