// Package delaunay triangulates planar point sets and answers point-location
// and linear-interpolation queries on the result.
//
// Triangulate runs Bowyer–Watson incremental insertion on coordinates
// normalized to the unit box (uniform scale, aspect preserved) inside a large
// super-triangle; triangles touching the super-triangle are dropped at the end.
// The union of the remaining triangles approximates the convex hull of the
// input and serves as the sampled footprint.
//
// Complexity: O(n²) insertion in the worst case, O(1) expected Locate via a
// uniform bucket index over triangle bounding boxes.
package delaunay

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/stage"
)

var (
	// ErrTooFewPoints: fewer than three distinct points.
	ErrTooFewPoints = fmt.Errorf("delaunay: fewer than 3 distinct points: %w", stage.ErrBoundaryComputation)

	// ErrDegenerate: all points collinear, or no triangle survived.
	ErrDegenerate = fmt.Errorf("delaunay: degenerate point set: %w", stage.ErrBoundaryComputation)

	// ErrNonFinite: NaN or Inf coordinate.
	ErrNonFinite = fmt.Errorf("delaunay: non-finite coordinate: %w", stage.ErrBoundaryComputation)

	// ErrValues: value slice length differs from the vertex count.
	ErrValues = fmt.Errorf("delaunay: value count mismatch: %w", stage.ErrInputValidation)
)

// collinearEps is the relative area below which a point set is collinear.
const collinearEps = 1e-10

// locateEps is the barycentric tolerance of Locate in normalized units.
const locateEps = 1e-9

// superSize is the half-extent of the super-triangle in normalized units.
const superSize = 1e4

// Point is a planar position.
type Point struct {
	X, Y float64
}

// Triangle holds vertex indices into Triangulation.Points.
type Triangle [3]int

// Triangulation is an immutable Delaunay triangulation.
type Triangulation struct {
	// Points are the distinct input points in first-occurrence order.
	Points []Point
	// Triangles reference Points; orientation is counter-clockwise.
	Triangles []Triangle

	originX, originY, scale float64
	norm                    []Point
	index                   bucketIndex
}

type workTri struct {
	v      Triangle
	cx, cy float64 // circumcentre
	r2     float64 // squared circumradius
	bad    bool
}

// Triangulate builds the triangulation of pts. Exact duplicates are merged.
func Triangulate(pts []Point) (*Triangulation, error) {
	uniq, err := dedupe(pts)
	if err != nil {
		return nil, err
	}
	if len(uniq) < 3 {
		return nil, fmt.Errorf("%d distinct: %w", len(uniq), ErrTooFewPoints)
	}

	t := &Triangulation{Points: uniq}
	t.normalize()
	if collinear(t.norm) {
		return nil, ErrDegenerate
	}

	n := len(t.norm)
	// super-triangle vertices live at indices n, n+1, n+2
	verts := append(append([]Point(nil), t.norm...),
		Point{-superSize, -superSize},
		Point{superSize, -superSize},
		Point{0.5, superSize})
	tris := []workTri{newWorkTri(verts, Triangle{n, n + 1, n + 2})}

	type edge struct{ a, b int }
	for p := 0; p < n; p++ {
		pt := verts[p]
		var bad []int
		for k := range tris {
			dx, dy := pt.X-tris[k].cx, pt.Y-tris[k].cy
			if dx*dx+dy*dy < tris[k].r2 {
				tris[k].bad = true
				bad = append(bad, k)
			}
		}
		// boundary of the cavity = edges owned by exactly one bad triangle
		count := make(map[edge]int, 3*len(bad))
		order := make([]edge, 0, 3*len(bad))
		for _, k := range bad {
			v := tris[k].v
			for e := 0; e < 3; e++ {
				a, b := v[e], v[(e+1)%3]
				key := edge{a, b}
				if a > b {
					key = edge{b, a}
				}
				if count[key] == 0 {
					order = append(order, edge{a, b})
				}
				count[key]++
			}
		}
		kept := tris[:0]
		for _, tr := range tris {
			if !tr.bad {
				kept = append(kept, tr)
			}
		}
		tris = kept
		for _, e := range order {
			key := e
			if key.a > key.b {
				key = edge{e.b, e.a}
			}
			if count[key] == 1 {
				tris = append(tris, newWorkTri(verts, Triangle{e.a, e.b, p}))
			}
		}
	}

	for _, tr := range tris {
		if tr.v[0] >= n || tr.v[1] >= n || tr.v[2] >= n {
			continue
		}
		v := tr.v
		if orient(t.norm[v[0]], t.norm[v[1]], t.norm[v[2]]) < 0 {
			v[1], v[2] = v[2], v[1]
		}
		t.Triangles = append(t.Triangles, v)
	}
	if len(t.Triangles) == 0 {
		return nil, ErrDegenerate
	}
	t.index = newBucketIndex(t.norm, t.Triangles)

	return t, nil
}

// Locate returns the triangle containing p and p's barycentric weights with
// respect to its vertices. Points on an edge count as inside.
func (t *Triangulation) Locate(p Point) (tri int, weights [3]float64, ok bool) {
	q := t.toNorm(p)
	for _, k := range t.index.candidates(q) {
		v := t.Triangles[k]
		w, good := barycentric(t.norm[v[0]], t.norm[v[1]], t.norm[v[2]], q)
		if good && w[0] >= -locateEps && w[1] >= -locateEps && w[2] >= -locateEps {
			return k, w, true
		}
	}

	return -1, weights, false
}

// Contains reports whether p lies inside the triangulated footprint.
func (t *Triangulation) Contains(p Point) bool {
	_, _, ok := t.Locate(p)

	return ok
}

// Interpolate evaluates the piecewise-linear interpolant of values (one per
// Points entry) at p. ok is false outside the footprint.
func (t *Triangulation) Interpolate(values []float64, p Point) (float64, bool, error) {
	if len(values) != len(t.Points) {
		return 0, false, fmt.Errorf("%d values for %d points: %w", len(values), len(t.Points), ErrValues)
	}
	k, w, ok := t.Locate(p)
	if !ok {
		return math.NaN(), false, nil
	}
	v := t.Triangles[k]

	return w[0]*values[v[0]] + w[1]*values[v[1]] + w[2]*values[v[2]], true, nil
}

func dedupe(pts []Point) ([]Point, error) {
	seen := make(map[Point]struct{}, len(pts))
	out := make([]Point, 0, len(pts))
	for i, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("point %d: %w", i, ErrNonFinite)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out, nil
}

func (t *Triangulation) normalize() {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range t.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	t.originX, t.originY = minX, minY
	t.scale = math.Max(maxX-minX, maxY-minY)
	t.norm = make([]Point, len(t.Points))
	for i, p := range t.Points {
		t.norm[i] = t.toNorm(p)
	}
}

func (t *Triangulation) toNorm(p Point) Point {
	return Point{(p.X - t.originX) / t.scale, (p.Y - t.originY) / t.scale}
}

// collinear reports whether every point lies on the line through the first
// point and the point farthest from it.
func collinear(pts []Point) bool {
	a := pts[0]
	far, best := 0, -1.0
	for i, p := range pts {
		d := (p.X-a.X)*(p.X-a.X) + (p.Y-a.Y)*(p.Y-a.Y)
		if d > best {
			far, best = i, d
		}
	}
	b := pts[far]
	for _, p := range pts {
		if math.Abs(orient(a, b, p)) > collinearEps {
			return false
		}
	}

	return true
}

// orient is twice the signed area of (a, b, c); positive when counter-clockwise.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func newWorkTri(verts []Point, v Triangle) workTri {
	a, b, c := verts[v[0]], verts[v[1]], verts[v[2]]
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if d == 0 {
		// collinear triple: an infinite circumcircle swallows every later point
		return workTri{v: v, r2: math.Inf(1)}
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	cx := (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d
	cy := (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d
	dx, dy := a.X-cx, a.Y-cy

	return workTri{v: v, cx: cx, cy: cy, r2: dx*dx + dy*dy}
}

// barycentric returns the weights of p; good is false for a zero-area triangle.
func barycentric(a, b, c, p Point) ([3]float64, bool) {
	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if math.Abs(det) < 1e-18 {
		return [3]float64{}, false
	}
	l1 := ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / det
	l2 := ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / det

	return [3]float64{l1, l2, 1 - l1 - l2}, true
}
