package spatial

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"

	"github.com/chazu/throng/pkg/scene"
)

// MeshIndex answers ray queries against a triangle mesh. Triangles are
// indexed by their XY footprint; a cast clips the ray to the mesh bounds
// and tests only the triangles whose footprint the clipped ray crosses.
type MeshIndex struct {
	tree *rtreego.Rtree
	tris []sdf.Triangle3
	min  v3.Vec
	max  v3.Vec
}

// NewMeshIndex builds a ray index from mesh geometry. Vertices are taken
// in the mesh's local space; callers transform query rays into that
// space.
func NewMeshIndex(m *scene.Mesh) *MeshIndex {
	x := &MeshIndex{
		tree: rtreego.NewTree(2, 8, 32),
		min:  v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		max:  v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, f := range m.Faces {
		var tri sdf.Triangle3
		for j := 0; j < 3; j++ {
			v := m.Vertices[f[j]]
			tri[j] = v
			x.min = x.min.Min(v)
			x.max = x.max.Max(v)
		}
		x.tris = append(x.tris, tri)
	}
	for i := range x.tris {
		x.tree.Insert(&entry{rect: triFootprint(&x.tris[i]), index: i})
	}
	return x
}

// Len reports the number of indexed triangles.
func (x *MeshIndex) Len() int {
	return len(x.tris)
}

// triFootprint is the XY bounding rectangle of a triangle, padded so
// degenerate (axis-aligned) triangles still have positive extent.
func triFootprint(t *sdf.Triangle3) rtreego.Rect {
	minX := math.Min(t[0].X, math.Min(t[1].X, t[2].X))
	minY := math.Min(t[0].Y, math.Min(t[1].Y, t[2].Y))
	maxX := math.Max(t[0].X, math.Max(t[1].X, t[2].X))
	maxY := math.Max(t[0].Y, math.Max(t[1].Y, t[2].Y))
	r, err := rtreego.NewRect(
		rtreego.Point{minX - queryEps, minY - queryEps},
		[]float64{maxX - minX + 2*queryEps, maxY - minY + 2*queryEps})
	if err != nil {
		panic(err)
	}
	return r
}

// CastRay casts a ray from origin along dir and returns the nearest
// forward hit. ok is false when nothing is hit.
func (x *MeshIndex) CastRay(origin, dir v3.Vec) (Hit, bool) {
	if len(x.tris) == 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()
	t0, t1, ok := x.clip(origin, dir)
	if !ok {
		return Hit{}, false
	}

	// Search the XY footprint of the clipped ray segment.
	a := origin.Add(dir.MulScalar(t0))
	b := origin.Add(dir.MulScalar(t1))
	minX := math.Min(a.X, b.X) - queryEps
	minY := math.Min(a.Y, b.Y) - queryEps
	rect, err := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{math.Abs(a.X-b.X) + 2*queryEps, math.Abs(a.Y-b.Y) + 2*queryEps})
	if err != nil {
		return Hit{}, false
	}

	best := Hit{Dist: math.Inf(1)}
	found := false
	for _, cand := range x.tree.SearchIntersect(rect) {
		e := cand.(*entry)
		t, hit := rayTriangle(origin, dir, &x.tris[e.index])
		if hit && t < best.Dist {
			best = Hit{
				Point:  origin.Add(dir.MulScalar(t)),
				Normal: x.tris[e.index].Normal(),
				Index:  e.index,
				Dist:   t,
			}
			found = true
		}
	}
	return best, found
}

// clip intersects the forward ray with the mesh bounding box using the
// slab method, returning the parametric overlap [t0, t1].
func (x *MeshIndex) clip(origin, dir v3.Vec) (float64, float64, bool) {
	t0, t1 := 0.0, math.Inf(1)
	lo := [3]float64{x.min.X, x.min.Y, x.min.Z}
	hi := [3]float64{x.max.X, x.max.Y, x.max.Z}
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < queryEps {
			if o[i] < lo[i]-queryEps || o[i] > hi[i]+queryEps {
				return 0, 0, false
			}
			continue
		}
		ta := (lo[i] - o[i]) / d[i]
		tb := (hi[i] - o[i]) / d[i]
		if ta > tb {
			ta, tb = tb, ta
		}
		t0 = math.Max(t0, ta)
		t1 = math.Min(t1, tb)
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

// rayTriangle is the Moller-Trumbore intersection test. It returns the
// ray parameter of the hit; only forward hits count.
func rayTriangle(origin, dir v3.Vec, tri *sdf.Triangle3) (float64, bool) {
	const eps = 1e-12
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(tri[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < eps {
		return 0, false
	}
	return t, true
}
