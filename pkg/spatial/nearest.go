package spatial

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// NearestIndex answers nearest-point and radius queries over a fixed
// point set. Build once, query many times; the point set must not
// change after construction.
type NearestIndex struct {
	tree   *rtreego.Rtree
	points []v3.Vec
}

// NewNearestIndex builds an index over the given points. The slice is
// retained; indices in query results refer to it.
func NewNearestIndex(points []v3.Vec) *NearestIndex {
	tree := rtreego.NewTree(3, 8, 32)
	for i, p := range points {
		tree.Insert(&entry{rect: point3(p).ToRect(queryEps), index: i})
	}
	return &NearestIndex{tree: tree, points: points}
}

// Len reports the number of indexed points.
func (x *NearestIndex) Len() int {
	return len(x.points)
}

// Nearest returns the indexed point closest to p. ok is false when the
// index is empty.
func (x *NearestIndex) Nearest(p v3.Vec) (Neighbor, bool) {
	found := x.tree.NearestNeighbor(point3(p))
	if found == nil {
		return Neighbor{}, false
	}
	e := found.(*entry)
	pt := x.points[e.index]
	return Neighbor{Point: pt, Index: e.index, Dist: pt.Sub(p).Length()}, true
}

// InRange returns every indexed point within radius of p. The R-tree
// search over the enclosing cube is filtered down to the exact
// euclidean radius.
func (x *NearestIndex) InRange(p v3.Vec, radius float64) []Neighbor {
	if radius <= 0 {
		return nil
	}
	var out []Neighbor
	for _, found := range x.tree.SearchIntersect(point3(p).ToRect(radius)) {
		e := found.(*entry)
		pt := x.points[e.index]
		d := pt.Sub(p).Length()
		if d <= radius {
			out = append(out, Neighbor{Point: pt, Index: e.index, Dist: d})
		}
	}
	return out
}
