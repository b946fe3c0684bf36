// Package spatial provides the index structures the placement engine
// queries during a build: a nearest-point index for surface snapping and
// neighbor relaxation, a triangle-mesh index for ground ray casts, and a
// bounding-volume index for obstacle containment. All three are built on
// an R-tree broad phase.
package spatial

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// queryEps pads degenerate query rectangles; R-tree rectangles must
// have positive extent on every axis.
const queryEps = 1e-9

// Neighbor is one result of a nearest-point query.
type Neighbor struct {
	Point v3.Vec
	Index int
	Dist  float64
}

// Hit is one result of a ray cast.
type Hit struct {
	Point  v3.Vec
	Normal v3.Vec
	Index  int
	Dist   float64
}

// entry is an indexed R-tree member; it maps tree results back to the
// slice the index was built from.
type entry struct {
	rect  rtreego.Rect
	index int
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

func point3(v v3.Vec) rtreego.Point {
	return rtreego.Point{v.X, v.Y, v.Z}
}
