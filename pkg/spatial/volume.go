package spatial

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// VolumeIndex answers point-containment queries over a fixed set of
// axis-aligned boxes.
type VolumeIndex struct {
	tree  *rtreego.Rtree
	boxes []sdf.Box3
}

// NewVolumeIndex builds a containment index over the given boxes.
func NewVolumeIndex(boxes []sdf.Box3) *VolumeIndex {
	tree := rtreego.NewTree(3, 8, 32)
	for i, b := range boxes {
		r, err := rtreego.NewRect(
			rtreego.Point{b.Min.X - queryEps, b.Min.Y - queryEps, b.Min.Z - queryEps},
			[]float64{
				b.Max.X - b.Min.X + 2*queryEps,
				b.Max.Y - b.Min.Y + 2*queryEps,
				b.Max.Z - b.Min.Z + 2*queryEps,
			})
		if err != nil {
			panic(err)
		}
		tree.Insert(&entry{rect: r, index: i})
	}
	return &VolumeIndex{tree: tree, boxes: boxes}
}

// Len reports the number of indexed boxes.
func (x *VolumeIndex) Len() int {
	return len(x.boxes)
}

// Contains returns the indices of every box containing p, inclusive of
// box faces.
func (x *VolumeIndex) Contains(p v3.Vec) []int {
	var out []int
	for _, found := range x.tree.SearchIntersect(point3(p).ToRect(queryEps)) {
		e := found.(*entry)
		b := x.boxes[e.index]
		if p.X >= b.Min.X && p.X <= b.Max.X &&
			p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
			p.Z >= b.Min.Z && p.Z <= b.Max.Z {
			out = append(out, e.index)
		}
	}
	return out
}
