package template

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/spatial"
)

// CombineSettings is empty; Combine has no configuration.
type CombineSettings struct{}

// combineNode builds every wired child once, each on an independent copy
// of the request.
type combineNode struct {
	base
}

func newCombineNode(env *Env, name string, settings any) (Node, error) {
	switch settings.(type) {
	case nil, CombineSettings:
	default:
		return nil, settingsError(KindCombine, name, "CombineSettings or nil", settings)
	}
	return &combineNode{base: newBase(env, KindCombine, name)}, nil
}

// Wire accepts any port name; each name holds one child.
func (n *combineNode) Wire(port string, child Node) error {
	return n.wirePlacer(port, child)
}

func (n *combineNode) Check() bool {
	for port := range n.inputs {
		if !n.hasPlacer(port) {
			return false
		}
	}
	return true
}

func (n *combineNode) Build(req *Request) error {
	n.builds++
	// Sorted port order keeps fan-out deterministic across runs.
	ports := make([]string, 0, len(n.inputs))
	for port := range n.inputs {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		in, err := n.placerInput(port)
		if err != nil {
			return err
		}
		if err := in.Build(req.Copy()); err != nil {
			return err
		}
	}
	return nil
}

// SampleMode selects how RandomPositioning draws candidate offsets.
type SampleMode int

const (
	// SampleRadius draws from a disk around the request position.
	SampleRadius SampleMode = iota
	// SampleArea draws from an axis-aligned rectangle.
	SampleArea
	// SampleSector draws from an angular window of the disk.
	SampleSector
)

// RandomPositioningSettings configures a RandomPositioning node.
// Direction and Angle are degrees; Angle is the full width of the
// sector window centered on Direction. MaxX and MaxY are the full side
// lengths of the area rectangle.
type RandomPositioningSettings struct {
	Count  int
	Mode   SampleMode
	Radius float64
	MaxX   float64
	MaxY   float64

	Direction float64
	Angle     float64

	Relax           bool
	RelaxRadius     float64
	RelaxIterations int
}

// randomPositioningNode scatters Count placements around the request
// position, optionally spreading them by iterated relaxation.
type randomPositioningNode struct {
	base
	cfg RandomPositioningSettings
}

func newRandomPositioningNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(RandomPositioningSettings)
	if !ok {
		return nil, settingsError(KindRandomPositioning, name, "RandomPositioningSettings", settings)
	}
	return &randomPositioningNode{base: newBase(env, KindRandomPositioning, name), cfg: cfg}, nil
}

func (n *randomPositioningNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *randomPositioningNode) Check() bool {
	return n.hasPlacer(PortTemplate)
}

func (n *randomPositioningNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	positions := make([]v3.Vec, 0, n.cfg.Count)
	for i := 0; i < n.cfg.Count; i++ {
		var diff v3.Vec
		switch n.cfg.Mode {
		case SampleRadius:
			angle := uniform(n.env.Rand, -math.Pi, math.Pi)
			diff = v3.Vec{X: math.Sin(angle), Y: math.Cos(angle)}.MulScalar(n.foldedRadius())
			diff = scene.RotateEuler(diff, req.Rot)
		case SampleArea:
			// Area samples stay axis aligned.
			diff = v3.Vec{
				X: uniform(n.env.Rand, -n.cfg.MaxX/2, n.cfg.MaxX/2),
				Y: uniform(n.env.Rand, -n.cfg.MaxY/2, n.cfg.MaxY/2),
			}
		case SampleSector:
			half := n.cfg.Angle / 2
			angle := radians(uniform(n.env.Rand, -half, half) + n.cfg.Direction)
			diff = v3.Vec{X: math.Sin(angle), Y: math.Cos(angle)}.MulScalar(n.foldedRadius())
			diff = scene.RotateEuler(diff, req.Rot)
		default:
			return n.errorf("unknown sample mode %d", n.cfg.Mode)
		}
		positions = append(positions, req.Pos.Add(diff))
	}
	if n.cfg.Relax {
		relaxPositions(positions, n.cfg.RelaxRadius, n.cfg.RelaxIterations)
	}
	for _, pos := range positions {
		branch := req.Copy()
		branch.Pos = pos
		if err := in.Build(branch); err != nil {
			return err
		}
	}
	return nil
}

// foldedRadius draws a distance in [0, Radius] with density rising
// linearly toward the rim, so samples land uniformly over the disk
// area instead of clumping at the center.
func (n *randomPositioningNode) foldedRadius() float64 {
	l := n.env.Rand.Float64() + n.env.Rand.Float64()
	if l > 1 {
		l = 2 - l
	}
	return l * n.cfg.Radius
}

// relaxPositions spreads candidates by iterated neighbor repulsion. Each
// pass indexes a snapshot of the current positions; every neighbor
// inside twice the relax radius pushes the point away, and the point
// moves by the averaged push.
func relaxPositions(positions []v3.Vec, radius float64, iterations int) {
	for i := 0; i < iterations; i++ {
		snapshot := append([]v3.Vec(nil), positions...)
		index := spatial.NewNearestIndex(snapshot)
		for pi, p := range snapshot {
			// The point itself is among its neighbors and counts
			// toward the divisor.
			neighbors := index.InRange(p, radius*2)
			if len(neighbors) == 0 {
				continue
			}
			var adjust v3.Vec
			for _, nb := range neighbors {
				if nb.Index == pi {
					continue
				}
				v := p.Sub(nb.Point)
				d := v.Length()
				if d == 0 {
					continue
				}
				adjust = adjust.Add(v.MulScalar((2*radius - d) / d))
			}
			positions[pi] = positions[pi].Add(adjust.MulScalar(1 / float64(len(neighbors))))
		}
	}
}

// FormationSettings configures a Formation grid. RowMargin is the
// spacing between placements within a column, ColumnMargin the spacing
// between columns. Both follow the request's rotation and scale.
type FormationSettings struct {
	Count        int
	Rows         int
	RowMargin    float64
	ColumnMargin float64
}

// formationNode lays placements out in a rows-by-columns grid, filling
// column by column.
type formationNode struct {
	base
	cfg FormationSettings
}

func newFormationNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(FormationSettings)
	if !ok {
		return nil, settingsError(KindFormation, name, "FormationSettings", settings)
	}
	return &formationNode{base: newBase(env, KindFormation, name), cfg: cfg}, nil
}

func (n *formationNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *formationNode) Check() bool {
	return n.hasPlacer(PortTemplate) && n.cfg.Rows > 0
}

func (n *formationNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	if n.cfg.Rows <= 0 {
		return n.errorf("rows must be positive, got %d", n.cfg.Rows)
	}
	diffRow := scene.RotateEuler(v3.Vec{X: n.cfg.RowMargin}, req.Rot).MulScalar(req.Scale)
	diffCol := scene.RotateEuler(v3.Vec{Y: n.cfg.ColumnMargin}, req.Rot).MulScalar(req.Scale)
	place := func(col, row int) error {
		branch := req.Copy()
		branch.Pos = req.Pos.
			Add(diffCol.MulScalar(float64(col))).
			Add(diffRow.MulScalar(float64(row)))
		return in.Build(branch)
	}
	full := n.cfg.Count / n.cfg.Rows
	for col := 0; col < full; col++ {
		for row := 0; row < n.cfg.Rows; row++ {
			if err := place(col, row); err != nil {
				return err
			}
		}
	}
	for row := 0; row < n.cfg.Count%n.cfg.Rows; row++ {
		if err := place(full, row); err != nil {
			return err
		}
	}
	return nil
}

// TargetMode selects what a Target node iterates over.
type TargetMode int

const (
	// TargetGroup places once per member of a referenced collection.
	TargetGroup TargetMode = iota
	// TargetVertex places once per vertex of a referenced mesh object.
	TargetVertex
)

// TargetSettings configures a Target node. Group names the source
// collection in group mode; Object names the mesh object in vertex
// mode.
type TargetSettings struct {
	Mode   TargetMode
	Group  string
	Object string
	// Overwrite replaces the request transform with each target's
	// transform instead of offsetting from it.
	Overwrite bool
}

// targetNode fans the build out over scene targets.
type targetNode struct {
	base
	cfg TargetSettings
}

func newTargetNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(TargetSettings)
	if !ok {
		return nil, settingsError(KindTarget, name, "TargetSettings", settings)
	}
	return &targetNode{base: newBase(env, KindTarget, name), cfg: cfg}, nil
}

func (n *targetNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *targetNode) Check() bool {
	if !n.hasPlacer(PortTemplate) {
		return false
	}
	switch n.cfg.Mode {
	case TargetGroup:
		_, ok := n.env.Scene.Collection(n.cfg.Group)
		return ok
	case TargetVertex:
		obj, ok := n.env.Scene.Object(n.cfg.Object)
		return ok && obj.Mesh != nil
	}
	return false
}

func (n *targetNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	switch n.cfg.Mode {
	case TargetGroup:
		return n.buildGroup(in, req)
	case TargetVertex:
		return n.buildVertices(in, req)
	}
	return n.errorf("unknown target mode %d", n.cfg.Mode)
}

func (n *targetNode) buildGroup(in Placer, req *Request) error {
	coll, ok := n.env.Scene.Collection(n.cfg.Group)
	if !ok {
		return n.errorf("target group %q not in scene", n.cfg.Group)
	}
	for _, obj := range coll.Objects {
		branch := req.Copy()
		if n.cfg.Overwrite {
			branch.Pos = obj.Pos
			branch.Rot = obj.Rot
		} else {
			off := scene.RotateEuler(obj.Pos, req.Rot).MulScalar(req.Scale)
			branch.Pos = req.Pos.Add(off)
			branch.Rot = req.Rot.Add(obj.Rot)
		}
		if err := in.Build(branch); err != nil {
			return err
		}
	}
	return nil
}

func (n *targetNode) buildVertices(in Placer, req *Request) error {
	obj, ok := n.env.Scene.Object(n.cfg.Object)
	if !ok {
		return n.errorf("target object %q not in scene", n.cfg.Object)
	}
	if obj.Mesh == nil {
		return n.errorf("target object %q has no mesh", n.cfg.Object)
	}
	if n.cfg.Overwrite {
		world := obj.Matrix()
		for _, v := range obj.Mesh.Vertices {
			branch := req.Copy()
			branch.Pos = world.MulPosition(v)
			branch.Rot = obj.Rot
			if err := in.Build(branch); err != nil {
				return err
			}
		}
		return nil
	}
	for _, v := range obj.Mesh.Vertices {
		branch := req.Copy()
		branch.Pos = req.Pos.Add(scene.RotateEuler(v, req.Rot).MulScalar(req.Scale))
		if err := in.Build(branch); err != nil {
			return err
		}
	}
	return nil
}
