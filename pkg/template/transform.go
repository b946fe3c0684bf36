package template

import (
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/spatial"
)

// OffsetSettings configures an Offset node. Rotation is authored in
// degrees and converted when applied.
type OffsetSettings struct {
	// Overwrite replaces the incoming transform instead of adding to it.
	Overwrite bool
	// Reference optionally names a scene object whose location and
	// rotation are added in.
	Reference string
	Location  v3.Vec
	Rotation  v3.Vec
}

// offsetNode shifts the request transform by a fixed amount, an object's
// transform, or both.
type offsetNode struct {
	base
	cfg OffsetSettings
}

func newOffsetNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(OffsetSettings)
	if !ok {
		return nil, settingsError(KindOffset, name, "OffsetSettings", settings)
	}
	return &offsetNode{base: newBase(env, KindOffset, name), cfg: cfg}, nil
}

func (n *offsetNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *offsetNode) Check() bool {
	if !n.hasPlacer(PortTemplate) {
		return false
	}
	if n.cfg.Reference != "" {
		if _, ok := n.env.Scene.Object(n.cfg.Reference); !ok {
			return false
		}
	}
	return true
}

func (n *offsetNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	var pos, rot v3.Vec
	if !n.cfg.Overwrite {
		pos = req.Pos
		rot = req.Rot
	}
	if n.cfg.Reference != "" {
		ref, ok := n.env.Scene.Object(n.cfg.Reference)
		if !ok {
			return n.errorf("reference object %q not in scene", n.cfg.Reference)
		}
		pos = pos.Add(ref.Pos)
		rot = rot.Add(ref.Rot)
	}
	req.Pos = pos.Add(n.cfg.Location)
	req.Rot = rot.Add(radiansVec(n.cfg.Rotation))
	return in.Build(req)
}

// RandomSettings configures a Random jitter node. Rotation bounds are
// degrees about the up axis; scale bounds are multiplicative factors.
type RandomSettings struct {
	MinRotation float64
	MaxRotation float64
	MinScale    float64
	MaxScale    float64
}

// randomNode perturbs heading and scale within configured bounds.
type randomNode struct {
	base
	cfg RandomSettings
}

func newRandomNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(RandomSettings)
	if !ok {
		return nil, settingsError(KindRandom, name, "RandomSettings", settings)
	}
	return &randomNode{base: newBase(env, KindRandom, name), cfg: cfg}, nil
}

func (n *randomNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *randomNode) Check() bool {
	return n.hasPlacer(PortTemplate)
}

func (n *randomNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	req.Rot.Z += radians(uniform(n.env.Rand, n.cfg.MinRotation, n.cfg.MaxRotation))
	req.Scale *= uniform(n.env.Rand, n.cfg.MinScale, n.cfg.MaxScale)
	return in.Build(req)
}

// PointMode selects what a PointTowards node aims at.
type PointMode int

const (
	// PointAtObject aims at the target object's location.
	PointAtObject PointMode = iota
	// PointAtMesh aims at the nearest vertex of the target's mesh.
	PointAtMesh
)

// PointTowardsSettings configures a PointTowards node.
type PointTowardsSettings struct {
	Object string
	Mode   PointMode
}

// pointTowardsNode overwrites the request rotation to face a target.
type pointTowardsNode struct {
	base
	cfg PointTowardsSettings
	// verts is built from the target mesh on first build and kept for
	// the node's lifetime.
	verts *spatial.NearestIndex
}

func newPointTowardsNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(PointTowardsSettings)
	if !ok {
		return nil, settingsError(KindPointTowards, name, "PointTowardsSettings", settings)
	}
	return &pointTowardsNode{base: newBase(env, KindPointTowards, name), cfg: cfg}, nil
}

func (n *pointTowardsNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *pointTowardsNode) Check() bool {
	if !n.hasPlacer(PortTemplate) {
		return false
	}
	_, ok := n.env.Scene.Object(n.cfg.Object)
	return ok
}

func (n *pointTowardsNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	obj, ok := n.env.Scene.Object(n.cfg.Object)
	if !ok {
		return n.errorf("target object %q not in scene", n.cfg.Object)
	}
	var point v3.Vec
	switch n.cfg.Mode {
	case PointAtObject:
		point = obj.Pos
	case PointAtMesh:
		if n.verts == nil {
			if obj.Mesh == nil {
				return n.errorf("target object %q has no mesh", n.cfg.Object)
			}
			n.verts = spatial.NewNearestIndex(obj.Mesh.Vertices)
		}
		// Query in the mesh's local frame, map the winner back to world.
		local := obj.InverseMatrix().MulPosition(req.Pos)
		near, ok := n.verts.Nearest(local)
		if !ok {
			return n.errorf("target object %q has no vertices", n.cfg.Object)
		}
		point = obj.Matrix().MulPosition(near.Point)
	default:
		return n.errorf("unknown point mode %d", n.cfg.Mode)
	}
	req.Rot = trackEuler(point.Sub(req.Pos))
	return in.Build(req)
}

// AddToGroupSettings configures an AddToGroup gate.
type AddToGroupSettings struct {
	Group string
	Kind  scene.GroupKind
}

// addToGroupNode routes the subtree into a named agent group, skipping
// the build when the group already holds agents it should keep.
type addToGroupNode struct {
	base
	cfg AddToGroupSettings
}

func newAddToGroupNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(AddToGroupSettings)
	if !ok {
		return nil, settingsError(KindAddToGroup, name, "AddToGroupSettings", settings)
	}
	return &addToGroupNode{base: newBase(env, KindAddToGroup, name), cfg: cfg}, nil
}

func (n *addToGroupNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *addToGroupNode) Check() bool {
	return n.hasPlacer(PortTemplate) && strings.TrimSpace(n.cfg.Group) != ""
}

func (n *addToGroupNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	switch n.env.Agents.GroupState(n.cfg.Group) {
	case scene.GroupFrozen, scene.GroupPopulated:
		// Existing agents stay; the subtree does not build.
		return nil
	case scene.GroupNeedsReset:
		n.env.Agents.ResetGroup(n.cfg.Group)
	}
	n.env.Agents.EnsureGroup(n.cfg.Group, n.cfg.Kind)
	req.Group = n.cfg.Group
	return in.Build(req)
}

// WeightedMaterial is one entry of a RandomMaterial choice list.
type WeightedMaterial struct {
	Material string
	Weight   float64
}

// RandomMaterialSettings configures a RandomMaterial node. Target is the
// slot material name the chosen override is recorded under.
type RandomMaterialSettings struct {
	Target    string
	Materials []WeightedMaterial
}

// randomMaterialNode records a weighted material choice on the request.
type randomMaterialNode struct {
	base
	cfg   RandomMaterialSettings
	total float64
}

func newRandomMaterialNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(RandomMaterialSettings)
	if !ok {
		return nil, settingsError(KindRandomMaterial, name, "RandomMaterialSettings", settings)
	}
	n := &randomMaterialNode{base: newBase(env, KindRandomMaterial, name), cfg: cfg}
	for _, m := range cfg.Materials {
		n.total += m.Weight
	}
	return n, nil
}

func (n *randomMaterialNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *randomMaterialNode) Check() bool {
	return n.hasPlacer(PortTemplate) && len(n.cfg.Materials) > 0
}

func (n *randomMaterialNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	if len(n.cfg.Materials) == 0 {
		return n.errorf("no materials to choose from")
	}
	// Walk the cumulative weights until the sample is spent.
	s := n.env.Rand.Float64() * n.total
	chosen := n.cfg.Materials[len(n.cfg.Materials)-1].Material
	for _, m := range n.cfg.Materials {
		s -= m.Weight
		if s <= 0 {
			chosen = m.Material
			break
		}
	}
	req.Materials[n.cfg.Target] = chosen
	return in.Build(req)
}

// SetTagSettings configures a SetTag node.
type SetTagSettings struct {
	Name  string
	Value float64
}

// setTagNode writes one tag on the request. Later writes to the same
// name win.
type setTagNode struct {
	base
	cfg SetTagSettings
}

func newSetTagNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(SetTagSettings)
	if !ok {
		return nil, settingsError(KindSetTag, name, "SetTagSettings", settings)
	}
	return &setTagNode{base: newBase(env, KindSetTag, name), cfg: cfg}, nil
}

func (n *setTagNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *setTagNode) Check() bool {
	return n.hasPlacer(PortTemplate) && n.cfg.Name != ""
}

func (n *setTagNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	req.Tags[n.cfg.Name] = n.cfg.Value
	return in.Build(req)
}
