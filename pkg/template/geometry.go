package template

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
)

// remapMaterials rewrites an object's material slots per the request's
// override map. A replacement naming a material the scene does not hold
// is a build failure.
func remapMaterials(sc scene.Scene, obj *scene.Object, overrides map[string]string) error {
	for i := range obj.Slots {
		repl, ok := overrides[obj.Slots[i].Material]
		if !ok {
			continue
		}
		if !sc.HasMaterial(repl) {
			return fmt.Errorf("replacement material %q not in scene", repl)
		}
		obj.Slots[i].Material = repl
	}
	return nil
}

// lowestMember returns the member with the smallest Z position.
func lowestMember(objs []*scene.Object) *scene.Object {
	low := objs[0]
	for _, o := range objs[1:] {
		if o.Pos.Z < low.Pos.Z {
			low = o
		}
	}
	return low
}

// uniformScale expands the request's uniform scale to a per-axis vector.
func uniformScale(s float64) v3.Vec {
	return v3.Vec{X: s, Y: s, Z: s}
}

// ObjectSettings configures an Object node.
type ObjectSettings struct {
	// Object names the scene object cloned per placement.
	Object string
}

// objectNode clones one referenced scene object per geometry request.
type objectNode struct {
	base
	cfg ObjectSettings
}

func newObjectNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(ObjectSettings)
	if !ok {
		return nil, settingsError(KindObject, name, "ObjectSettings", settings)
	}
	return &objectNode{base: newBase(env, KindObject, name), cfg: cfg}, nil
}

func (n *objectNode) Wire(port string, child Node) error {
	return n.badPort(port)
}

func (n *objectNode) Check() bool {
	_, ok := n.env.Scene.Object(n.cfg.Object)
	return ok
}

func (n *objectNode) BuildGeo(req *GeoRequest) (*scene.Object, error) {
	n.builds++
	if req.Target == nil {
		return nil, n.errorf("geometry request has no target collection")
	}
	src, ok := n.env.Scene.Object(n.cfg.Object)
	if !ok {
		return nil, n.errorf("object %q not in scene", n.cfg.Object)
	}
	var cp *scene.Object
	if req.Defer {
		// Placeholder at the source transform, carrying the reference
		// and the pending overrides for the bulk-resolution pass.
		cp = n.env.Scene.NewEmpty("Empty", src.Pos)
		cp.Rot = src.Rot
		cp.Scale = src.Scale
		cp.SetProp(scene.PropDeferObject, src.Name)
		cp.SetProp(scene.PropMaterials, copyMaterials(req.Materials))
	} else {
		cp = n.env.Scene.Clone(src)
		if err := remapMaterials(n.env.Scene, cp, req.Materials); err != nil {
			return nil, n.errorf("%v", err)
		}
	}
	req.Target.Link(cp)
	return cp, nil
}

// GroupSettings configures a Group node.
type GroupSettings struct {
	// Group names the source collection whose members are cloned
	// together.
	Group string
}

// groupNode clones a whole source group per geometry request,
// preserving intra-group parenting and armature bindings.
type groupNode struct {
	base
	cfg GroupSettings
}

func newGroupNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(GroupSettings)
	if !ok {
		return nil, settingsError(KindGroup, name, "GroupSettings", settings)
	}
	return &groupNode{base: newBase(env, KindGroup, name), cfg: cfg}, nil
}

func (n *groupNode) Wire(port string, child Node) error {
	return n.badPort(port)
}

func (n *groupNode) Check() bool {
	_, ok := n.env.Scene.Collection(n.cfg.Group)
	return ok
}

func (n *groupNode) BuildGeo(req *GeoRequest) (*scene.Object, error) {
	n.builds++
	if req.Target == nil {
		return nil, n.errorf("geometry request has no target collection")
	}
	coll, ok := n.env.Scene.Collection(n.cfg.Group)
	if !ok {
		return nil, n.errorf("group %q not in scene", n.cfg.Group)
	}
	members := coll.Objects
	if len(members) == 0 {
		return nil, n.errorf("group %q is empty", n.cfg.Group)
	}

	if req.Defer {
		return n.buildDeferred(req, members)
	}

	clones := make([]*scene.Object, len(members))
	for i, src := range members {
		clones[i] = n.env.Scene.Clone(src)
	}
	// cloneOf maps a member's original parent to its clone, so in-group
	// hierarchies re-form among the clones.
	cloneOf := func(orig *scene.Object) *scene.Object {
		for i, m := range members {
			if m == orig {
				return clones[i]
			}
		}
		return nil
	}

	var armature *scene.Object
	for i, cp := range clones {
		if err := remapMaterials(n.env.Scene, cp, req.Materials); err != nil {
			return nil, n.errorf("%v", err)
		}
		if parent := cloneOf(members[i].Parent); parent != nil {
			cp.Parent = parent
		} else {
			// Request offsets apply to top-level members only; children
			// follow their parents.
			cp.Rot = cp.Rot.Add(req.Rot)
			cp.Scale = uniformScale(req.Scale)
			cp.Pos = cp.Pos.Add(req.Pos)
		}
		req.Target.Link(cp)
		if cp.Type == scene.ObjectArmature {
			armature = cp
		}
	}

	if armature != nil {
		// Second pass so member order inside the group does not matter.
		for _, cp := range clones {
			if cp.Type != scene.ObjectMesh {
				continue
			}
			for mi := range cp.Modifiers {
				if cp.Modifiers[mi].Kind == scene.ModifierArmature {
					cp.Modifiers[mi].Target = armature
				}
			}
		}
		return armature, nil
	}

	// No armature in the group: synthesize an empty anchor at the
	// lowest clone and hang the un-parented clones under it.
	anchor := n.env.Scene.NewEmpty("Empty", lowestMember(clones).Pos)
	req.Target.Link(anchor)
	for i, cp := range clones {
		if cloneOf(members[i].Parent) == nil {
			cp.Pos = cp.Pos.Sub(req.Pos)
			cp.Parent = anchor
		}
	}
	return anchor, nil
}

// buildDeferred emits a single placeholder for the whole group: the
// cloned armature when the group has one, else an empty anchor at the
// lowest member.
func (n *groupNode) buildDeferred(req *GeoRequest, members []*scene.Object) (*scene.Object, error) {
	for _, src := range members {
		if src.Type != scene.ObjectArmature {
			continue
		}
		cp := n.env.Scene.Clone(src)
		cp.Pos = req.Pos
		cp.Rot = req.Rot
		cp.Scale = uniformScale(req.Scale)
		req.Target.Link(cp)
		cp.SetProp(scene.PropDeferGroup, scene.DeferredGroup{Group: n.cfg.Group, Armature: src.Name})
		cp.SetProp(scene.PropMaterials, copyMaterials(req.Materials))
		return cp, nil
	}
	anchor := n.env.Scene.NewEmpty("Empty", lowestMember(members).Pos)
	req.Target.Link(anchor)
	anchor.SetProp(scene.PropDeferGroup, scene.DeferredGroup{Group: n.cfg.Group})
	anchor.SetProp(scene.PropMaterials, copyMaterials(req.Materials))
	return anchor, nil
}

// GeoSwitchSettings configures a GeoSwitch node. Weight is the
// probability in [0,1] of taking the "Object 1" branch.
type GeoSwitchSettings struct {
	Weight float64
}

// geoSwitchNode picks one of two geometry branches per request.
type geoSwitchNode struct {
	base
	cfg GeoSwitchSettings
}

func newGeoSwitchNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(GeoSwitchSettings)
	if !ok {
		return nil, settingsError(KindGeoSwitch, name, "GeoSwitchSettings", settings)
	}
	return &geoSwitchNode{base: newBase(env, KindGeoSwitch, name), cfg: cfg}, nil
}

func (n *geoSwitchNode) Wire(port string, child Node) error {
	switch port {
	case PortObjectA, PortObjectB:
		return n.wireGeo(port, child)
	}
	return n.badPort(port)
}

func (n *geoSwitchNode) Check() bool {
	return n.hasGeo(PortObjectA) && n.hasGeo(PortObjectB)
}

func (n *geoSwitchNode) BuildGeo(req *GeoRequest) (*scene.Object, error) {
	n.builds++
	port := PortObjectB
	if n.env.Rand.Float64() < n.cfg.Weight {
		port = PortObjectA
	}
	in, err := n.geoInput(port)
	if err != nil {
		return nil, err
	}
	return in.BuildGeo(req)
}

// ParentSettings configures a Parent node. Bone names the pose bone of
// the parent armature the child is constrained to.
type ParentSettings struct {
	Bone string
}

// parentNode builds a parent and a child geometry subgraph and rigidly
// constrains the child to a bone of the parent's armature.
type parentNode struct {
	base
	cfg ParentSettings
}

func newParentNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(ParentSettings)
	if !ok {
		return nil, settingsError(KindParent, name, "ParentSettings", settings)
	}
	return &parentNode{base: newBase(env, KindParent, name), cfg: cfg}, nil
}

func (n *parentNode) Wire(port string, child Node) error {
	switch port {
	case PortParentGroup, PortChildObject:
		return n.wireGeo(port, child)
	}
	return n.badPort(port)
}

func (n *parentNode) Check() bool {
	return n.hasGeo(PortParentGroup) && n.hasGeo(PortChildObject)
}

func (n *parentNode) BuildGeo(req *GeoRequest) (*scene.Object, error) {
	n.builds++
	parentIn, err := n.geoInput(PortParentGroup)
	if err != nil {
		return nil, err
	}
	childIn, err := n.geoInput(PortChildObject)
	if err != nil {
		return nil, err
	}
	parent, err := parentIn.BuildGeo(req.Copy())
	if err != nil {
		return nil, err
	}
	child, err := childIn.BuildGeo(req.Copy())
	if err != nil {
		return nil, err
	}
	bone, ok := parent.Bone(n.cfg.Bone)
	if !ok {
		return nil, n.errorf("bone %q not on %q", n.cfg.Bone, parent.Name)
	}
	// The inverse bind matrix is captured from the bone's pose at
	// constraint creation.
	child.Constraints = append(child.Constraints, scene.BoneConstraint{
		Target:      parent,
		Bone:        bone.Name,
		InverseBind: bone.InverseMatrix(),
	})
	return parent, nil
}
