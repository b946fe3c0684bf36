package scene

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ObjectType enumerates the kinds of scene objects the engine cares about.
type ObjectType int

const (
	ObjectMesh ObjectType = iota
	ObjectArmature
	ObjectEmpty
	ObjectOther
)

func (t ObjectType) String() string {
	switch t {
	case ObjectMesh:
		return "mesh"
	case ObjectArmature:
		return "armature"
	case ObjectEmpty:
		return "empty"
	default:
		return "other"
	}
}

// Custom property keys the engine writes on created objects. Deferred
// placeholders carry the source reference and pending material overrides
// for a later bulk-resolution pass.
const (
	PropDeferObject = "throng_defer_object"
	PropDeferGroup  = "throng_defer_group"
	PropMaterials   = "throng_materials"
	// PropAgentMaterials is stamped on an agent's geometry root with
	// the final accumulated override map.
	PropAgentMaterials = "throng_agent_materials"
)

// DeferredGroup is the payload stored under PropDeferGroup on a group
// placeholder: the source group and, when the group deforms through an
// armature, the armature member the placeholder stands in for.
type DeferredGroup struct {
	Group    string
	Armature string
}

// Object is a scene-graph entity. Fields mirror what the engine reads
// and writes; a host adapter maps these onto its native representation.
type Object struct {
	Name string
	Type ObjectType

	Pos   v3.Vec
	Rot   v3.Vec // Euler XYZ, radians
	Scale v3.Vec

	// Dimensions is the world-space bounding-box extent, used by
	// obstacle volumes.
	Dimensions v3.Vec

	Parent      *Object
	Mesh        *Mesh
	Slots       []MaterialSlot
	Modifiers   []Modifier
	Bones       []Bone
	Constraints []BoneConstraint

	// Props holds engine-written custom properties (deferred markers,
	// stamped material overrides).
	Props map[string]any
}

// Bone returns the named pose bone of an armature object.
func (o *Object) Bone(name string) (*Bone, bool) {
	for i := range o.Bones {
		if o.Bones[i].Name == name {
			return &o.Bones[i], true
		}
	}
	return nil, false
}

// SetProp records a custom property, allocating the map on first use.
func (o *Object) SetProp(key string, value any) {
	if o.Props == nil {
		o.Props = make(map[string]any)
	}
	o.Props[key] = value
}

// Matrix returns the object's local-to-world transform.
func (o *Object) Matrix() sdf.M44 {
	return sdf.Translate3d(o.Pos).Mul(EulerMatrix(o.Rot)).Mul(sdf.Scale3d(o.Scale))
}

// InverseMatrix returns the object's world-to-local transform.
// The object's scale must be nonzero on every axis.
func (o *Object) InverseMatrix() sdf.M44 {
	invScale := sdf.Scale3d(v3.Vec{X: 1 / o.Scale.X, Y: 1 / o.Scale.Y, Z: 1 / o.Scale.Z})
	invPos := sdf.Translate3d(o.Pos.MulScalar(-1))
	return invScale.Mul(EulerInverse(o.Rot)).Mul(invPos)
}

// Mesh is indexed triangle geometry in the owning object's local space.
type Mesh struct {
	Vertices []v3.Vec
	Faces    [][3]int
}

// MaterialSlot is one material assignment on an object. Overrides remap
// the Material field in place on cloned objects.
type MaterialSlot struct {
	Material string
}

// ModifierKind enumerates the modifier types the engine understands.
type ModifierKind int

const (
	ModifierArmature ModifierKind = iota
	ModifierOther
)

// Modifier is a deformation modifier on a mesh object. For armature
// modifiers Target points at the deforming armature object.
type Modifier struct {
	Kind   ModifierKind
	Target *Object
}

// Bone is one pose bone of an armature, in armature space.
type Bone struct {
	Name string
	Pos  v3.Vec
	Rot  v3.Vec // Euler XYZ, radians
}

// Matrix returns the bone's pose transform in armature space.
func (b *Bone) Matrix() sdf.M44 {
	return sdf.Translate3d(b.Pos).Mul(EulerMatrix(b.Rot))
}

// InverseMatrix returns the inverse of the bone's pose transform.
func (b *Bone) InverseMatrix() sdf.M44 {
	return EulerInverse(b.Rot).Mul(sdf.Translate3d(b.Pos.MulScalar(-1)))
}

// BoneConstraint rigidly attaches an object to a bone of a target
// armature. InverseBind is captured from the bone's pose at constraint
// creation so the child keeps its world transform at bind time.
type BoneConstraint struct {
	Target      *Object
	Bone        string
	InverseBind sdf.M44
}
