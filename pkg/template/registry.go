package template

import "fmt"

// Kind identifiers for the built-in node library. The authoring layer
// addresses constructors by these names.
const (
	KindObject            = "Object"
	KindGroup             = "Group"
	KindGeoSwitch         = "GeoSwitch"
	KindParent            = "Parent"
	KindOffset            = "Offset"
	KindRandom            = "Random"
	KindPointTowards      = "PointTowards"
	KindAddToGroup        = "AddToGroup"
	KindRandomMaterial    = "RandomMaterial"
	KindSetTag            = "SetTag"
	KindCombine           = "Combine"
	KindRandomPositioning = "RandomPositioning"
	KindFormation         = "Formation"
	KindTarget            = "Target"
	KindObstacle          = "Obstacle"
	KindGround            = "Ground"
	KindAgent             = "Agent"
	KindSwitch            = "Switch"
)

// Constructor builds an unwired node from kind-specific settings. A
// constructor rejects settings of the wrong type.
type Constructor func(env *Env, name string, settings any) (Node, error)

// Registry maps node-kind identifiers to constructors.
type Registry struct {
	ctors map[string]Constructor
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor under a kind identifier. Registering the
// same kind twice is a programming error and panics.
func (r *Registry) Register(kind string, c Constructor) {
	if _, ok := r.ctors[kind]; ok {
		panic(fmt.Sprintf("template: kind %q registered twice", kind))
	}
	r.ctors[kind] = c
	r.order = append(r.order, kind)
}

// Kinds lists the registered kind identifiers in registration order.
func (r *Registry) Kinds() []string {
	return append([]string(nil), r.order...)
}

// New constructs a node of the given kind.
func (r *Registry) New(env *Env, kind, name string, settings any) (Node, error) {
	c, ok := r.ctors[kind]
	if !ok {
		return nil, fmt.Errorf("template: unknown node kind %q", kind)
	}
	return c(env, name, settings)
}

// Default returns a registry holding every built-in node kind.
func Default() *Registry {
	r := NewRegistry()
	r.Register(KindObject, newObjectNode)
	r.Register(KindGroup, newGroupNode)
	r.Register(KindGeoSwitch, newGeoSwitchNode)
	r.Register(KindAddToGroup, newAddToGroupNode)
	r.Register(KindSwitch, newSwitchNode)
	r.Register(KindParent, newParentNode)
	r.Register(KindRandomMaterial, newRandomMaterialNode)
	r.Register(KindAgent, newAgentNode)
	r.Register(KindOffset, newOffsetNode)
	r.Register(KindRandom, newRandomNode)
	r.Register(KindPointTowards, newPointTowardsNode)
	r.Register(KindCombine, newCombineNode)
	r.Register(KindRandomPositioning, newRandomPositioningNode)
	r.Register(KindFormation, newFormationNode)
	r.Register(KindTarget, newTargetNode)
	r.Register(KindObstacle, newObstacleNode)
	r.Register(KindGround, newGroundNode)
	r.Register(KindSetTag, newSetTagNode)
	return r
}

// settingsError is the shared constructor error for mismatched settings
// types.
func settingsError(kind, name string, want string, got any) error {
	return fmt.Errorf("%s %q: settings must be %s, got %T", kind, name, want, got)
}
