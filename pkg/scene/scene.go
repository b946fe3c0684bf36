package scene

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Scene is the read/create surface of the host scene graph.
type Scene interface {
	// Lookups
	Object(name string) (*Object, bool)
	Collection(name string) (*Collection, bool)
	HasMaterial(name string) bool

	// Creation
	// Clone deep-copies an object into the scene under a unique name.
	// The clone is registered in the object table but not linked to
	// any collection.
	Clone(obj *Object) *Object
	// NewCollection creates a collection, suffixing the requested name
	// if it is already taken. The returned collection carries the name
	// actually assigned.
	NewCollection(name string) *Collection
	// NewEmpty creates an empty anchor object at the given position.
	NewEmpty(name string, pos v3.Vec) *Object
}

// AgentRuntime is the agent/brain runtime the engine registers placed
// agents with. Group bookkeeping (freeze flags, auto-reset kinds) lives
// here rather than in the scene graph.
type AgentRuntime interface {
	Register(a Agent) error
	GroupState(name string) GroupState
	EnsureGroup(name string, kind GroupKind)
	ResetGroup(name string)
}
