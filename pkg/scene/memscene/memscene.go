// Package memscene provides an in-memory implementation of the scene
// contracts for tests and demos. It stands in for a host application's
// scene graph and agent runtime: unique object naming, deep clones,
// collections, and agent groups with freeze/reset bookkeeping.
package memscene

import (
	"fmt"
	"log/slog"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
)

// Compile-time interface checks.
var (
	_ scene.Scene        = (*World)(nil)
	_ scene.AgentRuntime = (*World)(nil)
)

// group is the runtime record behind one named agent group.
type group struct {
	kind   scene.GroupKind
	frozen bool
	agents []scene.Agent
}

// World is an in-memory scene graph plus agent runtime.
type World struct {
	objects     map[string]*scene.Object
	collections map[string]*scene.Collection
	materials   map[string]bool
	groups      map[string]*group
	log         *slog.Logger
}

// New returns an empty world. Diagnostics go to slog's default logger;
// use NewWithLogger to direct them elsewhere.
func New() *World {
	return NewWithLogger(slog.Default())
}

// NewWithLogger returns an empty world logging through the given logger.
func NewWithLogger(log *slog.Logger) *World {
	return &World{
		objects:     make(map[string]*scene.Object),
		collections: make(map[string]*scene.Collection),
		materials:   make(map[string]bool),
		groups:      make(map[string]*group),
		log:         log,
	}
}

// uniqueName returns base if free, else base with a ".001"-style suffix,
// matching the naming convention of DCC scene graphs.
func (w *World) uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%03d", base, i)
		if !taken(name) {
			return name
		}
	}
}

// AddObject registers an object under its own name, suffixing on clash.
// It returns the object for chaining during scene setup.
func (w *World) AddObject(obj *scene.Object) *scene.Object {
	obj.Name = w.uniqueName(obj.Name, func(n string) bool {
		_, ok := w.objects[n]
		return ok
	})
	w.objects[obj.Name] = obj
	return obj
}

// AddMaterial registers a material asset name.
func (w *World) AddMaterial(name string) {
	w.materials[name] = true
}

// Object returns the named object.
func (w *World) Object(name string) (*scene.Object, bool) {
	o, ok := w.objects[name]
	return o, ok
}

// Collection returns the named collection.
func (w *World) Collection(name string) (*scene.Collection, bool) {
	c, ok := w.collections[name]
	return c, ok
}

// HasMaterial reports whether a material asset exists.
func (w *World) HasMaterial(name string) bool {
	return w.materials[name]
}

// Clone deep-copies an object under a unique name. Mesh data is shared
// with the source; slots, modifiers, bones, constraints, and props are
// copied so the clone mutates independently. The clone keeps the
// source's parent pointer; re-parenting is the caller's business.
func (w *World) Clone(obj *scene.Object) *scene.Object {
	cp := *obj
	cp.Slots = append([]scene.MaterialSlot(nil), obj.Slots...)
	cp.Modifiers = append([]scene.Modifier(nil), obj.Modifiers...)
	cp.Bones = append([]scene.Bone(nil), obj.Bones...)
	cp.Constraints = append([]scene.BoneConstraint(nil), obj.Constraints...)
	if obj.Props != nil {
		cp.Props = make(map[string]any, len(obj.Props))
		for k, v := range obj.Props {
			cp.Props[k] = v
		}
	}
	return w.AddObject(&cp)
}

// NewCollection creates a collection, suffixing the requested name if
// taken.
func (w *World) NewCollection(name string) *scene.Collection {
	name = w.uniqueName(name, func(n string) bool {
		_, ok := w.collections[n]
		return ok
	})
	c := &scene.Collection{Name: name}
	w.collections[name] = c
	return c
}

// NewEmpty creates an empty anchor object at the given position.
func (w *World) NewEmpty(name string, pos v3.Vec) *scene.Object {
	e := &scene.Object{
		Name:  name,
		Type:  scene.ObjectEmpty,
		Pos:   pos,
		Scale: v3.Vec{X: 1, Y: 1, Z: 1},
	}
	return w.AddObject(e)
}

// Register records an agent into its group, creating the group as
// manual if the engine has not declared it first.
func (w *World) Register(a scene.Agent) error {
	g, ok := w.groups[a.Group]
	if !ok {
		g = &group{kind: scene.GroupManual}
		w.groups[a.Group] = g
	}
	g.agents = append(g.agents, a)
	w.log.Debug("agent registered",
		"agent", a.Name, "brain", a.Brain, "group", a.Group, "geo", a.GeoGroup)
	return nil
}

// EnsureGroup creates the named group with the given kind if absent.
// An existing group keeps its kind and freeze flag.
func (w *World) EnsureGroup(name string, kind scene.GroupKind) {
	if _, ok := w.groups[name]; !ok {
		w.groups[name] = &group{kind: kind}
	}
}

// FreezeGroup sets the freeze flag on an existing group.
func (w *World) FreezeGroup(name string, frozen bool) {
	if g, ok := w.groups[name]; ok {
		g.frozen = frozen
	}
}

// GroupState resolves the rebuild disposition of a named group.
func (w *World) GroupState(name string) scene.GroupState {
	g, ok := w.groups[name]
	switch {
	case !ok:
		return scene.GroupAbsent
	case g.frozen:
		return scene.GroupFrozen
	case g.kind == scene.GroupAuto:
		return scene.GroupNeedsReset
	default:
		return scene.GroupPopulated
	}
}

// GroupAgents returns the agents registered into a group, in
// registration order.
func (w *World) GroupAgents(name string) []scene.Agent {
	g, ok := w.groups[name]
	if !ok {
		return nil
	}
	return append([]scene.Agent(nil), g.agents...)
}

// ResetGroup removes a group's agents and their geometry: every object
// in each agent's geometry collection is deleted from the scene and the
// collection itself is dropped. The group record survives with its kind
// and freeze flag.
func (w *World) ResetGroup(name string) {
	g, ok := w.groups[name]
	if !ok {
		return
	}
	for _, a := range g.agents {
		coll, ok := w.collections[a.GeoGroup]
		if !ok {
			continue
		}
		for _, obj := range coll.Objects {
			delete(w.objects, obj.Name)
		}
		delete(w.collections, a.GeoGroup)
	}
	w.log.Debug("group reset", "group", name, "agents", len(g.agents))
	g.agents = nil
}

// ObjectCount reports how many objects the world holds.
func (w *World) ObjectCount() int {
	return len(w.objects)
}
