package template

import (
	"fmt"
	"math/rand"

	"github.com/chazu/throng/pkg/scene"
)

// Port names used by the built-in node kinds. Single-input placement
// nodes take their child on PortTemplate; multi-input kinds name their
// ports individually. Combine accepts children on any port name.
const (
	PortTemplate    = "Template"
	PortObjects     = "Objects"
	PortObjectA     = "Object 1"
	PortObjectB     = "Object 2"
	PortTemplateA   = "Template 1"
	PortTemplateB   = "Template 2"
	PortParentGroup = "Parent Group"
	PortChildObject = "Child Object"
)

// Env is the evaluation environment a graph builds against: the host
// scene, the agent runtime, and the random stream every sampling draw
// comes from. One Env per evaluation run; reusing an Env with the same
// seed over the same scene reproduces the run exactly.
type Env struct {
	Scene  scene.Scene
	Agents scene.AgentRuntime
	Rand   *rand.Rand
}

// NewEnv returns an evaluation environment with a deterministic random
// stream derived from seed.
func NewEnv(sc scene.Scene, agents scene.AgentRuntime, seed int64) *Env {
	return &Env{Scene: sc, Agents: agents, Rand: rand.New(rand.NewSource(seed))}
}

// Node is the surface every template node exposes to the composer.
// Exactly one of the two capability interfaces (Placer, GeoProducer) is
// implemented by each kind; Wire rejects children of the wrong
// capability so miswiring surfaces at graph construction.
type Node interface {
	// Name is the instance name assigned by the authoring layer.
	Name() string
	// Kind is the registry identifier of the node's type.
	Kind() string
	// BuildCount reports how many times the node has built. Diagnostic
	// only; no engine logic depends on it.
	BuildCount() int
	// Check validates structure and settings against the current
	// external state without side effects. Advisory: callers decide
	// whether a false result aborts the run.
	Check() bool
	// Wire attaches a child to a named input port.
	Wire(port string, child Node) error
}

// Placer consumes a build request and places zero or more agents.
type Placer interface {
	Node
	Build(req *Request) error
}

// GeoProducer resolves a geometry request into the root scene object of
// the produced geometry.
type GeoProducer interface {
	Node
	BuildGeo(req *GeoRequest) (*scene.Object, error)
}

// base carries the pieces every node kind shares: identity, wired
// inputs, the evaluation environment, and the build counter. Settings
// live on the concrete types and stay immutable after construction;
// lazy caches (spatial indices) are separate fields on the concrete
// types, written once on first build.
type base struct {
	name   string
	kind   string
	env    *Env
	inputs map[string]Node
	builds int
}

func newBase(env *Env, kind, name string) base {
	return base{name: name, kind: kind, env: env, inputs: make(map[string]Node)}
}

func (b *base) Name() string    { return b.name }
func (b *base) Kind() string    { return b.kind }
func (b *base) BuildCount() int { return b.builds }

// errorf prefixes an error with the node's kind and name.
func (b *base) errorf(format string, args ...any) error {
	return fmt.Errorf("%s %q: %s", b.kind, b.name, fmt.Sprintf(format, args...))
}

// wirePlacer attaches a Placer child, rejecting other capabilities.
func (b *base) wirePlacer(port string, child Node) error {
	if _, ok := child.(Placer); !ok {
		return b.errorf("port %q needs a placer, %s %q is not one",
			port, child.Kind(), child.Name())
	}
	b.inputs[port] = child
	return nil
}

// wireGeo attaches a GeoProducer child, rejecting other capabilities.
func (b *base) wireGeo(port string, child Node) error {
	if _, ok := child.(GeoProducer); !ok {
		return b.errorf("port %q needs a geometry producer, %s %q is not one",
			port, child.Kind(), child.Name())
	}
	b.inputs[port] = child
	return nil
}

// badPort is the Wire error for a port the kind does not declare.
func (b *base) badPort(port string) error {
	return b.errorf("no port %q", port)
}

// placerInput resolves a wired Placer child for building.
func (b *base) placerInput(port string) (Placer, error) {
	n, ok := b.inputs[port]
	if !ok {
		return nil, b.errorf("port %q not wired", port)
	}
	p, ok := n.(Placer)
	if !ok {
		return nil, b.errorf("port %q wired to %s %q, which is not a placer",
			port, n.Kind(), n.Name())
	}
	return p, nil
}

// geoInput resolves a wired GeoProducer child for building.
func (b *base) geoInput(port string) (GeoProducer, error) {
	n, ok := b.inputs[port]
	if !ok {
		return nil, b.errorf("port %q not wired", port)
	}
	g, ok := n.(GeoProducer)
	if !ok {
		return nil, b.errorf("port %q wired to %s %q, which is not a geometry producer",
			port, n.Kind(), n.Name())
	}
	return g, nil
}

// hasPlacer reports whether the port holds a Placer child.
func (b *base) hasPlacer(port string) bool {
	n, ok := b.inputs[port]
	if !ok {
		return false
	}
	_, ok = n.(Placer)
	return ok
}

// hasGeo reports whether the port holds a GeoProducer child.
func (b *base) hasGeo(port string) bool {
	n, ok := b.inputs[port]
	if !ok {
		return false
	}
	_, ok = n.(GeoProducer)
	return ok
}
