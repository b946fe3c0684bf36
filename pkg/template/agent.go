package template

import (
	"sort"

	"github.com/chazu/throng/pkg/scene"
)

// AgentSettings configures a terminal Agent node.
type AgentSettings struct {
	// Brain is the brain type registered for every agent this node
	// places.
	Brain string
	// Defer makes the geometry subgraph emit placeholders instead of
	// full clones, for a later bulk-resolution pass.
	Defer bool
}

// agentNode is the terminal sink of a placement branch: it resolves the
// wired geometry subgraph into a fresh collection, stamps the request
// transform and overrides on the returned root, and registers the agent
// with the runtime.
type agentNode struct {
	base
	cfg AgentSettings
}

func newAgentNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(AgentSettings)
	if !ok {
		return nil, settingsError(KindAgent, name, "AgentSettings", settings)
	}
	return &agentNode{base: newBase(env, KindAgent, name), cfg: cfg}, nil
}

func (n *agentNode) Wire(port string, child Node) error {
	if port != PortObjects {
		return n.badPort(port)
	}
	return n.wireGeo(port, child)
}

func (n *agentNode) Check() bool {
	return n.hasGeo(PortObjects) && n.cfg.Brain != ""
}

func (n *agentNode) Build(req *Request) error {
	n.builds++
	in, err := n.geoInput(PortObjects)
	if err != nil {
		return err
	}
	coll := n.env.Scene.NewCollection(req.Group + "/" + n.cfg.Brain)
	top, err := in.BuildGeo(req.Geo(n.cfg.Defer, coll))
	if err != nil {
		return err
	}
	top.Pos = req.Pos
	top.Rot = req.Rot
	top.Scale = uniformScale(req.Scale)
	top.SetProp(scene.PropAgentMaterials, copyMaterials(req.Materials))
	return n.env.Agents.Register(scene.Agent{
		Name:     top.Name,
		Brain:    n.cfg.Brain,
		Group:    req.Group,
		GeoGroup: coll.Name,
		Tags:     packTags(req.Tags),
	})
}

// packTags flattens a tag map into a name-sorted list.
func packTags(tags map[string]float64) []scene.Tag {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]scene.Tag, len(names))
	for i, name := range names {
		out[i] = scene.Tag{Name: name, Value: tags[name]}
	}
	return out
}

// SwitchSettings configures a Switch node. Weight is the probability in
// [0, 1] of taking the "Template 1" branch.
type SwitchSettings struct {
	Weight float64
}

// switchNode builds exactly one of its two placement branches per
// request.
type switchNode struct {
	base
	cfg SwitchSettings
}

func newSwitchNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(SwitchSettings)
	if !ok {
		return nil, settingsError(KindSwitch, name, "SwitchSettings", settings)
	}
	return &switchNode{base: newBase(env, KindSwitch, name), cfg: cfg}, nil
}

func (n *switchNode) Wire(port string, child Node) error {
	if port != PortTemplateA && port != PortTemplateB {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *switchNode) Check() bool {
	return n.hasPlacer(PortTemplateA) && n.hasPlacer(PortTemplateB)
}

func (n *switchNode) Build(req *Request) error {
	n.builds++
	port := PortTemplateB
	if n.env.Rand.Float64() < n.cfg.Weight {
		port = PortTemplateA
	}
	in, err := n.placerInput(port)
	if err != nil {
		return err
	}
	return in.Build(req)
}
