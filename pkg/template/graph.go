package template

import (
	"fmt"
	"sort"
)

// Severity indicates whether a validation finding blocks evaluation or
// is merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks evaluation
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Node     string // instance name ("" if graph-level)
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %q: %s", e.Severity, e.Node, e.Message)
}

// Graph is a compiled template graph: named node instances wired
// through ports. The graph owns its nodes; nodes may be shared inputs
// of several parents but never form cycles. Validate reports a cycle
// as an error before any build runs it into unbounded recursion.
type Graph struct {
	env   *Env
	reg   *Registry
	nodes map[string]Node
	order []string
	// wires records parent -> children by instance name, mirroring the
	// node-held input references for validation and root discovery.
	wires map[string][]string
	wired map[string]bool
}

// NewGraph returns an empty graph building against env with the
// built-in node registry.
func NewGraph(env *Env) *Graph {
	return NewGraphWith(env, Default())
}

// NewGraphWith returns an empty graph using a custom registry.
func NewGraphWith(env *Env, reg *Registry) *Graph {
	return &Graph{
		env:   env,
		reg:   reg,
		nodes: make(map[string]Node),
		wires: make(map[string][]string),
		wired: make(map[string]bool),
	}
}

// Env returns the evaluation environment the graph builds against.
func (g *Graph) Env() *Env {
	return g.env
}

// Add constructs a node of the given kind under a unique instance name.
func (g *Graph) Add(kind, name string, settings any) (Node, error) {
	if _, ok := g.nodes[name]; ok {
		return nil, fmt.Errorf("template: node %q already defined", name)
	}
	n, err := g.reg.New(g.env, kind, name, settings)
	if err != nil {
		return nil, err
	}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return n, nil
}

// Node returns the named node instance.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes lists instance names in definition order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Wire attaches child to a named port of parent. Port typing is
// enforced here, at graph construction, not just at Check time.
func (g *Graph) Wire(parent, port, child string) error {
	p, ok := g.nodes[parent]
	if !ok {
		return fmt.Errorf("template: wire: no node %q", parent)
	}
	c, ok := g.nodes[child]
	if !ok {
		return fmt.Errorf("template: wire: no node %q", child)
	}
	if err := p.Wire(port, c); err != nil {
		return err
	}
	g.wires[parent] = append(g.wires[parent], child)
	g.wired[child] = true
	return nil
}

// Roots lists the nodes that are not wired into any parent, in
// definition order. These are the graph's entry points.
func (g *Graph) Roots() []string {
	var roots []string
	for _, name := range g.order {
		if !g.wired[name] {
			roots = append(roots, name)
		}
	}
	return roots
}

// Build evaluates the named root with the given request. A nil request
// starts from a fresh default request. The node must be a Placer;
// geometry producers only build inside an Agent's geometry subgraph.
func (g *Graph) Build(name string, req *Request) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("template: build: no node %q", name)
	}
	p, ok := n.(Placer)
	if !ok {
		return fmt.Errorf("template: build: %s %q is not a placer", n.Kind(), name)
	}
	if req == nil {
		req = NewRequest()
	}
	return p.Build(req)
}

// Validate runs structural validation: cycle detection over the wired
// graph, then every node's own Check. An empty result means the graph
// is ready to build. Read-only.
func (g *Graph) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, g.validateDAG()...)
	errs = append(errs, g.validateNodes()...)
	return errs
}

// validateDAG checks for cycles using DFS with 3-color marking. White =
// unvisited, gray = on the current path, black = fully explored; a gray
// node reached again closes a cycle.
func (g *Graph) validateDAG() []ValidationError {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var errs []ValidationError

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				Node:     name,
				Message:  "cycle detected through this node",
				Severity: SeverityError,
			})
			return true
		}
		color[name] = gray
		children := append([]string(nil), g.wires[name]...)
		sort.Strings(children)
		for _, c := range children {
			if visit(c) {
				break
			}
		}
		color[name] = black
		return false
	}

	for _, name := range g.order {
		visit(name)
	}
	return errs
}

// validateNodes runs every node's advisory Check and reports failures.
// Unreferenced geometry producers get a warning: they can never build,
// because only an Agent converts a request for a geometry subgraph.
func (g *Graph) validateNodes() []ValidationError {
	var errs []ValidationError
	for _, name := range g.order {
		n := g.nodes[name]
		if !n.Check() {
			errs = append(errs, ValidationError{
				Node:     name,
				Message:  fmt.Sprintf("%s settings or inputs failed validation", n.Kind()),
				Severity: SeverityError,
			})
		}
		if _, geo := n.(GeoProducer); geo && !g.wired[name] {
			errs = append(errs, ValidationError{
				Node:     name,
				Message:  "geometry producer is not wired into any parent",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}
