package template

import (
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
)

// DefaultGroup is the logical group agents land in when no AddToGroup
// node redirects them.
const DefaultGroup = "allAgents"

// Request is the state propagated down the placement side of a graph.
// Nodes mutate it in place as it descends; fan-out nodes hand each
// branch its own copy.
type Request struct {
	Pos   v3.Vec
	Rot   v3.Vec // Euler XYZ, radians
	Scale float64
	Tags  map[string]float64
	Group string
	// Materials maps a material name to the name of the material that
	// replaces it when geometry is materialized.
	Materials map[string]string
}

// NewRequest returns a request at the origin with identity transform,
// no tags, and the default group.
func NewRequest() *Request {
	return &Request{
		Scale:     1,
		Tags:      make(map[string]float64),
		Group:     DefaultGroup,
		Materials: make(map[string]string),
	}
}

// Copy returns an independently mutable copy. Tag and material maps are
// deep-copied; transform fields are plain values.
func (r *Request) Copy() *Request {
	cp := *r
	cp.Tags = make(map[string]float64, len(r.Tags))
	for k, v := range r.Tags {
		cp.Tags[k] = v
	}
	cp.Materials = make(map[string]string, len(r.Materials))
	for k, v := range r.Materials {
		cp.Materials[k] = v
	}
	return &cp
}

// copyMaterials snapshots a material-override map so placeholder props
// and agent stamps do not alias the request's live map.
func copyMaterials(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// GeoRequest is the request form passed through geometry-producing
// subgraphs.
type GeoRequest struct {
	Request
	// Defer makes geometry nodes emit placeholder markers instead of
	// resolving instance geometry immediately.
	Defer bool
	// Target is the collection newly created geometry is linked into.
	Target *scene.Collection
}

// Geo converts the request for a geometry subgraph. The conversion is
// one way; a geometry request never converts back.
func (r *Request) Geo(deferGeo bool, target *scene.Collection) *GeoRequest {
	return &GeoRequest{Request: *r.Copy(), Defer: deferGeo, Target: target}
}

// Copy returns an independently mutable copy of a geometry request.
// The target collection is shared, not copied.
func (g *GeoRequest) Copy() *GeoRequest {
	return &GeoRequest{Request: *g.Request.Copy(), Defer: g.Defer, Target: g.Target}
}
