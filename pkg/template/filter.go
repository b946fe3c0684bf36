package template

import (
	sdf "github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/spatial"
)

// ObstacleSettings configures an Obstacle filter. Margin inflates every
// member's bounding box on all axes.
type ObstacleSettings struct {
	Group  string
	Margin float64
}

// obstacleNode drops placements that land inside any member of an
// obstacle group. Dropping is silent; it is the node's purpose, not a
// failure.
type obstacleNode struct {
	base
	cfg ObstacleSettings
	// volumes is built from the obstacle group on first build and kept
	// for the node's lifetime.
	volumes *spatial.VolumeIndex
}

func newObstacleNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(ObstacleSettings)
	if !ok {
		return nil, settingsError(KindObstacle, name, "ObstacleSettings", settings)
	}
	return &obstacleNode{base: newBase(env, KindObstacle, name), cfg: cfg}, nil
}

func (n *obstacleNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *obstacleNode) Check() bool {
	if !n.hasPlacer(PortTemplate) {
		return false
	}
	_, ok := n.env.Scene.Collection(n.cfg.Group)
	return ok
}

func (n *obstacleNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	if n.volumes == nil {
		coll, ok := n.env.Scene.Collection(n.cfg.Group)
		if !ok {
			return n.errorf("obstacle group %q not in scene", n.cfg.Group)
		}
		boxes := make([]sdf.Box3, 0, len(coll.Objects))
		margin := v3.Vec{X: n.cfg.Margin, Y: n.cfg.Margin, Z: n.cfg.Margin}
		for _, obj := range coll.Objects {
			half := obj.Dimensions.MulScalar(0.5).Add(margin)
			boxes = append(boxes, sdf.Box3{
				Min: obj.Pos.Sub(half),
				Max: obj.Pos.Add(half),
			})
		}
		n.volumes = spatial.NewVolumeIndex(boxes)
	}
	if len(n.volumes.Contains(req.Pos)) > 0 {
		return nil
	}
	return in.Build(req)
}

// GroundSettings configures a Ground projection node. Mesh names the
// ground mesh object.
type GroundSettings struct {
	Mesh string
}

// groundNode snaps placements vertically onto a ground mesh, dropping
// those with no surface above or below them.
type groundNode struct {
	base
	cfg GroundSettings
	// surface is built from the ground mesh on first build and kept for
	// the node's lifetime.
	surface *spatial.MeshIndex
}

func newGroundNode(env *Env, name string, settings any) (Node, error) {
	cfg, ok := settings.(GroundSettings)
	if !ok {
		return nil, settingsError(KindGround, name, "GroundSettings", settings)
	}
	return &groundNode{base: newBase(env, KindGround, name), cfg: cfg}, nil
}

func (n *groundNode) Wire(port string, child Node) error {
	if port != PortTemplate {
		return n.badPort(port)
	}
	return n.wirePlacer(port, child)
}

func (n *groundNode) Check() bool {
	if !n.hasPlacer(PortTemplate) {
		return false
	}
	obj, ok := n.env.Scene.Object(n.cfg.Mesh)
	return ok && obj.Mesh != nil
}

func (n *groundNode) Build(req *Request) error {
	n.builds++
	in, err := n.placerInput(PortTemplate)
	if err != nil {
		return err
	}
	gnd, ok := n.env.Scene.Object(n.cfg.Mesh)
	if !ok {
		return n.errorf("ground mesh %q not in scene", n.cfg.Mesh)
	}
	if n.surface == nil {
		if gnd.Mesh == nil {
			return n.errorf("ground object %q has no mesh", n.cfg.Mesh)
		}
		n.surface = spatial.NewMeshIndex(gnd.Mesh)
	}
	// Rays run in the mesh's local frame; the ground's location is the
	// only transform compensated.
	local := req.Pos.Sub(gnd.Pos)
	down, downOK := n.surface.CastRay(local, v3.Vec{Z: -1})
	up, upOK := n.surface.CastRay(local, v3.Vec{Z: 1})
	var hit v3.Vec
	switch {
	case downOK && upOK:
		// Ties go downward.
		if down.Dist <= up.Dist {
			hit = down.Point
		} else {
			hit = up.Point
		}
	case downOK:
		hit = down.Point
	case upOK:
		hit = up.Point
	default:
		return nil
	}
	req.Pos = hit.Add(gnd.Pos)
	return in.Build(req)
}
