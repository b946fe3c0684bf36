package template

import (
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/scene/memscene"
)

// geoReq wraps a default request into a geometry request targeting a
// fresh collection.
func geoReq(w *memscene.World, deferGeo bool) *GeoRequest {
	return NewRequest().Geo(deferGeo, w.NewCollection("out"))
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

func TestObjectCloneLinksAndRemaps(t *testing.T) {
	w, env := newWorldEnv(1)
	w.AddMaterial("skin")
	w.AddMaterial("tan")
	src := addBody(w, "Body")

	nNode, nErr := newObjectNode(env, "obj", ObjectSettings{Object: "Body"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, false)
	req.Materials["skin"] = "tan"

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got == src {
		t.Fatal("returned the source instead of a clone")
	}
	if got.Name == src.Name {
		t.Errorf("clone kept the source name %q", got.Name)
	}
	if got.Mesh != src.Mesh {
		t.Error("clone should share the source mesh")
	}
	if got.Slots[0].Material != "tan" {
		t.Errorf("slot material = %q, want tan", got.Slots[0].Material)
	}
	if src.Slots[0].Material != "skin" {
		t.Errorf("source slot mutated to %q", src.Slots[0].Material)
	}
	if len(req.Target.Objects) != 1 || req.Target.Objects[0] != got {
		t.Error("clone not linked into the target collection")
	}
}

func TestObjectRemapUnknownMaterialFails(t *testing.T) {
	w, env := newWorldEnv(1)
	w.AddMaterial("skin")
	addBody(w, "Body")

	nNode, nErr := newObjectNode(env, "obj", ObjectSettings{Object: "Body"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, false)
	req.Materials["skin"] = "nonexistent"

	if _, err := n.BuildGeo(req); err == nil {
		t.Fatal("expected error for a replacement material the scene lacks")
	}
}

func TestObjectDeferEmitsPlaceholder(t *testing.T) {
	w, env := newWorldEnv(1)
	src := addBody(w, "Body")
	src.Pos = v3.Vec{X: 1, Y: 2, Z: 3}
	src.Rot = v3.Vec{Z: 0.5}

	nNode, nErr := newObjectNode(env, "obj", ObjectSettings{Object: "Body"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, true)
	req.Materials["skin"] = "tan"

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectEmpty {
		t.Errorf("placeholder type = %v, want empty", got.Type)
	}
	if !vecNear(got.Pos, src.Pos) || !vecNear(got.Rot, src.Rot) {
		t.Error("placeholder does not carry the source transform")
	}
	if ref, _ := got.Props[scene.PropDeferObject].(string); ref != "Body" {
		t.Errorf("deferred reference = %v, want Body", got.Props[scene.PropDeferObject])
	}

	// The stamped override map must not alias the live request map.
	mats, ok := got.Props[scene.PropMaterials].(map[string]string)
	if !ok || mats["skin"] != "tan" {
		t.Fatalf("stamped materials = %v, want skin->tan", got.Props[scene.PropMaterials])
	}
	req.Materials["skin"] = "pale"
	if mats["skin"] != "tan" {
		t.Error("stamped materials alias the request map")
	}
}

func TestObjectErrors(t *testing.T) {
	w, env := newWorldEnv(1)
	addBody(w, "Body")

	nNode, nErr := newObjectNode(env, "obj", ObjectSettings{Object: "Body"})
	n := mustGeo(t, nNode, nErr)
	req := NewRequest().Geo(false, nil)
	if _, err := n.BuildGeo(req); err == nil {
		t.Error("expected error for a missing target collection")
	}

	goneNode, goneErr := newObjectNode(env, "gone", ObjectSettings{Object: "Missing"})
	gone := mustGeo(t, goneNode, goneErr)
	if gone.Check() {
		t.Error("check should fail for a missing source object")
	}
	if _, err := gone.BuildGeo(geoReq(w, false)); err == nil {
		t.Error("expected error for a missing source object")
	}
}

// ---------------------------------------------------------------------------
// Group
// ---------------------------------------------------------------------------

// seedGroup links members into a source collection. Objects are
// registered in the world first.
func seedGroup(w *memscene.World, name string, members ...*scene.Object) {
	coll := w.NewCollection(name)
	for _, m := range members {
		w.AddObject(m)
		coll.Link(m)
	}
}

func TestGroupCloneBuildsAnchoredHierarchy(t *testing.T) {
	w, env := newWorldEnv(1)
	foot := &scene.Object{Name: "Foot", Type: scene.ObjectMesh, Scale: v3.Vec{X: 1, Y: 1, Z: 1}}
	head := &scene.Object{Name: "Head", Type: scene.ObjectMesh, Pos: v3.Vec{Z: 2}, Scale: v3.Vec{X: 1, Y: 1, Z: 1}}
	hat := &scene.Object{Name: "Hat", Type: scene.ObjectMesh, Pos: v3.Vec{Z: 2.5}, Scale: v3.Vec{X: 1, Y: 1, Z: 1}, Parent: head}
	seedGroup(w, "Figure", foot, head, hat)

	nNode, nErr := newGroupNode(env, "grp", GroupSettings{Group: "Figure"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, false)
	req.Pos = v3.Vec{X: 10}
	req.Rot = v3.Vec{Z: 0.25}
	req.Scale = 2

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectEmpty {
		t.Fatalf("root type = %v, want empty anchor", got.Type)
	}
	// The anchor sits at the lowest clone, which took the request
	// offset before the anchor was placed.
	if !vecNear(got.Pos, v3.Vec{X: 10}) {
		t.Errorf("anchor pos = %v, want {10 0 0}", got.Pos)
	}

	// Anchor plus three clones in the output collection.
	if len(req.Target.Objects) != 4 {
		t.Fatalf("output holds %d objects, want 4", len(req.Target.Objects))
	}
	byPrefix := func(prefix string) *scene.Object {
		for _, o := range req.Target.Objects {
			if strings.HasPrefix(o.Name, prefix) {
				return o
			}
		}
		t.Fatalf("no output object with prefix %q", prefix)
		return nil
	}

	footC, headC, hatC := byPrefix("Foot"), byPrefix("Head"), byPrefix("Hat")
	if footC.Parent != got || headC.Parent != got {
		t.Error("top-level clones should hang under the anchor")
	}
	if hatC.Parent != headC {
		t.Error("in-group parenting should re-form among the clones")
	}
	// Anchor children are relative to the anchor again.
	if !vecNear(footC.Pos, v3.Vec{}) || !vecNear(headC.Pos, v3.Vec{Z: 2}) {
		t.Errorf("clone offsets wrong: foot %v head %v", footC.Pos, headC.Pos)
	}
	// The child member keeps its own transform untouched.
	if !vecNear(hatC.Pos, v3.Vec{Z: 2.5}) {
		t.Errorf("parented clone pos = %v, want {0 0 2.5}", hatC.Pos)
	}
	if !vecNear(footC.Rot, v3.Vec{Z: 0.25}) {
		t.Errorf("top-level clone rot = %v, want request rotation", footC.Rot)
	}
	if !vecNear(footC.Scale, v3.Vec{X: 2, Y: 2, Z: 2}) {
		t.Errorf("top-level clone scale = %v, want uniform 2", footC.Scale)
	}
}

func TestGroupArmatureBecomesRoot(t *testing.T) {
	w, env := newWorldEnv(1)
	rig := &scene.Object{Name: "Rig", Type: scene.ObjectArmature, Scale: v3.Vec{X: 1, Y: 1, Z: 1}}
	skin := &scene.Object{
		Name: "Skin", Type: scene.ObjectMesh, Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Modifiers: []scene.Modifier{{Kind: scene.ModifierArmature, Target: rig}},
	}
	// Armature listed last so the retarget pass cannot rely on order.
	seedGroup(w, "Rigged", skin, rig)

	nNode, nErr := newGroupNode(env, "grp", GroupSettings{Group: "Rigged"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, false)

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectArmature {
		t.Fatalf("root type = %v, want armature", got.Type)
	}
	var skinClone *scene.Object
	for _, o := range req.Target.Objects {
		if o.Type == scene.ObjectMesh {
			skinClone = o
		}
	}
	if skinClone == nil {
		t.Fatal("mesh clone missing from output")
	}
	if skinClone.Modifiers[0].Target != got {
		t.Error("armature modifier still points at the source rig")
	}
}

func TestGroupDeferred(t *testing.T) {
	w, env := newWorldEnv(1)
	rig := &scene.Object{
		Name: "Rig", Type: scene.ObjectArmature, Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Bones: []scene.Bone{{Name: "root"}},
	}
	skin := &scene.Object{
		Name: "Skin", Type: scene.ObjectMesh, Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Modifiers: []scene.Modifier{{Kind: scene.ModifierArmature, Target: rig}},
	}
	seedGroup(w, "Rigged", skin, rig)

	nNode, nErr := newGroupNode(env, "grp", GroupSettings{Group: "Rigged"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, true)
	req.Pos = v3.Vec{X: 4}
	req.Scale = 3

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectArmature {
		t.Fatalf("deferred root type = %v, want armature clone", got.Type)
	}
	if !vecNear(got.Pos, v3.Vec{X: 4}) || !vecNear(got.Scale, v3.Vec{X: 3, Y: 3, Z: 3}) {
		t.Error("deferred armature should take the request transform")
	}
	mark, ok := got.Props[scene.PropDeferGroup].(scene.DeferredGroup)
	if !ok {
		t.Fatalf("deferred marker = %v, want DeferredGroup", got.Props[scene.PropDeferGroup])
	}
	if mark.Group != "Rigged" || mark.Armature != "Rig" {
		t.Errorf("marker = %+v, want group Rigged armature Rig", mark)
	}
	// Only the placeholder lands in the output.
	if len(req.Target.Objects) != 1 {
		t.Errorf("output holds %d objects, want 1", len(req.Target.Objects))
	}
}

func TestGroupDeferredWithoutArmature(t *testing.T) {
	w, env := newWorldEnv(1)
	a := &scene.Object{Name: "A", Type: scene.ObjectMesh, Pos: v3.Vec{Z: 1}, Scale: v3.Vec{X: 1, Y: 1, Z: 1}}
	b := &scene.Object{Name: "B", Type: scene.ObjectMesh, Pos: v3.Vec{Z: -1}, Scale: v3.Vec{X: 1, Y: 1, Z: 1}}
	seedGroup(w, "Plain", a, b)

	nNode, nErr := newGroupNode(env, "grp", GroupSettings{Group: "Plain"})
	n := mustGeo(t, nNode, nErr)
	req := geoReq(w, true)

	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectEmpty {
		t.Fatalf("placeholder type = %v, want empty", got.Type)
	}
	if !vecNear(got.Pos, v3.Vec{Z: -1}) {
		t.Errorf("placeholder pos = %v, want the lowest member", got.Pos)
	}
	mark, _ := got.Props[scene.PropDeferGroup].(scene.DeferredGroup)
	if mark.Group != "Plain" || mark.Armature != "" {
		t.Errorf("marker = %+v, want group Plain without armature", mark)
	}
}

func TestGroupEmptyCollectionFails(t *testing.T) {
	w, env := newWorldEnv(1)
	w.NewCollection("Empty")

	nNode, nErr := newGroupNode(env, "grp", GroupSettings{Group: "Empty"})
	n := mustGeo(t, nNode, nErr)
	if _, err := n.BuildGeo(geoReq(w, false)); err == nil {
		t.Fatal("expected error for an empty source group")
	}
}

// ---------------------------------------------------------------------------
// GeoSwitch
// ---------------------------------------------------------------------------

func TestGeoSwitchWeightExtremes(t *testing.T) {
	cases := []struct {
		name   string
		weight float64
		prefix string
	}{
		{"always first", 1.1, "A"},
		{"never first", 0, "B"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := newWorldEnv(3)
			addBody(w, "A")
			addBody(w, "B")

			nNode, nErr := newGeoSwitchNode(env, "sw", GeoSwitchSettings{Weight: tc.weight})
			n := mustGeo(t, nNode, nErr)
			aNode, aErr := newObjectNode(env, "a", ObjectSettings{Object: "A"})
			a := mustGeo(t, aNode, aErr)
			bNode, bErr := newObjectNode(env, "b", ObjectSettings{Object: "B"})
			b := mustGeo(t, bNode, bErr)
			if err := n.Wire(PortObjectA, a); err != nil {
				t.Fatalf("wire: %v", err)
			}
			if err := n.Wire(PortObjectB, b); err != nil {
				t.Fatalf("wire: %v", err)
			}

			for i := 0; i < 8; i++ {
				got, err := n.BuildGeo(geoReq(w, false))
				if err != nil {
					t.Fatalf("build %d: %v", i, err)
				}
				if !strings.HasPrefix(got.Name, tc.prefix) {
					t.Fatalf("build %d picked %q, want prefix %q", i, got.Name, tc.prefix)
				}
			}
		})
	}
}

func TestGeoSwitchRejectsPlacerChild(t *testing.T) {
	_, env := newWorldEnv(1)
	n, err := newGeoSwitchNode(env, "sw", GeoSwitchSettings{})
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}
	p := newProbe(env, "p")
	if err := n.Wire(PortObjectA, p); err == nil {
		t.Fatal("expected capability error wiring a placer into a geometry port")
	}
	if err := n.Wire("Side 3", p); err == nil {
		t.Fatal("expected port error for an undeclared port")
	}
}

// ---------------------------------------------------------------------------
// Parent
// ---------------------------------------------------------------------------

func TestParentConstrainsChildToBone(t *testing.T) {
	w, env := newWorldEnv(1)
	w.AddObject(&scene.Object{
		Name: "Rig", Type: scene.ObjectArmature, Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Bones: []scene.Bone{
			{Name: "spine", Pos: v3.Vec{Z: 1}},
			{Name: "hand", Pos: v3.Vec{X: 0.7, Z: 1.4}, Rot: v3.Vec{Z: 0.3}},
		},
	})
	addBody(w, "Sword")

	nNode, nErr := newParentNode(env, "par", ParentSettings{Bone: "hand"})
	n := mustGeo(t, nNode, nErr)
	rigNode, rigErr := newObjectNode(env, "rig", ObjectSettings{Object: "Rig"})
	rig := mustGeo(t, rigNode, rigErr)
	swordNode, swordErr := newObjectNode(env, "sword", ObjectSettings{Object: "Sword"})
	sword := mustGeo(t, swordNode, swordErr)
	if err := n.Wire(PortParentGroup, rig); err != nil {
		t.Fatalf("wire: %v", err)
	}
	if err := n.Wire(PortChildObject, sword); err != nil {
		t.Fatalf("wire: %v", err)
	}

	req := geoReq(w, false)
	got, err := n.BuildGeo(req)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if got.Type != scene.ObjectArmature {
		t.Fatalf("returned %q, want the parent armature", got.Name)
	}

	var child *scene.Object
	for _, o := range req.Target.Objects {
		if strings.HasPrefix(o.Name, "Sword") {
			child = o
		}
	}
	if child == nil {
		t.Fatal("child clone missing from output")
	}
	if len(child.Constraints) != 1 {
		t.Fatalf("child holds %d constraints, want 1", len(child.Constraints))
	}
	c := child.Constraints[0]
	if c.Target != got || c.Bone != "hand" {
		t.Errorf("constraint = %+v, want target parent bone hand", c)
	}
	bone, _ := got.Bone("hand")
	if c.InverseBind != bone.InverseMatrix() {
		t.Error("inverse bind not captured from the bone pose")
	}
}

func TestParentUnknownBoneFails(t *testing.T) {
	w, env := newWorldEnv(1)
	w.AddObject(&scene.Object{
		Name: "Rig", Type: scene.ObjectArmature, Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Bones: []scene.Bone{{Name: "spine"}},
	})
	addBody(w, "Sword")

	nNode, nErr := newParentNode(env, "par", ParentSettings{Bone: "tail"})
	n := mustGeo(t, nNode, nErr)
	rigNode, rigErr := newObjectNode(env, "rig", ObjectSettings{Object: "Rig"})
	rig := mustGeo(t, rigNode, rigErr)
	swordNode, swordErr := newObjectNode(env, "sword", ObjectSettings{Object: "Sword"})
	sword := mustGeo(t, swordNode, swordErr)
	if err := n.Wire(PortParentGroup, rig); err != nil {
		t.Fatalf("wire: %v", err)
	}
	if err := n.Wire(PortChildObject, sword); err != nil {
		t.Fatalf("wire: %v", err)
	}
	if _, err := n.BuildGeo(geoReq(w, false)); err == nil {
		t.Fatal("expected error for a bone the armature lacks")
	}
}
