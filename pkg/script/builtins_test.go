package script

import (
	"math"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/scene/memscene"
	"github.com/chazu/throng/pkg/template"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// newWorldEnv returns a fresh world and a seeded environment over it.
func newWorldEnv(seed int64) (*memscene.World, *template.Env) {
	w := memscene.New()
	return w, template.NewEnv(w, w, seed)
}

// addBody registers a small mesh object, the standard clone source for
// script tests.
func addBody(w *memscene.World, name string) *scene.Object {
	return w.AddObject(&scene.Object{
		Name:       name,
		Type:       scene.ObjectMesh,
		Scale:      v3.Vec{X: 1, Y: 1, Z: 1},
		Dimensions: v3.Vec{X: 1, Y: 1, Z: 2},
		Mesh: &scene.Mesh{
			Vertices: []v3.Vec{{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {Y: 0.5}},
			Faces:    [][3]int{{0, 1, 2}},
		},
		Slots: []scene.MaterialSlot{{Material: "skin"}},
	})
}

// mustEval evaluates source expecting success.
func mustEval(t *testing.T, env *template.Env, source string) *template.Graph {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source, env)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	return g
}

// mustFailEval evaluates source expecting a non-fatal eval error and
// returns the first message.
func mustFailEval(t *testing.T, env *template.Env, source string) string {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source, env)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if g != nil {
		t.Fatal("expected nil graph on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}
	return evalErrs[0].Message
}

// agentTops resolves the geometry root of every agent in a group, in
// registration order.
func agentTops(t *testing.T, w *memscene.World, group string) []*scene.Object {
	t.Helper()
	agents := w.GroupAgents(group)
	tops := make([]*scene.Object, len(agents))
	for i, a := range agents {
		obj, ok := w.Object(a.Name)
		if !ok {
			t.Fatalf("agent %d: object %q not in scene", i, a.Name)
		}
		tops[i] = obj
	}
	return tops
}

func vecNear(a, b v3.Vec) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

// ---------------------------------------------------------------------------
// Preprocessing
// ---------------------------------------------------------------------------

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(agent :brain "walker")`,
			expect: `(agent "__kw_brain" "walker")`,
		},
		{
			name:   "multiple keywords",
			input:  `(formation :count 10 :rows 3)`,
			expect: `(formation "__kw_count" 10 "__kw_rows" 3)`,
		},
		{
			name:   "hyphen inside keyword preserved",
			input:  `:relax-radius`,
			expect: `"__kw_relax-radius"`,
		},
		{
			name:   "kebab form name",
			input:  `(point-towards :object "Campfire")`,
			expect: `(point_towards "__kw_object" "Campfire")`,
		},
		{
			name:   "keyword inside string untouched",
			input:  `"a :mode marker"`,
			expect: `"a :mode marker"`,
		},
		{
			name:   "hyphen inside string untouched",
			input:  `"night-watch"`,
			expect: `"night-watch"`,
		},
		{
			name:   "backtick string untouched",
			input:  "`raw :kw stays-put`",
			expect: "`raw :kw stays-put`",
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(vec3 0 0 -90)`,
			expect: `(vec3 0 0 -90)`,
		},
		{
			name:   "hyphen before digit preserved",
			input:  `x-2`,
			expect: `x-2`,
		},
		{
			name:   "comment rewritten",
			input:  `;; scatter the :crowd`,
			expect: `// scatter the :crowd`,
		},
		{
			name:   "single semicolon comment",
			input:  `; note`,
			expect: `// note`,
		},
		{
			name:   "mixed line with trailing comment",
			input:  "(set-tag :tag \"speed\" :value 1.4) ; tune-later\n(+ 1 2)",
			expect: "(set_tag \"__kw_tag\" \"speed\" \"__kw_value\" 1.4) // tune-later\n(+ 1 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Graph construction
// ---------------------------------------------------------------------------

func TestScriptBuildsCrowd(t *testing.T) {
	w, env := newWorldEnv(11)
	addBody(w, "Body")

	source := `
(deftemplate "walker"
  (agent :brain "stroll"
    (object :object "Body")))

(random-positioning :count 3 :mode :radius :radius 4
  (template "walker"))
`
	g := mustEval(t, env, source)

	if got := len(g.Nodes()); got != 3 {
		t.Fatalf("node count: got %d, want 3", got)
	}
	if _, ok := g.Node("object_1"); !ok {
		t.Error("missing generated node object_1")
	}
	n, ok := g.Node("agent_1")
	if !ok {
		t.Fatal("missing generated node agent_1")
	}
	if n.Kind() != template.KindAgent {
		t.Errorf("kind: got %q, want %q", n.Kind(), template.KindAgent)
	}

	roots := g.Roots()
	if len(roots) != 1 || roots[0] != "randompositioning_1" {
		t.Fatalf("roots: got %v, want [randompositioning_1]", roots)
	}
	if findings := g.Validate(); len(findings) > 0 {
		t.Fatalf("unexpected validation findings: %v", findings)
	}
	if err := g.Build(roots[0], nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents(template.DefaultGroup)
	if len(agents) != 3 {
		t.Fatalf("agents: got %d, want 3", len(agents))
	}
	for i, a := range agents {
		if a.Brain != "stroll" {
			t.Errorf("agent %d brain: got %q, want %q", i, a.Brain, "stroll")
		}
		coll, ok := w.Collection(a.GeoGroup)
		if !ok {
			t.Fatalf("agent %d: geometry collection %q missing", i, a.GeoGroup)
		}
		if len(coll.Objects) != 1 {
			t.Errorf("agent %d: collection size: got %d, want 1", i, len(coll.Objects))
		}
	}
	for i, top := range agentTops(t, w, template.DefaultGroup) {
		if r := math.Hypot(top.Pos.X, top.Pos.Y); r > 4+1e-9 {
			t.Errorf("agent %d: radius %.3f exceeds 4", i, r)
		}
		if top.Pos.Z != 0 {
			t.Errorf("agent %d: z: got %v, want 0", i, top.Pos.Z)
		}
	}
}

func TestScriptNodeNames(t *testing.T) {
	w, env := newWorldEnv(1)
	addBody(w, "Body")

	// Generated names skip over explicitly taken ones.
	source := `
(object :object "Body" :name "hero")
(object :object "Body")
(object :object "Body" :name "object_2")
(object :object "Body")
`
	g := mustEval(t, env, source)

	want := []string{"hero", "object_1", "object_2", "object_3"}
	got := g.Nodes()
	if len(got) != len(want) {
		t.Fatalf("node count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("node %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScriptTemplateSharing(t *testing.T) {
	w, env := newWorldEnv(5)
	addBody(w, "Body")

	source := `
(deftemplate "base"
  (agent :brain "twin"
    (object :object "Body")))

(combine
  (offset :location (vec3 1 0 0) (template "base"))
  (offset :location (vec3 2 0 0) (template "base")))
`
	g := mustEval(t, env, source)

	// Two template references share one agent subtree.
	if got := len(g.Nodes()); got != 5 {
		t.Fatalf("node count: got %d, want 5", got)
	}
	if findings := g.Validate(); len(findings) > 0 {
		t.Fatalf("unexpected validation findings: %v", findings)
	}
	if err := g.Build("combine_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	n, _ := g.Node("agent_1")
	if n.BuildCount() != 2 {
		t.Errorf("shared agent builds: got %d, want 2", n.BuildCount())
	}
	tops := agentTops(t, w, template.DefaultGroup)
	if len(tops) != 2 {
		t.Fatalf("agents: got %d, want 2", len(tops))
	}
	if tops[0].Pos.X != 1 || tops[1].Pos.X != 2 {
		t.Errorf("agent x positions: got %v and %v, want 1 and 2",
			tops[0].Pos.X, tops[1].Pos.X)
	}
}

func TestScriptDeftemplateDuplicate(t *testing.T) {
	w, env := newWorldEnv(1)
	addBody(w, "Body")

	source := `
(deftemplate "dup" (object :object "Body"))
(deftemplate "dup" (object :object "Body"))
`
	msg := mustFailEval(t, env, source)
	if !strings.Contains(msg, "already defined") {
		t.Errorf("message: got %q, want mention of duplicate definition", msg)
	}
}

func TestScriptTemplateUnknown(t *testing.T) {
	_, env := newWorldEnv(1)

	msg := mustFailEval(t, env, `(template "ghost")`)
	if !strings.Contains(msg, "no template named") {
		t.Errorf("message: got %q, want missing-template error", msg)
	}
}

func TestScriptFormErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "object with child",
			source: `(object :object "Body" (object :object "Body"))`,
			want:   "takes no children",
		},
		{
			name:   "group with child",
			source: `(group :group "Squad" (object :object "Body"))`,
			want:   "takes no children",
		},
		{
			name:   "offset with two children",
			source: `(offset (object :object "Body") (object :object "Body"))`,
			want:   "expected at most one child",
		},
		{
			name:   "switch with one child",
			source: `(switch :weight 0.5 (object :object "Body"))`,
			want:   "expected two children",
		},
		{
			name:   "agent with literal child",
			source: `(agent :brain "w" 42)`,
			want:   "expected node reference",
		},
		{
			name:   "combine with literal child",
			source: `(combine 7)`,
			want:   "expected node reference",
		},
		{
			name:   "keyword missing value",
			source: `(agent :brain)`,
			want:   "expected string",
		},
		{
			name:   "vec3 arity",
			source: `(offset :location (vec3 1 2))`,
			want:   "3 arguments",
		},
		{
			name:   "vec3 bad component",
			source: `(offset :location (vec3 1 2 "x"))`,
			want:   "expected number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := newWorldEnv(1)
			addBody(w, "Body")
			msg := mustFailEval(t, env, tt.source)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("message: got %q, want substring %q", msg, tt.want)
			}
		})
	}
}

func TestScriptWrongChildCapability(t *testing.T) {
	w, env := newWorldEnv(1)
	addBody(w, "Body")

	// A bare object produces geometry; offset needs a placement branch.
	msg := mustFailEval(t, env, `(offset :location (vec3 1 0 0) (object :object "Body"))`)
	if !strings.Contains(msg, "needs a placer") {
		t.Errorf("message: got %q, want placer capability error", msg)
	}

	// The reverse: agent needs geometry, not a placement branch.
	source := `
(agent :brain "w"
  (offset :location (vec3 1 0 0)
    (agent :brain "inner" (object :object "Body"))))
`
	msg = mustFailEval(t, env, source)
	if !strings.Contains(msg, "needs a geometry producer") {
		t.Errorf("message: got %q, want geometry capability error", msg)
	}
}

// ---------------------------------------------------------------------------
// Settings plumbing
// ---------------------------------------------------------------------------

func TestScriptOffsetTransform(t *testing.T) {
	w, env := newWorldEnv(2)
	addBody(w, "Body")

	source := `
(offset :location (vec3 3 -1 0) :rotation (vec3 0 0 90)
  (agent :brain "poser"
    (object :object "Body")))
`
	g := mustEval(t, env, source)
	if err := g.Build("offset_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	tops := agentTops(t, w, template.DefaultGroup)
	if len(tops) != 1 {
		t.Fatalf("agents: got %d, want 1", len(tops))
	}
	if !vecNear(tops[0].Pos, v3.Vec{X: 3, Y: -1}) {
		t.Errorf("pos: got %v, want {3 -1 0}", tops[0].Pos)
	}
	if !vecNear(tops[0].Rot, v3.Vec{Z: math.Pi / 2}) {
		t.Errorf("rot: got %v, want {0 0 pi/2}", tops[0].Rot)
	}
}

func TestScriptVariables(t *testing.T) {
	w, env := newWorldEnv(9)
	addBody(w, "Body")

	source := `
(def n 4)
(def r 6.5)
(random-positioning :count n :mode :radius :radius r
  (agent :brain "wander"
    (object :object "Body")))
`
	g := mustEval(t, env, source)
	if err := g.Build("randompositioning_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	tops := agentTops(t, w, template.DefaultGroup)
	if len(tops) != 4 {
		t.Fatalf("agents: got %d, want 4", len(tops))
	}
	for i, top := range tops {
		if r := math.Hypot(top.Pos.X, top.Pos.Y); r > 6.5+1e-9 {
			t.Errorf("agent %d: radius %.3f exceeds 6.5", i, r)
		}
	}
}

func TestScriptGroupRoutingAndFormation(t *testing.T) {
	w, env := newWorldEnv(3)
	addBody(w, "Body")

	source := `
(add-to-group :group "night-watch" :kind :auto
  (formation :count 4 :rows 2 :row-margin 2 :column-margin 3
    (agent :brain "guard"
      (object :object "Body"))))
`
	g := mustEval(t, env, source)
	if err := g.Build("addtogroup_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents("night-watch")
	if len(agents) != 4 {
		t.Fatalf("agents in night-watch: got %d, want 4", len(agents))
	}
	if extra := w.GroupAgents(template.DefaultGroup); len(extra) != 0 {
		t.Errorf("default group should stay empty, got %d agents", len(extra))
	}
	for i, a := range agents {
		if a.Group != "night-watch" {
			t.Errorf("agent %d group: got %q, want %q", i, a.Group, "night-watch")
		}
		if a.Brain != "guard" {
			t.Errorf("agent %d brain: got %q, want %q", i, a.Brain, "guard")
		}
	}

	want := []v3.Vec{{}, {X: 2}, {Y: 3}, {X: 2, Y: 3}}
	for i, top := range agentTops(t, w, "night-watch") {
		if !vecNear(top.Pos, want[i]) {
			t.Errorf("agent %d pos: got %v, want %v", i, top.Pos, want[i])
		}
	}
}

func TestScriptTagsAndMaterials(t *testing.T) {
	w, env := newWorldEnv(6)
	addBody(w, "Body")
	w.AddMaterial("skin")
	w.AddMaterial("pale")
	w.AddMaterial("tan")

	source := `
(set-tag :tag "speed" :value 1.4
  (random-material :target "skin"
                   :materials (list (list "pale" 1) (list "tan" 0))
    (agent :brain "mixer"
      (object :object "Body"))))
`
	g := mustEval(t, env, source)
	if err := g.Build("settag_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents(template.DefaultGroup)
	if len(agents) != 1 {
		t.Fatalf("agents: got %d, want 1", len(agents))
	}
	tags := agents[0].Tags
	if len(tags) != 1 || tags[0].Name != "speed" || tags[0].Value != 1.4 {
		t.Errorf("tags: got %v, want [{speed 1.4}]", tags)
	}

	tops := agentTops(t, w, template.DefaultGroup)
	if got := tops[0].Slots[0].Material; got != "pale" {
		t.Errorf("remapped slot: got %q, want %q", got, "pale")
	}
}

func TestScriptGeoSwitch(t *testing.T) {
	w, env := newWorldEnv(21)
	addBody(w, "Body")
	addBody(w, "Crate")

	source := `
(agent :brain "wears"
  (geo-switch :weight 1.1
    (object :object "Body")
    (object :object "Crate")))
`
	g := mustEval(t, env, source)
	for i := 0; i < 5; i++ {
		if err := g.Build("agent_1", nil); err != nil {
			t.Fatalf("build %d: unexpected fatal error: %v", i, err)
		}
	}

	tops := agentTops(t, w, template.DefaultGroup)
	if len(tops) != 5 {
		t.Fatalf("agents: got %d, want 5", len(tops))
	}
	for i, top := range tops {
		if !strings.HasPrefix(top.Name, "Body") {
			t.Errorf("agent %d cloned %q, want a Body clone", i, top.Name)
		}
	}
	if _, ok := w.Object("Crate.001"); ok {
		t.Error("weight 1.1 must never clone the second branch")
	}
}

func TestScriptCombineOrder(t *testing.T) {
	w, env := newWorldEnv(4)
	addBody(w, "Body")

	source := `
(combine
  (agent :brain "first"  (object :object "Body" :name "b1"))
  (agent :brain "second" (object :object "Body" :name "b2"))
  (agent :brain "third"  (object :object "Body" :name "b3")))
`
	g := mustEval(t, env, source)
	if err := g.Build("combine_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents(template.DefaultGroup)
	want := []string{"first", "second", "third"}
	if len(agents) != len(want) {
		t.Fatalf("agents: got %d, want %d", len(agents), len(want))
	}
	for i, a := range agents {
		if a.Brain != want[i] {
			t.Errorf("agent %d brain: got %q, want %q", i, a.Brain, want[i])
		}
	}
}

func TestScriptSwitch(t *testing.T) {
	w, env := newWorldEnv(8)
	addBody(w, "Body")

	source := `
(switch :weight 1.1
  (agent :brain "yes" (object :object "Body" :name "by"))
  (agent :brain "no"  (object :object "Body" :name "bn")))
`
	g := mustEval(t, env, source)
	for i := 0; i < 6; i++ {
		if err := g.Build("switch_1", nil); err != nil {
			t.Fatalf("build %d: unexpected fatal error: %v", i, err)
		}
	}

	for i, a := range w.GroupAgents(template.DefaultGroup) {
		if a.Brain != "yes" {
			t.Errorf("agent %d brain: got %q, want %q", i, a.Brain, "yes")
		}
	}
}

func TestScriptParentBone(t *testing.T) {
	w, env := newWorldEnv(2)
	w.AddObject(&scene.Object{
		Name:  "Rig",
		Type:  scene.ObjectArmature,
		Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Bones: []scene.Bone{{Name: "hand", Pos: v3.Vec{Z: 1.2}}},
	})
	addBody(w, "Sword")

	source := `
(agent :brain "knight"
  (parent :bone "hand"
    (object :object "Rig")
    (object :object "Sword")))
`
	g := mustEval(t, env, source)
	if err := g.Build("agent_1", nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents(template.DefaultGroup)
	if len(agents) != 1 {
		t.Fatalf("agents: got %d, want 1", len(agents))
	}
	coll, ok := w.Collection(agents[0].GeoGroup)
	if !ok {
		t.Fatalf("geometry collection %q missing", agents[0].GeoGroup)
	}
	if len(coll.Objects) != 2 {
		t.Fatalf("collection size: got %d, want 2", len(coll.Objects))
	}

	var sword *scene.Object
	for _, obj := range coll.Objects {
		if strings.HasPrefix(obj.Name, "Sword") {
			sword = obj
		}
	}
	if sword == nil {
		t.Fatal("no sword clone in collection")
	}
	if len(sword.Constraints) != 1 {
		t.Fatalf("sword constraints: got %d, want 1", len(sword.Constraints))
	}
	if sword.Constraints[0].Bone != "hand" {
		t.Errorf("constraint bone: got %q, want %q", sword.Constraints[0].Bone, "hand")
	}
}

func TestScriptPositioningModes(t *testing.T) {
	t.Run("area", func(t *testing.T) {
		w, env := newWorldEnv(13)
		addBody(w, "Body")

		source := `
(random-positioning :count 40 :mode :area :max-x 4 :max-y 2
  (agent :brain "a" (object :object "Body")))
`
		g := mustEval(t, env, source)
		if err := g.Build("randompositioning_1", nil); err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		for i, top := range agentTops(t, w, template.DefaultGroup) {
			if math.Abs(top.Pos.X) > 2+1e-9 || math.Abs(top.Pos.Y) > 1+1e-9 {
				t.Errorf("agent %d: pos %v outside 4x2 area", i, top.Pos)
			}
		}
	})

	t.Run("sector", func(t *testing.T) {
		w, env := newWorldEnv(14)
		addBody(w, "Body")

		source := `
(random-positioning :count 40 :mode :sector :radius 6 :direction 90 :angle 10
  (agent :brain "s" (object :object "Body")))
`
		g := mustEval(t, env, source)
		if err := g.Build("randompositioning_1", nil); err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		for i, top := range agentTops(t, w, template.DefaultGroup) {
			if math.Hypot(top.Pos.X, top.Pos.Y) < 1e-9 {
				continue
			}
			heading := math.Atan2(top.Pos.X, top.Pos.Y) * 180 / math.Pi
			if heading < 85-1e-6 || heading > 95+1e-6 {
				t.Errorf("agent %d: heading %.2f outside [85, 95]", i, heading)
			}
			if r := math.Hypot(top.Pos.X, top.Pos.Y); r > 6+1e-9 {
				t.Errorf("agent %d: radius %.3f exceeds 6", i, r)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Full scene
// ---------------------------------------------------------------------------

func TestScriptVillageScene(t *testing.T) {
	w, env := newWorldEnv(42)
	addBody(w, "Body")
	w.AddObject(&scene.Object{
		Name:  "Well",
		Type:  scene.ObjectMesh,
		Pos:   v3.Vec{X: 20},
		Scale: v3.Vec{X: 1, Y: 1, Z: 1},
	})
	w.AddObject(&scene.Object{
		Name:  "Terrain",
		Type:  scene.ObjectMesh,
		Scale: v3.Vec{X: 1, Y: 1, Z: 1},
		Mesh: &scene.Mesh{
			Vertices: []v3.Vec{
				{X: -12, Y: -12, Z: 0.75},
				{X: 12, Y: -12, Z: 0.75},
				{X: 12, Y: 12, Z: 0.75},
				{X: -12, Y: 12, Z: 0.75},
			},
			Faces: [][3]int{{0, 1, 2}, {0, 2, 3}},
		},
	})
	props := w.NewCollection("Props")
	props.Link(w.AddObject(&scene.Object{
		Name:       "Cart",
		Type:       scene.ObjectMesh,
		Pos:        v3.Vec{X: 50, Y: 50},
		Scale:      v3.Vec{X: 1, Y: 1, Z: 1},
		Dimensions: v3.Vec{X: 2, Y: 2, Z: 2},
	}))

	source := `
(def crowd-size 6)

(deftemplate "villager"
  (point-towards :object "Well" :mode :object
    (random :min-rotation -20 :max-rotation 20 :min-scale 0.9 :max-scale 1.1
      (agent :brain "gossip"
        (object :object "Body")))))

(add-to-group :group "plaza" :kind :auto
  (random-positioning :count crowd-size :mode :radius :radius 8
    (obstacle :group "Props" :margin 0.5
      (ground :mesh "Terrain"
        (set-tag :tag "speed" :value 1.2
          (template "villager"))))))
`
	g := mustEval(t, env, source)

	if got := len(g.Nodes()); got != 9 {
		t.Fatalf("node count: got %d, want 9", got)
	}
	roots := g.Roots()
	if len(roots) != 1 || roots[0] != "addtogroup_1" {
		t.Fatalf("roots: got %v, want [addtogroup_1]", roots)
	}
	if findings := g.Validate(); len(findings) > 0 {
		t.Fatalf("unexpected validation findings: %v", findings)
	}
	if err := g.Build(roots[0], nil); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	agents := w.GroupAgents("plaza")
	if len(agents) != 6 {
		t.Fatalf("plaza agents: got %d, want 6", len(agents))
	}
	for i, a := range agents {
		if a.Brain != "gossip" {
			t.Errorf("agent %d brain: got %q, want %q", i, a.Brain, "gossip")
		}
		if a.Group != "plaza" {
			t.Errorf("agent %d group: got %q, want %q", i, a.Group, "plaza")
		}
		if len(a.Tags) != 1 || a.Tags[0].Name != "speed" || a.Tags[0].Value != 1.2 {
			t.Errorf("agent %d tags: got %v, want [{speed 1.2}]", i, a.Tags)
		}
	}

	for i, top := range agentTops(t, w, "plaza") {
		if math.Abs(top.Pos.Z-0.75) > 1e-9 {
			t.Errorf("agent %d: z %.4f not snapped to terrain at 0.75", i, top.Pos.Z)
		}
		if r := math.Hypot(top.Pos.X, top.Pos.Y); r > 8+1e-9 {
			t.Errorf("agent %d: radius %.3f exceeds 8", i, r)
		}
		if top.Scale.X != top.Scale.Y || top.Scale.X != top.Scale.Z {
			t.Errorf("agent %d: scale %v not uniform", i, top.Scale)
		}
		if top.Scale.X < 0.9-1e-9 || top.Scale.X > 1.1+1e-9 {
			t.Errorf("agent %d: scale %.3f outside [0.9, 1.1]", i, top.Scale.X)
		}
		// Everyone faces the well on +X, so the final heading stays
		// negative even after the +-20 degree jitter.
		if top.Rot.Z >= 0 {
			t.Errorf("agent %d: heading %.3f should face the well (negative)", i, top.Rot.Z)
		}
		if math.Abs(top.Rot.X) > 0.07 {
			t.Errorf("agent %d: pitch %.3f larger than the well height difference allows", i, top.Rot.X)
		}
	}
}
