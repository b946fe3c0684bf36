package script

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/template"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms template Lisp source before it reaches
// zygomys. Two rewrites are applied:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal).
//     This avoids registering keyword symbols as globals, which would
//     collide with user variables of the same name.
//
//  2. Kebab-case to underscore: point-towards -> point_towards.
//     zygomys reads hyphens as subtraction, so hyphenated form names
//     are rewritten outside strings and comments.
//
// Both rewrites respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Pass double-quoted string literals through untouched.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Pass backtick-quoted string literals through untouched.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to the // form zygomys expects.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Rewrite hyphens between identifier characters; a hyphen next
		// to anything else stays a minus operator.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isLetter(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a graph node so builtins can pass it around.
type sexpNodeRef struct {
	node template.Node
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(noderef %s %q)", n.node.Kind(), n.node.Name())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a vector literal.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks whether a Sexp is a preprocessed keyword string, returning
// the bare keyword name when it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a parsed mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Trailing keyword with no value acts as a nil flag.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

func toBool(s zygo.Sexp) (bool, error) {
	if v, ok := s.(*zygo.SexpBool); ok {
		return v.Val, nil
	}
	return false, fmt.Errorf("expected bool, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string, handling both
// preprocessed keywords (__kw_mesh) and plain strings ("mesh").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toPointMode(s zygo.Sexp) (template.PointMode, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected mode keyword (:object, :mesh): %w", err)
	}
	switch name {
	case "object":
		return template.PointAtObject, nil
	case "mesh":
		return template.PointAtMesh, nil
	}
	return 0, fmt.Errorf("invalid mode %q, expected object or mesh", name)
}

func toGroupKind(s zygo.Sexp) (scene.GroupKind, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected kind keyword (:manual, :auto): %w", err)
	}
	switch name {
	case "manual":
		return scene.GroupManual, nil
	case "auto":
		return scene.GroupAuto, nil
	}
	return 0, fmt.Errorf("invalid kind %q, expected manual or auto", name)
}

func toSampleMode(s zygo.Sexp) (template.SampleMode, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected mode keyword (:radius, :area, :sector): %w", err)
	}
	switch name {
	case "radius":
		return template.SampleRadius, nil
	case "area":
		return template.SampleArea, nil
	case "sector":
		return template.SampleSector, nil
	}
	return 0, fmt.Errorf("invalid mode %q, expected radius, area, or sector", name)
}

func toTargetMode(s zygo.Sexp) (template.TargetMode, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected mode keyword (:group, :vertex): %w", err)
	}
	switch name {
	case "group":
		return template.TargetGroup, nil
	case "vertex":
		return template.TargetVertex, nil
	}
	return 0, fmt.Errorf("invalid mode %q, expected group or vertex", name)
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go
// slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Graph building
// ---------------------------------------------------------------------------

// builder accumulates graph state across the builtin invocations of one
// evaluation run.
type builder struct {
	graph     *template.Graph
	templates map[string]template.Node
	counts    map[string]int
}

func newBuilder(g *template.Graph) *builder {
	return &builder{
		graph:     g,
		templates: make(map[string]template.Node),
		counts:    make(map[string]int),
	}
}

// addNode creates a kind instance, honoring an explicit :name keyword
// and generating a sequential name otherwise. Generated names are
// deterministic within one evaluation.
func (b *builder) addNode(kind string, pa kwArgs, settings any) (template.Node, error) {
	name := ""
	if v, ok := pa.kw["name"]; ok {
		s, err := toString(v)
		if err != nil {
			return nil, fmt.Errorf("name: %w", err)
		}
		name = s
	}
	if name == "" {
		for {
			b.counts[kind]++
			name = fmt.Sprintf("%s_%d", strings.ToLower(kind), b.counts[kind])
			if _, taken := b.graph.Node(name); !taken {
				break
			}
		}
	}
	return b.graph.Add(kind, name, settings)
}

// wire attaches one positional child to a named port of parent.
func (b *builder) wire(parent template.Node, port string, child zygo.Sexp) error {
	ref, ok := child.(*sexpNodeRef)
	if !ok {
		return fmt.Errorf("child: expected node reference, got %T (%s)", child, child.SexpString(nil))
	}
	return b.graph.Wire(parent.Name(), port, ref.node.Name())
}

// wireSingle wires at most one positional child to port. A missing
// child is left for Validate to flag.
func (b *builder) wireSingle(parent template.Node, port string, children []zygo.Sexp) error {
	if len(children) == 0 {
		return nil
	}
	if len(children) > 1 {
		return fmt.Errorf("expected at most one child, got %d", len(children))
	}
	return b.wire(parent, port, children[0])
}

// wirePair wires exactly two positional children to portA and portB.
func (b *builder) wirePair(parent template.Node, portA, portB string, children []zygo.Sexp) error {
	if len(children) == 0 {
		return nil
	}
	if len(children) != 2 {
		return fmt.Errorf("expected two children, got %d", len(children))
	}
	if err := b.wire(parent, portA, children[0]); err != nil {
		return err
	}
	return b.wire(parent, portB, children[1])
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the template DSL into a zygomys environment.
// The builtins populate b's graph during evaluation.
//
// Source must be run through preprocessSource first so :keyword tokens
// arrive as recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}
		return &sexpVec3{vec: v3.Vec{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (deftemplate "name" expr)
	// -----------------------------------------------------------------------
	env.AddFunction("deftemplate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("deftemplate requires a name and a node expression")
		}
		tname, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("deftemplate: name: %w", err)
		}
		ref, ok := args[1].(*sexpNodeRef)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("deftemplate: expected node expression, got %T (%s)",
				args[1], args[1].SexpString(nil))
		}
		if _, dup := b.templates[tname]; dup {
			return zygo.SexpNull, fmt.Errorf("deftemplate: %q already defined", tname)
		}
		b.templates[tname] = ref.node
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (template "name")
	// -----------------------------------------------------------------------
	env.AddFunction("template", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("template requires a name argument")
		}
		tname, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("template: name: %w", err)
		}
		node, ok := b.templates[tname]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("template: no template named %q", tname)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (object :object "Body")
	// -----------------------------------------------------------------------
	env.AddFunction("object", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.ObjectSettings{}
		if v, ok := pa.kw["object"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("object: object: %w", err)
			}
			cfg.Object = s
		}
		node, err := b.addNode(template.KindObject, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("object: %w", err)
		}
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("object takes no children")
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (group :group "Horse+Rider")
	// -----------------------------------------------------------------------
	env.AddFunction("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.GroupSettings{}
		if v, ok := pa.kw["group"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("group: group: %w", err)
			}
			cfg.Group = s
		}
		node, err := b.addNode(template.KindGroup, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("group: %w", err)
		}
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("group takes no children")
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (geo-switch :weight 0.5 geoA geoB)
	// -----------------------------------------------------------------------
	env.AddFunction("geo_switch", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.GeoSwitchSettings{}
		if v, ok := pa.kw["weight"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("geo-switch: weight: %w", err)
			}
			cfg.Weight = f
		}
		node, err := b.addNode(template.KindGeoSwitch, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("geo-switch: %w", err)
		}
		if err := b.wirePair(node, template.PortObjectA, template.PortObjectB, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("geo-switch: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (parent :bone "hand.R" parentGeo childGeo)
	// -----------------------------------------------------------------------
	env.AddFunction("parent", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.ParentSettings{}
		if v, ok := pa.kw["bone"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("parent: bone: %w", err)
			}
			cfg.Bone = s
		}
		node, err := b.addNode(template.KindParent, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("parent: %w", err)
		}
		if err := b.wirePair(node, template.PortParentGroup, template.PortChildObject, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("parent: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (agent :brain "walker" :defer false geo)
	// -----------------------------------------------------------------------
	env.AddFunction("agent", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.AgentSettings{}
		if v, ok := pa.kw["brain"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("agent: brain: %w", err)
			}
			cfg.Brain = s
		}
		if v, ok := pa.kw["defer"]; ok {
			f, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("agent: defer: %w", err)
			}
			cfg.Defer = f
		}
		node, err := b.addNode(template.KindAgent, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("agent: %w", err)
		}
		if err := b.wireSingle(node, template.PortObjects, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("agent: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (offset :location (vec3 1 0 0) :rotation (vec3 0 0 90) :overwrite false
	//         :reference "Anchor" child)
	// -----------------------------------------------------------------------
	env.AddFunction("offset", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.OffsetSettings{}
		if v, ok := pa.kw["overwrite"]; ok {
			f, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("offset: overwrite: %w", err)
			}
			cfg.Overwrite = f
		}
		if v, ok := pa.kw["reference"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("offset: reference: %w", err)
			}
			cfg.Reference = s
		}
		if v, ok := pa.kw["location"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("offset: location: %w", err)
			}
			cfg.Location = vec
		}
		if v, ok := pa.kw["rotation"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("offset: rotation: %w", err)
			}
			cfg.Rotation = vec
		}
		node, err := b.addNode(template.KindOffset, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("offset: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("offset: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (random :min-rotation -180 :max-rotation 180 :min-scale 0.9
	//         :max-scale 1.1 child)
	// -----------------------------------------------------------------------
	env.AddFunction("random", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.RandomSettings{MinScale: 1, MaxScale: 1}
		if v, ok := pa.kw["min-rotation"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random: min-rotation: %w", err)
			}
			cfg.MinRotation = f
		}
		if v, ok := pa.kw["max-rotation"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random: max-rotation: %w", err)
			}
			cfg.MaxRotation = f
		}
		if v, ok := pa.kw["min-scale"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random: min-scale: %w", err)
			}
			cfg.MinScale = f
		}
		if v, ok := pa.kw["max-scale"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random: max-scale: %w", err)
			}
			cfg.MaxScale = f
		}
		node, err := b.addNode(template.KindRandom, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("random: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("random: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (point-towards :object "Campfire" :mode :object child)
	// -----------------------------------------------------------------------
	env.AddFunction("point_towards", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.PointTowardsSettings{}
		if v, ok := pa.kw["object"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point-towards: object: %w", err)
			}
			cfg.Object = s
		}
		if v, ok := pa.kw["mode"]; ok {
			m, err := toPointMode(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("point-towards: mode: %w", err)
			}
			cfg.Mode = m
		}
		node, err := b.addNode(template.KindPointTowards, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point-towards: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("point-towards: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (add-to-group :group "guards" :kind :auto child)
	// -----------------------------------------------------------------------
	env.AddFunction("add_to_group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.AddToGroupSettings{}
		if v, ok := pa.kw["group"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("add-to-group: group: %w", err)
			}
			cfg.Group = s
		}
		if v, ok := pa.kw["kind"]; ok {
			k, err := toGroupKind(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("add-to-group: kind: %w", err)
			}
			cfg.Kind = k
		}
		node, err := b.addNode(template.KindAddToGroup, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("add-to-group: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("add-to-group: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (random-material :target "skin"
	//                  :materials (list (list "pale" 1) (list "tan" 3)) child)
	// -----------------------------------------------------------------------
	env.AddFunction("random_material", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.RandomMaterialSettings{}
		if v, ok := pa.kw["target"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-material: target: %w", err)
			}
			cfg.Target = s
		}
		if v, ok := pa.kw["materials"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-material: materials: %w", err)
			}
			for _, item := range items {
				pair, err := sexpListToSlice(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("random-material: materials: %w", err)
				}
				if len(pair) != 2 {
					return zygo.SexpNull, fmt.Errorf("random-material: materials: expected (name weight) pairs")
				}
				mat, err := toString(pair[0])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("random-material: material name: %w", err)
				}
				w, err := toFloat64(pair[1])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("random-material: weight: %w", err)
				}
				cfg.Materials = append(cfg.Materials, template.WeightedMaterial{Material: mat, Weight: w})
			}
		}
		node, err := b.addNode(template.KindRandomMaterial, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("random-material: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("random-material: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (set-tag :tag "speed" :value 1.4 child)
	// -----------------------------------------------------------------------
	env.AddFunction("set_tag", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.SetTagSettings{}
		if v, ok := pa.kw["tag"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("set-tag: tag: %w", err)
			}
			cfg.Name = s
		}
		if v, ok := pa.kw["value"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("set-tag: value: %w", err)
			}
			cfg.Value = f
		}
		node, err := b.addNode(template.KindSetTag, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-tag: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("set-tag: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (combine childA childB ...)
	// -----------------------------------------------------------------------
	env.AddFunction("combine", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		node, err := b.addNode(template.KindCombine, pa, template.CombineSettings{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("combine: %w", err)
		}
		for i, child := range pa.positional {
			ref, ok := child.(*sexpNodeRef)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("combine: child %d: expected node reference, got %T (%s)",
					i+1, child, child.SexpString(nil))
			}
			// Zero-padded ports keep the build order matching the
			// authored order.
			port := fmt.Sprintf("%02d", i+1)
			if err := b.graph.Wire(node.Name(), port, ref.node.Name()); err != nil {
				return zygo.SexpNull, fmt.Errorf("combine: %w", err)
			}
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (random-positioning :count 50 :mode :radius :radius 10
	//                     :relax true :relax-radius 1 :iterations 3 child)
	// -----------------------------------------------------------------------
	env.AddFunction("random_positioning", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.RandomPositioningSettings{}
		if v, ok := pa.kw["count"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: count: %w", err)
			}
			cfg.Count = n
		}
		if v, ok := pa.kw["mode"]; ok {
			m, err := toSampleMode(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: mode: %w", err)
			}
			cfg.Mode = m
		}
		if v, ok := pa.kw["radius"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: radius: %w", err)
			}
			cfg.Radius = f
		}
		if v, ok := pa.kw["max-x"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: max-x: %w", err)
			}
			cfg.MaxX = f
		}
		if v, ok := pa.kw["max-y"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: max-y: %w", err)
			}
			cfg.MaxY = f
		}
		if v, ok := pa.kw["direction"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: direction: %w", err)
			}
			cfg.Direction = f
		}
		if v, ok := pa.kw["angle"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: angle: %w", err)
			}
			cfg.Angle = f
		}
		if v, ok := pa.kw["relax"]; ok {
			f, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: relax: %w", err)
			}
			cfg.Relax = f
		}
		if v, ok := pa.kw["relax-radius"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: relax-radius: %w", err)
			}
			cfg.RelaxRadius = f
		}
		if v, ok := pa.kw["iterations"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("random-positioning: iterations: %w", err)
			}
			cfg.RelaxIterations = n
		}
		node, err := b.addNode(template.KindRandomPositioning, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("random-positioning: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("random-positioning: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (formation :count 10 :rows 3 :row-margin 1.5 :column-margin 2 child)
	// -----------------------------------------------------------------------
	env.AddFunction("formation", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.FormationSettings{}
		if v, ok := pa.kw["count"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("formation: count: %w", err)
			}
			cfg.Count = n
		}
		if v, ok := pa.kw["rows"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("formation: rows: %w", err)
			}
			cfg.Rows = n
		}
		if v, ok := pa.kw["row-margin"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("formation: row-margin: %w", err)
			}
			cfg.RowMargin = f
		}
		if v, ok := pa.kw["column-margin"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("formation: column-margin: %w", err)
			}
			cfg.ColumnMargin = f
		}
		node, err := b.addNode(template.KindFormation, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("formation: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("formation: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (target :mode :group :group "Markers" :overwrite true child)
	// -----------------------------------------------------------------------
	env.AddFunction("target", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.TargetSettings{}
		if v, ok := pa.kw["mode"]; ok {
			m, err := toTargetMode(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("target: mode: %w", err)
			}
			cfg.Mode = m
		}
		if v, ok := pa.kw["group"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("target: group: %w", err)
			}
			cfg.Group = s
		}
		if v, ok := pa.kw["object"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("target: object: %w", err)
			}
			cfg.Object = s
		}
		if v, ok := pa.kw["overwrite"]; ok {
			f, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("target: overwrite: %w", err)
			}
			cfg.Overwrite = f
		}
		node, err := b.addNode(template.KindTarget, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("target: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("target: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (obstacle :group "Rocks" :margin 0.5 child)
	// -----------------------------------------------------------------------
	env.AddFunction("obstacle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.ObstacleSettings{}
		if v, ok := pa.kw["group"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("obstacle: group: %w", err)
			}
			cfg.Group = s
		}
		if v, ok := pa.kw["margin"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("obstacle: margin: %w", err)
			}
			cfg.Margin = f
		}
		node, err := b.addNode(template.KindObstacle, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("obstacle: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("obstacle: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (ground :mesh "Terrain" child)
	// -----------------------------------------------------------------------
	env.AddFunction("ground", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.GroundSettings{}
		if v, ok := pa.kw["mesh"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("ground: mesh: %w", err)
			}
			cfg.Mesh = s
		}
		node, err := b.addNode(template.KindGround, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ground: %w", err)
		}
		if err := b.wireSingle(node, template.PortTemplate, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("ground: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})

	// -----------------------------------------------------------------------
	// (switch :weight 0.5 childA childB)
	// -----------------------------------------------------------------------
	env.AddFunction("switch", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		cfg := template.SwitchSettings{}
		if v, ok := pa.kw["weight"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("switch: weight: %w", err)
			}
			cfg.Weight = f
		}
		node, err := b.addNode(template.KindSwitch, pa, cfg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("switch: %w", err)
		}
		if err := b.wirePair(node, template.PortTemplateA, template.PortTemplateB, pa.positional); err != nil {
			return zygo.SexpNull, fmt.Errorf("switch: %w", err)
		}
		return &sexpNodeRef{node: node}, nil
	})
}
