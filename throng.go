// Package throng ties the crowd engine together for embedding hosts.
// A Session owns a script engine and the host scene it populates;
// Evaluate takes DSL source through the full pipeline and returns a
// JSON-shaped result the host's editor can render.
package throng

import (
	"log/slog"

	"github.com/chazu/throng/pkg/scene"
	"github.com/chazu/throng/pkg/script"
	"github.com/chazu/throng/pkg/template"
)

// Session drives crowd builds against one host scene. Every Evaluate
// call re-runs the full source in a fresh environment seeded from the
// session seed, so re-evaluating unchanged source reproduces the same
// placements.
type Session struct {
	engine *script.Engine
	sc     scene.Scene
	agents scene.AgentRuntime
	seed   int64
	log    *slog.Logger
}

// EvalErrorData is a JSON-serializable problem report for the host
// frontend. Node is set for validation findings and build failures,
// empty for script errors.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Node    string `json:"node,omitempty"`
	Message string `json:"message"`
}

// EvalResult is the full outcome of one Evaluate call. Placements land
// in the host scene directly; the result carries diagnostics and a
// summary of what was built.
type EvalResult struct {
	Roots    []string        `json:"roots"`
	Agents   int             `json:"agents"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// New creates a session around the given scene and agent runtime.
func New(sc scene.Scene, agents scene.AgentRuntime, seed int64) *Session {
	return NewWithLogger(sc, agents, seed, slog.Default())
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(sc scene.Scene, agents scene.AgentRuntime, seed int64, log *slog.Logger) *Session {
	return &Session{
		engine: script.NewEngine(),
		sc:     sc,
		agents: agents,
		seed:   seed,
		log:    log,
	}
}

// Evaluate takes DSL source and returns diagnostics plus a build
// summary. Validation findings of error severity stop the run before
// any build; a build failure stops at the failing root, leaving earlier
// roots' placements in the scene.
func (s *Session) Evaluate(source string) EvalResult {
	result := EvalResult{
		Roots:    []string{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	env := template.NewEnv(s.sc, s.agents, s.seed)

	// Step 1: evaluate the Lisp source into a node graph.
	g, evalErrs, err := s.engine.Evaluate(source, env)
	if err != nil {
		// Fatal error (panic, timeout, superseded evaluation).
		s.log.Error("script evaluation failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	// Step 2: convert script errors to the frontend format.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	// Step 3: validate the graph. Errors block the build, warnings pass
	// through to the result.
	blocked := false
	for _, v := range g.Validate() {
		data := EvalErrorData{Node: v.Node, Message: v.Message}
		if v.Severity == template.SeverityError {
			result.Errors = append(result.Errors, data)
			blocked = true
		} else {
			result.Warnings = append(result.Warnings, data)
		}
	}
	if blocked {
		return result
	}

	// Step 4: build every placer root in authored order. Unwired
	// geometry producers are roots too, but they cannot build on their
	// own; validation has already warned about them.
	for _, root := range g.Roots() {
		n, ok := g.Node(root)
		if !ok {
			continue
		}
		if _, placer := n.(template.Placer); !placer {
			continue
		}
		if err := g.Build(root, nil); err != nil {
			s.log.Error("build failed", "root", root, "err", err)
			result.Errors = append(result.Errors, EvalErrorData{
				Node:    root,
				Message: "build failed: " + err.Error(),
			})
			return result
		}
		result.Roots = append(result.Roots, root)
	}

	// Step 5: summarize placements from the build counters.
	for _, name := range g.Nodes() {
		if n, ok := g.Node(name); ok && n.Kind() == template.KindAgent {
			result.Agents += n.BuildCount()
		}
	}

	return result
}
