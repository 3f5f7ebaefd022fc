package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chainflow/pkg/definition"
)

// GraphOverlay contains run state to visualize on the graph. Node paths are
// slash-separated chain and node ids ("greeter/ask").
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
	Failed       bool
}

// GenerateMermaid produces a Mermaid flowchart of a chain definition.
// It applies semantic styling:
// - Chain entry: ((Circle))
// - Agent: [Rectangle]
// - Router: {Rhombus}
// - Parallel join: {{Hexagon}}
// - Nested chain: subgraph
// It also applies overlay styles (Visited/Current/Failed) if provided.
func GenerateMermaid(def *definition.Definition, overlay *GraphOverlay) string {
	w := &writer{}
	w.line(0, "graph TD")
	w.chain(def, def.ID, 1)

	if overlay != nil {
		w.line(0, "")
		w.line(1, "%% Overlay Styles")
		w.line(1, "classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;")
		w.line(1, "classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;")
		w.line(1, "classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				w.line(1, fmt.Sprintf("class %s visited;", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			w.line(1, fmt.Sprintf("class %s %s;", sanitizeMermaidID(overlay.CurrentNode), class))
		}
	}
	return w.sb.String()
}

type writer struct {
	sb strings.Builder
}

func (w *writer) line(depth int, s string) {
	w.sb.WriteString(strings.Repeat("    ", depth))
	w.sb.WriteString(s)
	w.sb.WriteString("\n")
}

func (w *writer) edge(depth int, from, to, label string, dotted bool) {
	arrow := "-->"
	switch {
	case label != "" && dotted:
		arrow = fmt.Sprintf("-. \"%s\" .->", escapeLabel(label))
	case label != "":
		arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(label))
	case dotted:
		arrow = "-.->"
	}
	w.line(depth, fmt.Sprintf("%s %s %s", sanitizeMermaidID(from), arrow, sanitizeMermaidID(to)))
}

// chain draws the entry vertex of def at path and its nodes according to the
// chain kind.
func (w *writer) chain(def *definition.Definition, path string, depth int) {
	entry := path + "/__entry"
	w.line(depth, fmt.Sprintf("%s((\"%s\"))", sanitizeMermaidID(entry), escapeLabel(entryLabel(def))))

	ids := make([]string, len(def.Nodes))
	for i, n := range def.Nodes {
		ids[i] = w.node(n, path, depth)
	}

	switch def.Kind {
	case definition.KindParallel:
		join := path + "/__join"
		w.line(depth, fmt.Sprintf("%s{{\"%s\"}}", sanitizeMermaidID(join), reduceLabel(def.Reduce)))
		for i, n := range def.Nodes {
			w.edge(depth, entry, ids[i], conditionLabel(n), false)
			w.edge(depth, ids[i], join, "", false)
		}

	case definition.KindRouter:
		route := path + "/__route"
		w.line(depth, fmt.Sprintf("%s{\"%s\"}", sanitizeMermaidID(route), escapeLabel(routeLabel(def.Route))))
		w.edge(depth, entry, route, "", false)
		for i, n := range def.Nodes {
			w.edge(depth, route, ids[i], conditionLabel(n), true)
		}

	default:
		prev := entry
		for i, n := range def.Nodes {
			w.edge(depth, prev, ids[i], conditionLabel(n), false)
			prev = ids[i]
		}
		if def.Kind == definition.KindLoop && len(ids) > 0 {
			w.edge(depth, ids[len(ids)-1], ids[0], "next pass", true)
		}
	}
}

// node draws one node and returns its vertex path.
func (w *writer) node(n definition.NodeSpec, parent string, depth int) string {
	path := parent + "/" + n.ID
	safeID := sanitizeMermaidID(path)

	switch {
	case n.Chain != nil:
		w.line(depth, fmt.Sprintf("subgraph %s [\"%s\"]", safeID, escapeLabel(n.ID)))
		w.chain(n.Chain, path, depth+1)
		w.line(depth, "end")

	case n.Router != nil:
		w.line(depth, fmt.Sprintf("%s{\"%s\"}", safeID, escapeLabel(n.ID+"\n"+routeLabel(n.Router))))
		for _, target := range n.Router.Nodes {
			id := w.node(target, path, depth)
			w.edge(depth, path, id, strategyLabel(n.Router.Strategy), true)
		}

	default:
		label := n.ID
		if n.Agent != "" && n.Agent != n.ID {
			label += "<br/>" + n.Agent
		}
		w.line(depth, fmt.Sprintf("%s[\"%s\"]", safeID, escapeLabel(label)))
	}
	return path
}

func entryLabel(def *definition.Definition) string {
	kind := def.Kind
	if kind == "" {
		kind = definition.KindSequential
	}
	return def.ID + " (" + kind + ")"
}

func reduceLabel(name string) string {
	if name == "" {
		return "merge"
	}
	return name
}

func routeLabel(r *definition.RouteSpec) string {
	switch {
	case r == nil:
		return "route"
	case r.Expression != "":
		return r.Expression
	case r.Prompt != "":
		return "chat"
	default:
		return r.Static
	}
}

func strategyLabel(s string) string {
	if s == "" {
		return "all"
	}
	return strings.ToLower(s)
}

func conditionLabel(n definition.NodeSpec) string {
	var parts []string
	if n.When != "" {
		parts = append(parts, "when "+n.When)
	}
	if n.Skip != "" {
		parts = append(parts, "skip "+n.Skip)
	}
	if n.MaxPasses > 0 {
		parts = append(parts, "max "+strconv.Itoa(n.MaxPasses))
	}
	return strings.Join(parts, ", ")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", "<br/>")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
