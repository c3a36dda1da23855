package web

import (
	"github.com/ritzau/sbom-resolver/pkg/cycles"
	"github.com/ritzau/sbom-resolver/pkg/graph"
	"github.com/ritzau/sbom-resolver/pkg/lens"
	"github.com/ritzau/sbom-resolver/pkg/model"
)

// GraphNode represents a node in the graph visualization
type GraphNode struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	Type            string `json:"type"` // "root", "component" or "truncated"
	Depth           int    `json:"depth"`
	Vulnerabilities int    `json:"vulnerabilities"`
	InCycle         bool   `json:"inCycle"`
	Distance        *int   `json:"distance,omitempty"` // Hops from the focused nodes, set by Focus
}

// GraphEdge represents an edge in the graph visualization
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // Edge kind: "depends_on", "cycle" or "depth_limit"
}

// GraphData is the complete graph structure sent to the frontend
type GraphData struct {
	Name    string              `json:"name"`
	Latest  string              `json:"latest"`
	Nodes   []GraphNode         `json:"nodes"`
	Edges   []GraphEdge         `json:"edges"`
	Cycles  []cycles.CycleGroup `json:"cycles"`
	Partial bool                `json:"partial,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// BuildGraphData flattens a resolved tree for graph views. Truncated targets
// get a node of their own so every edge has both ends.
func BuildGraphData(tree *model.ResolvedTree) *GraphData {
	data := &GraphData{
		Nodes:  []GraphNode{},
		Edges:  []GraphEdge{},
		Cycles: []cycles.CycleGroup{},
	}
	if tree == nil {
		return data
	}
	data.Name = tree.Name
	data.Latest = tree.Latest

	cg := graph.Build(tree)
	depths := cg.Depths()
	groups := cycles.FindCycles(cg)
	if len(groups) > 0 {
		data.Cycles = groups
	}

	inCycle := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g.Components {
			inCycle[id] = true
		}
	}

	roots := make(map[string]bool)
	for _, id := range tree.RootIDs() {
		roots[id] = true
	}

	for _, n := range tree.Nodes {
		nodeType := "component"
		if roots[n.ID] {
			nodeType = "root"
		}
		data.Nodes = append(data.Nodes, GraphNode{
			ID:              n.ID,
			Label:           n.Name + " " + n.Version,
			Type:            nodeType,
			Depth:           depths[n.ID],
			Vulnerabilities: len(n.Vulnerabilities),
			InCycle:         inCycle[n.ID],
		})
	}

	seen := make(map[string]bool)
	for _, e := range tree.Edges {
		if e.Kind == model.EdgeDepthLimit && !seen[e.To] {
			seen[e.To] = true
			label := e.To
			if ref, ok := tree.Ref(e.To); ok {
				label = ref.Name + " " + ref.Version
			}
			data.Nodes = append(data.Nodes, GraphNode{
				ID:    e.To,
				Label: label,
				Type:  "truncated",
				Depth: depths[e.From] + 1,
			})
		}
		data.Edges = append(data.Edges, GraphEdge{
			Source: e.From,
			Target: e.To,
			Type:   string(e.Kind),
		})
	}

	return data
}

// Focus keeps the nodes the view shows and the edges between them. Cycle
// groups are trimmed to their visible members.
func (d *GraphData) Focus(view lens.View) *GraphData {
	edges := make([]lens.Edge, len(d.Edges))
	for i, e := range d.Edges {
		edges[i] = lens.Edge{Source: e.Source, Target: e.Target}
	}
	visible := view.Visible(edges)

	out := &GraphData{
		Name:    d.Name,
		Latest:  d.Latest,
		Nodes:   []GraphNode{},
		Edges:   []GraphEdge{},
		Cycles:  []cycles.CycleGroup{},
		Partial: d.Partial,
		Error:   d.Error,
	}
	for _, n := range d.Nodes {
		if dist, ok := visible[n.ID]; ok {
			n.Distance = &dist
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range d.Edges {
		_, from := visible[e.Source]
		_, to := visible[e.Target]
		if from && to {
			out.Edges = append(out.Edges, e)
		}
	}
	for _, g := range d.Cycles {
		var kept []string
		for _, id := range g.Components {
			if _, ok := visible[id]; ok {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			out.Cycles = append(out.Cycles, cycles.CycleGroup{Components: kept})
		}
	}
	return out
}
