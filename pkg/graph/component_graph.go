package graph

import (
	"sort"

	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

// ComponentNode is a component version in the dependency graph
type ComponentNode struct {
	ID      string // e.g., "zlib-1.2.11"
	Name    string
	Version string
	Root    bool // One of the resolved root versions
}

// ComponentGraph is a directed view of a resolved tree backed by gonum. Cycle
// edges are included so strongly connected components can be found; depth-limit
// edges are not, since their targets were never materialized.
type ComponentGraph struct {
	graph     *simple.DirectedGraph
	nodes     map[string]*ComponentNode
	ids       map[string]int64
	byID      map[int64]string
	selfLoops map[string]bool // simple.DirectedGraph rejects self edges
	nextID    int64
}

// NewComponentGraph creates an empty component graph
func NewComponentGraph() *ComponentGraph {
	return &ComponentGraph{
		graph:     simple.NewDirectedGraph(),
		nodes:     make(map[string]*ComponentNode),
		ids:       make(map[string]int64),
		byID:      make(map[int64]string),
		selfLoops: make(map[string]bool),
	}
}

// AddComponent adds a node; adding an id twice is a no-op
func (cg *ComponentGraph) AddComponent(node *ComponentNode) {
	if _, exists := cg.nodes[node.ID]; exists {
		return
	}

	cg.nodes[node.ID] = node
	cg.ids[node.ID] = cg.nextID
	cg.byID[cg.nextID] = node.ID
	cg.graph.AddNode(simple.Node(cg.nextID))
	cg.nextID++
}

// AddDependency adds an edge from source to target. Unknown ids are added as bare nodes.
func (cg *ComponentGraph) AddDependency(source, target string) {
	for _, id := range []string{source, target} {
		if _, ok := cg.nodes[id]; !ok {
			cg.AddComponent(&ComponentNode{ID: id})
		}
	}

	if source == target {
		cg.selfLoops[source] = true
		return
	}

	from, to := cg.ids[source], cg.ids[target]
	if !cg.graph.HasEdgeFromTo(from, to) {
		cg.graph.SetEdge(cg.graph.NewEdge(cg.graph.Node(from), cg.graph.Node(to)))
	}
}

// Build creates the graph of a resolved tree
func Build(tree *model.ResolvedTree) *ComponentGraph {
	cg := NewComponentGraph()
	roots := make(map[string]bool)
	for _, id := range tree.RootIDs() {
		roots[id] = true
	}

	for _, n := range tree.Nodes {
		cg.AddComponent(&ComponentNode{ID: n.ID, Name: n.Name, Version: n.Version, Root: roots[n.ID]})
	}
	for _, e := range tree.Edges {
		if e.Kind == model.EdgeDepthLimit {
			continue
		}
		cg.AddDependency(e.From, e.To)
	}
	return cg
}

// Graph returns the underlying directed graph
func (cg *ComponentGraph) Graph() *simple.DirectedGraph {
	return cg.graph
}

// Node returns a component by id
func (cg *ComponentGraph) Node(id string) (*ComponentNode, bool) {
	node, exists := cg.nodes[id]
	return node, exists
}

// NodeByGraphID maps a gonum node id back to the component
func (cg *ComponentGraph) NodeByGraphID(id int64) (*ComponentNode, bool) {
	key, ok := cg.byID[id]
	if !ok {
		return nil, false
	}
	return cg.nodes[key], true
}

// HasSelfLoop reports whether a component depends on itself
func (cg *ComponentGraph) HasSelfLoop(id string) bool {
	return cg.selfLoops[id]
}

// Nodes returns all components sorted by id
func (cg *ComponentGraph) Nodes() []*ComponentNode {
	nodes := make([]*ComponentNode, 0, len(cg.nodes))
	for _, node := range cg.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Edges returns all dependency edges as [source, target] pairs, sorted
func (cg *ComponentGraph) Edges() [][2]string {
	var edges [][2]string

	iter := cg.graph.Edges()
	for iter.Next() {
		edge := iter.Edge()
		edges = append(edges, [2]string{cg.byID[edge.From().ID()], cg.byID[edge.To().ID()]})
	}
	for id := range cg.selfLoops {
		edges = append(edges, [2]string{id, id})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// Dependencies returns the direct dependencies of a component
func (cg *ComponentGraph) Dependencies(id string) []string {
	gid, exists := cg.ids[id]
	if !exists {
		return nil
	}

	var out []string
	iter := cg.graph.From(gid)
	for iter.Next() {
		out = append(out, cg.byID[iter.Node().ID()])
	}
	if cg.selfLoops[id] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the components that depend directly on id
func (cg *ComponentGraph) Dependents(id string) []string {
	gid, exists := cg.ids[id]
	if !exists {
		return nil
	}

	var out []string
	iter := cg.graph.To(gid)
	for iter.Next() {
		out = append(out, cg.byID[iter.Node().ID()])
	}
	if cg.selfLoops[id] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Depths returns the shortest dependency distance from the nearest root version
// to every reachable component
func (cg *ComponentGraph) Depths() map[string]int {
	depths := make(map[string]int, len(cg.nodes))
	for _, root := range cg.Nodes() {
		if !root.Root {
			continue
		}
		var bfs traverse.BreadthFirst
		bfs.Walk(cg.graph, cg.graph.Node(cg.ids[root.ID]), func(n gograph.Node, d int) bool {
			id := cg.byID[n.ID()]
			if cur, ok := depths[id]; !ok || d < cur {
				depths[id] = d
			}
			return false
		})
	}
	return depths
}

// MaxDepth returns the largest value of Depths, zero for an empty graph
func (cg *ComponentGraph) MaxDepth() int {
	deepest := 0
	for _, d := range cg.Depths() {
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}
