package model

// ResolvedTree is the materialized dependency graph of one root component.
// It is an explicit node list plus edge list rather than a nested tree, so diamonds
// and cycles are represented without duplication.
type ResolvedTree struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"` // Root versions, newest first
	Latest   string   `json:"latest"`   // Display root for presentation
	Nodes    []*Node  `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	// Truncated names the targets of depth_limit edges, which have no node
	Truncated map[string]Ref `json:"truncated,omitempty"`

	index    map[string]int
	children map[string][]int // Edge positions by From
	indexed  int              // Edges covered by children
}

// NewResolvedTree creates an empty tree for a root component
func NewResolvedTree(name string) *ResolvedTree {
	return &ResolvedTree{
		Name:     NormalizeName(name),
		Versions: make([]string, 0),
		Nodes:    make([]*Node, 0),
		Edges:    make([]Edge, 0),
		index:    make(map[string]int),
		children: make(map[string][]int),
	}
}

// AddNode appends a node. A node id that is already present is left untouched and
// false is returned.
func (t *ResolvedTree) AddNode(node *Node) bool {
	t.ensureIndex()
	if _, exists := t.index[node.ID]; exists {
		return false
	}
	t.index[node.ID] = len(t.Nodes)
	t.Nodes = append(t.Nodes, node)
	return true
}

// AddEdge appends an edge
func (t *ResolvedTree) AddEdge(from, to string, kind EdgeKind) {
	t.ensureChildren()
	t.children[from] = append(t.children[from], len(t.Edges))
	t.Edges = append(t.Edges, Edge{From: from, To: to, Kind: kind})
	t.indexed = len(t.Edges)
}

// AddTruncation records a depth_limit edge to a component version that is not materialized
func (t *ResolvedTree) AddTruncation(from string, ref Ref) {
	if t.Truncated == nil {
		t.Truncated = make(map[string]Ref)
	}
	t.Truncated[ref.ID()] = ref
	t.AddEdge(from, ref.ID(), EdgeDepthLimit)
}

// Ref returns the component name and version behind an id, materialized or truncated
func (t *ResolvedTree) Ref(id string) (Ref, bool) {
	if n, ok := t.Node(id); ok {
		return Ref{Name: n.Name, Version: n.Version}, true
	}
	ref, ok := t.Truncated[id]
	return ref, ok
}

// Node returns a node by id
func (t *ResolvedTree) Node(id string) (*Node, bool) {
	t.ensureIndex()
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.Nodes[i], true
}

// Children returns the outgoing edges of a node in insertion order
func (t *ResolvedTree) Children(id string) []Edge {
	t.ensureChildren()
	positions := t.children[id]
	if len(positions) == 0 {
		return nil
	}
	out := make([]Edge, len(positions))
	for i, p := range positions {
		out[i] = t.Edges[p]
	}
	return out
}

// RootIDs returns the node ids of the root versions in version order
func (t *ResolvedTree) RootIDs() []string {
	ids := make([]string, 0, len(t.Versions))
	for _, v := range t.Versions {
		ids = append(ids, NodeID(t.Name, v))
	}
	return ids
}

// CountEdges returns the number of edges of the given kind
func (t *ResolvedTree) CountEdges(kind EdgeKind) int {
	n := 0
	for _, e := range t.Edges {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Vulnerable returns the nodes carrying at least one vulnerability
func (t *ResolvedTree) Vulnerable() []*Node {
	var out []*Node
	for _, n := range t.Nodes {
		if len(n.Vulnerabilities) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// index is rebuilt lazily for trees decoded from JSON
func (t *ResolvedTree) ensureIndex() {
	if t.index != nil && len(t.index) == len(t.Nodes) {
		return
	}
	t.index = make(map[string]int, len(t.Nodes))
	for i, n := range t.Nodes {
		t.index[n.ID] = i
	}
}

// ensureChildren indexes edges appended without AddEdge, as after decoding
func (t *ResolvedTree) ensureChildren() {
	if t.children != nil && t.indexed == len(t.Edges) {
		return
	}
	if t.children == nil || t.indexed > len(t.Edges) {
		t.children = make(map[string][]int)
		t.indexed = 0
	}
	for i := t.indexed; i < len(t.Edges); i++ {
		from := t.Edges[i].From
		t.children[from] = append(t.children[from], i)
	}
	t.indexed = len(t.Edges)
}
