package model

import (
	"reflect"
	"strconv"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.11", "1.2.8", 1},
		{"1.2.8", "1.2.11", -1},
		{"1.2.11", "1.2.11", 0},
		{"v2.0.0", "1.9.9", 1},
		{"1.0.0-rc1", "1.0.0", -1},
		{"r10", "r9", 1},
		{"build10", "build9", 1},
		{"1.0.0.10", "1.0.0.9", 1},
		{"1.0", "1.0.0", -1}, // semantically equal, string order breaks the tie
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSortVersionsDesc(t *testing.T) {
	versions := []string{"1.2.8", "1.2.11", "1.2.3", "1.10.0"}
	SortVersionsDesc(versions)

	want := []string{"1.10.0", "1.2.11", "1.2.8", "1.2.3"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("SortVersionsDesc() = %v, want %v", versions, want)
	}
}

func TestNodeID(t *testing.T) {
	if got := NodeID("  ZLib ", "1.2.11"); got != "zlib-1.2.11" {
		t.Errorf("NodeID() = %q, want zlib-1.2.11", got)
	}
	if got := (Ref{Name: "LibPNG", Version: "1.6.0"}).ID(); got != "libpng-1.6.0" {
		t.Errorf("Ref.ID() = %q, want libpng-1.6.0", got)
	}
}

func TestResolvedTree(t *testing.T) {
	tree := NewResolvedTree("zlib")
	tree.Versions = []string{"1.2.11", "1.2.8"}

	if !tree.AddNode(NewNode("zlib", "1.2.11")) {
		t.Fatal("first AddNode should succeed")
	}
	if tree.AddNode(NewNode("ZLIB", "1.2.11")) {
		t.Error("duplicate node id should be rejected")
	}
	tree.AddNode(NewNode("libpng", "1.6.0"))
	tree.AddEdge("zlib-1.2.11", "libpng-1.6.0", EdgeDependsOn)
	tree.AddEdge("libpng-1.6.0", "zlib-1.2.11", EdgeCycle)

	if len(tree.Nodes) != 2 {
		t.Errorf("len(Nodes) = %d, want 2", len(tree.Nodes))
	}
	if _, ok := tree.Node("libpng-1.6.0"); !ok {
		t.Error("Node(libpng-1.6.0) not found")
	}
	if got := tree.Children("zlib-1.2.11"); len(got) != 1 || got[0].To != "libpng-1.6.0" {
		t.Errorf("Children() = %v", got)
	}
	if got := tree.CountEdges(EdgeCycle); got != 1 {
		t.Errorf("CountEdges(cycle) = %d, want 1", got)
	}
	if got := tree.RootIDs(); !reflect.DeepEqual(got, []string{"zlib-1.2.11", "zlib-1.2.8"}) {
		t.Errorf("RootIDs() = %v", got)
	}
}

func TestResolvedTree_Truncation(t *testing.T) {
	tree := NewResolvedTree("a")
	tree.AddNode(NewNode("a", "1"))
	tree.AddTruncation("a-1", Ref{Name: "deep-lib", Version: "2.0"})

	if got := tree.CountEdges(EdgeDepthLimit); got != 1 {
		t.Errorf("CountEdges(depth_limit) = %d, want 1", got)
	}
	if _, ok := tree.Node("deep-lib-2.0"); ok {
		t.Error("truncated target must not be materialized")
	}
	ref, ok := tree.Ref("deep-lib-2.0")
	if !ok || ref.Name != "deep-lib" || ref.Version != "2.0" {
		t.Errorf("Ref(deep-lib-2.0) = %+v, %v", ref, ok)
	}
}

func TestResolvedTree_IndexRebuild(t *testing.T) {
	// Trees decoded from JSON have no index yet
	tree := &ResolvedTree{Nodes: []*Node{NewNode("a", "1")}}
	if _, ok := tree.Node("a-1"); !ok {
		t.Error("Node lookup should work on a tree built without NewResolvedTree")
	}
}

func TestResolvedTree_ChildrenLongChain(t *testing.T) {
	const n = 5000
	tree := NewResolvedTree("c")
	for i := 0; i < n; i++ {
		tree.AddNode(NewNode("c", strconv.Itoa(i)))
	}
	for i := 0; i+1 < n; i++ {
		from, to := NodeID("c", strconv.Itoa(i)), NodeID("c", strconv.Itoa(i+1))
		tree.AddEdge(from, to, EdgeDependsOn)
		tree.AddEdge(from, to+"-alt", EdgeDepthLimit)
	}

	for i := 0; i+1 < n; i++ {
		got := tree.Children(NodeID("c", strconv.Itoa(i)))
		if len(got) != 2 || got[0].To != NodeID("c", strconv.Itoa(i+1)) || got[1].Kind != EdgeDepthLimit {
			t.Fatalf("Children(%d) = %v", i, got)
		}
	}
	if got := tree.Children(NodeID("c", strconv.Itoa(n-1))); len(got) != 0 {
		t.Errorf("leaf children = %v, want none", got)
	}
}

func TestResolvedTree_ChildrenAfterLookup(t *testing.T) {
	tree := NewResolvedTree("a")
	tree.AddEdge("a-1", "b-1", EdgeDependsOn)
	if got := tree.Children("a-1"); len(got) != 1 {
		t.Fatalf("Children() = %v", got)
	}
	tree.AddEdge("a-1", "c-1", EdgeDependsOn)
	tree.AddEdge("b-1", "a-1", EdgeCycle)

	got := tree.Children("a-1")
	if len(got) != 2 || got[0].To != "b-1" || got[1].To != "c-1" {
		t.Errorf("Children() = %v, want edges to b-1 then c-1", got)
	}
	if got := tree.Children("b-1"); len(got) != 1 || got[0].Kind != EdgeCycle {
		t.Errorf("Children(b-1) = %v", got)
	}
}

func TestResolvedTree_ChildrenDecoded(t *testing.T) {
	// Struct literal trees, as produced by decoding, have no edge index yet
	tree := &ResolvedTree{Edges: []Edge{
		{From: "a-1", To: "b-1", Kind: EdgeDependsOn},
		{From: "b-1", To: "c-1", Kind: EdgeDependsOn},
		{From: "a-1", To: "c-1", Kind: EdgeDependsOn},
	}}
	if got := tree.Children("a-1"); len(got) != 2 || got[1].To != "c-1" {
		t.Errorf("Children(a-1) = %v", got)
	}

	tree.Edges = append(tree.Edges, Edge{From: "c-1", To: "d-1", Kind: EdgeDependsOn})
	if got := tree.Children("c-1"); len(got) != 1 || got[0].To != "d-1" {
		t.Errorf("Children(c-1) after append = %v", got)
	}
}
