package model

import "strings"

// EdgeKind distinguishes real dependency edges from synthetic truncation markers
type EdgeKind string

const (
	EdgeDependsOn  EdgeKind = "depends_on"  // Parent version depends on child version
	EdgeCycle      EdgeKind = "cycle"       // Child is an ancestor on the current path; not expanded again
	EdgeDepthLimit EdgeKind = "depth_limit" // Child would exceed the depth bound; not materialized
)

// NormalizeName returns the identity of a component name (case-insensitive, trimmed)
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NodeID builds the node identity for a component version, e.g. "zlib-1.2.11"
func NodeID(name, version string) string {
	return NormalizeName(name) + "-" + version
}

// Ref names a component version before it is materialized as a node
type Ref struct {
	Name    string `json:"name"`
	Version string `json:"version_id"`
}

// ID returns the node id the ref resolves to
func (r Ref) ID() string {
	return NodeID(r.Name, r.Version)
}

// Vulnerability is an identifier already present in the knowledge graph, attached to one version
type Vulnerability struct {
	ID   string `json:"id"`
	URI  string `json:"uri,omitempty"`
	Type string `json:"type,omitempty"` // e.g. "CWE-787"
}

// Node is the resolver's unit of materialization: one component version
type Node struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Version         string          `json:"version_id"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// NewNode creates a node for a normalized component name and a verbatim version id
func NewNode(name, version string) *Node {
	name = NormalizeName(name)
	return &Node{
		ID:              NodeID(name, version),
		Name:            name,
		Version:         version,
		Vulnerabilities: []Vulnerability{},
	}
}

// Edge is a directed relation from a parent node to a child node id.
// For depth_limit edges the target id has no node in the tree.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}
