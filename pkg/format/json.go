package format

import (
	"encoding/json"
	"fmt"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

// Markers on nested entries that reference a node instead of expanding it
const (
	MarkerDuplicate  = "duplicate"
	MarkerCycle      = "cycle"
	MarkerDepthLimit = "depth_limit"
)

// MarkerUnresolved flags a root version whose node was never materialized,
// as in a partial tree cut short by an error
const MarkerUnresolved = "unresolved"

// Document is the plain JSON shape consumed by the presentation layer
type Document struct {
	Name        string       `json:"name"`
	Latest      string       `json:"latest,omitempty"`
	GeneratedAt string       `json:"generated_at,omitempty"`
	Tool        *Tool        `json:"tool,omitempty"`
	Versions    []VersionDoc `json:"versions"`
}

// VersionDoc is one root version with its dependency tree
type VersionDoc struct {
	VersionID       string                `json:"version_id"`
	Dependencies    []NodeDoc             `json:"dependencies"`
	Vulnerabilities []model.Vulnerability `json:"vulnerabilities"`
	Marker          string                `json:"marker,omitempty"`
}

// NodeDoc is a dependency entry. A node is expanded at its first occurrence;
// later occurrences carry a marker and no children.
type NodeDoc struct {
	Name            string                `json:"name"`
	VersionID       string                `json:"version_id"`
	Dependencies    []NodeDoc             `json:"dependencies"`
	Vulnerabilities []model.Vulnerability `json:"vulnerabilities"`
	Marker          string                `json:"marker,omitempty"`
}

// ToJSON encodes the plain JSON document
func (e *Encoder) ToJSON(tree *model.ResolvedTree) ([]byte, error) {
	if err := validate(JSON, tree); err != nil {
		return nil, err
	}

	tool := e.tool()
	doc := Document{
		Name:        tree.Name,
		Latest:      tree.Latest,
		GeneratedAt: e.timestamp(),
		Tool:        &tool,
		Versions:    make([]VersionDoc, 0, len(tree.Versions)),
	}

	b := &docBuilder{tree: tree, expanded: make(map[string]bool)}
	// Root versions are expanded at top level, so nested references to them are duplicates
	for _, id := range tree.RootIDs() {
		b.expanded[id] = true
	}
	for _, v := range tree.Versions {
		id := model.NodeID(tree.Name, v)
		vd := VersionDoc{VersionID: v, Dependencies: b.children(id), Vulnerabilities: []model.Vulnerability{}}
		if n, ok := tree.Node(id); ok {
			vd.Vulnerabilities = vulnerabilities(n)
		} else {
			vd.Marker = MarkerUnresolved
		}
		doc.Versions = append(doc.Versions, vd)
	}

	return json.MarshalIndent(doc, "", "  ")
}

type docBuilder struct {
	tree     *model.ResolvedTree
	expanded map[string]bool
}

func (b *docBuilder) children(id string) []NodeDoc {
	out := make([]NodeDoc, 0)
	for _, e := range b.tree.Children(id) {
		ref, ok := b.tree.Ref(e.To)
		if !ok {
			continue
		}
		nd := NodeDoc{
			Name:            ref.Name,
			VersionID:       ref.Version,
			Dependencies:    []NodeDoc{},
			Vulnerabilities: []model.Vulnerability{},
		}
		switch {
		case e.Kind == model.EdgeCycle:
			nd.Marker = MarkerCycle
		case e.Kind == model.EdgeDepthLimit:
			nd.Marker = MarkerDepthLimit
		case b.expanded[e.To]:
			nd.Marker = MarkerDuplicate
		default:
			b.expanded[e.To] = true
			if n, ok := b.tree.Node(e.To); ok {
				nd.Vulnerabilities = vulnerabilities(n)
			}
			nd.Dependencies = b.children(e.To)
		}
		out = append(out, nd)
	}
	return out
}

func vulnerabilities(n *model.Node) []model.Vulnerability {
	if n.Vulnerabilities == nil {
		return []model.Vulnerability{}
	}
	return n.Vulnerabilities
}

// ParseJSON rebuilds the node and edge sets from a plain JSON document
func ParseJSON(data []byte) (*model.ResolvedTree, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json document: %w", err)
	}

	tree := model.NewResolvedTree(doc.Name)
	tree.Latest = doc.Latest
	for _, v := range doc.Versions {
		tree.Versions = append(tree.Versions, v.VersionID)
		if v.Marker == MarkerUnresolved {
			continue
		}
		root := model.NewNode(doc.Name, v.VersionID)
		root.Vulnerabilities = v.Vulnerabilities
		tree.AddNode(root)
	}
	for _, v := range doc.Versions {
		parseChildren(tree, model.NodeID(doc.Name, v.VersionID), v.Dependencies)
	}
	return tree, nil
}

func parseChildren(tree *model.ResolvedTree, parent string, deps []NodeDoc) {
	for _, d := range deps {
		ref := model.Ref{Name: model.NormalizeName(d.Name), Version: d.VersionID}
		switch d.Marker {
		case MarkerCycle:
			tree.AddEdge(parent, ref.ID(), model.EdgeCycle)
		case MarkerDepthLimit:
			tree.AddTruncation(parent, ref)
		case MarkerDuplicate:
			tree.AddEdge(parent, ref.ID(), model.EdgeDependsOn)
		default:
			node := model.NewNode(ref.Name, ref.Version)
			if d.Vulnerabilities != nil {
				node.Vulnerabilities = d.Vulnerabilities
			}
			tree.AddNode(node)
			tree.AddEdge(parent, ref.ID(), model.EdgeDependsOn)
			parseChildren(tree, ref.ID(), d.Dependencies)
		}
	}
}
