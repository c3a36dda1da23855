package cycles

import (
	"sort"

	"github.com/ritzau/sbom-resolver/pkg/graph"
)

// CycleGroup is a set of component versions that depend on each other
type CycleGroup struct {
	Components []string `json:"components"` // Sorted node ids
}

// FindCycles finds every dependency cycle in the component graph, including
// components that depend on themselves. Groups are sorted by their first id.
func FindCycles(cg *graph.ComponentGraph) []CycleGroup {
	tarjan := NewTarjanSCC(cg.Graph())

	groups := make([]CycleGroup, 0)
	for _, scc := range tarjan.FindSCCs() {
		ids := make([]string, 0, len(scc))
		for _, gid := range scc {
			if node, ok := cg.NodeByGraphID(gid); ok {
				ids = append(ids, node.ID)
			}
		}
		sort.Strings(ids)
		groups = append(groups, CycleGroup{Components: ids})
	}

	for _, node := range cg.Nodes() {
		if cg.HasSelfLoop(node.ID) && !inGroup(groups, node.ID) {
			groups = append(groups, CycleGroup{Components: []string{node.ID}})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Components[0] < groups[j].Components[0]
	})
	return groups
}

func inGroup(groups []CycleGroup, id string) bool {
	for _, g := range groups {
		for _, c := range g.Components {
			if c == id {
				return true
			}
		}
	}
	return false
}
