package lens

import "sort"

// Edge is a directed edge of the graph being viewed. Distances ignore direction.
type Edge struct {
	Source string
	Target string
}

// View narrows a graph to the neighbourhood of focused nodes
type View struct {
	Focus       []string // Node ids at distance 0
	MaxDistance int      // Hops from the nearest focused node that stay visible
}

// distanceQueueNode represents a node in the BFS queue
type distanceQueueNode struct {
	nodeID   string
	distance int
}

// ComputeDistances calculates the shortest hop count from each node to the
// nearest selected node. Nodes that cannot be reached are absent from the result.
func ComputeDistances(edges []Edge, selected []string) map[string]int {
	distances := make(map[string]int)
	if len(selected) == 0 {
		return distances
	}

	adjacency := buildAdjacencyList(edges)

	queue := make([]distanceQueueNode, 0, len(selected))
	for _, id := range selected {
		if _, seen := distances[id]; seen {
			continue
		}
		distances[id] = 0
		queue = append(queue, distanceQueueNode{nodeID: id, distance: 0})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range adjacency[current.nodeID] {
			if _, exists := distances[neighbor]; !exists {
				distances[neighbor] = current.distance + 1
				queue = append(queue, distanceQueueNode{nodeID: neighbor, distance: current.distance + 1})
			}
		}
	}

	return distances
}

// Visible returns the distance of every node the view keeps. An empty focus keeps nothing.
func (v View) Visible(edges []Edge) map[string]int {
	visible := make(map[string]int)
	for id, d := range ComputeDistances(edges, v.Focus) {
		if d <= v.MaxDistance {
			visible[id] = d
		}
	}
	return visible
}

// buildAdjacencyList creates an undirected adjacency list from graph edges.
// Neighbours are sorted so traversal order does not depend on edge order.
func buildAdjacencyList(edges []Edge) map[string][]string {
	adjacency := make(map[string][]string)

	for _, edge := range edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		if edge.Source != edge.Target {
			adjacency[edge.Target] = append(adjacency[edge.Target], edge.Source)
		}
	}
	for id := range adjacency {
		sort.Strings(adjacency[id])
	}

	return adjacency
}
