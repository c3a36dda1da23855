package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph"
)

// TarjanSCC finds strongly connected components with Tarjan's algorithm. The
// search is iterative so long dependency chains do not grow the goroutine stack.
type TarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

// NewTarjanSCC creates a new Tarjan SCC finder
func NewTarjanSCC(g graph.Directed) *TarjanSCC {
	return &TarjanSCC{
		graph:   g,
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
	}
}

// FindSCCs returns the components with more than one node. Nodes are visited
// in id order so the result is stable for a given graph.
func (t *TarjanSCC) FindSCCs() [][]int64 {
	var ids []int64
	nodes := t.graph.Nodes()
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if _, visited := t.indices[id]; !visited {
			t.strongConnect(id)
		}
	}
	return t.sccs
}

type tarjanFrame struct {
	id    int64
	succs []int64
	next  int
}

func (t *TarjanSCC) successors(id int64) []int64 {
	var out []int64
	it := t.graph.From(id)
	for it.Next() {
		out = append(out, it.Node().ID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *TarjanSCC) visit(id int64) *tarjanFrame {
	t.indices[id] = t.index
	t.lowLink[id] = t.index
	t.index++
	t.stack = append(t.stack, id)
	t.onStack[id] = true
	return &tarjanFrame{id: id, succs: t.successors(id)}
}

func (t *TarjanSCC) strongConnect(start int64) {
	frames := []*tarjanFrame{t.visit(start)}

	for len(frames) > 0 {
		f := frames[len(frames)-1]

		if f.next < len(f.succs) {
			w := f.succs[f.next]
			f.next++
			if _, visited := t.indices[w]; !visited {
				frames = append(frames, t.visit(w))
			} else if t.onStack[w] {
				t.lowLink[f.id] = min(t.lowLink[f.id], t.indices[w])
			}
			continue
		}

		// All successors done; propagate the low link to the caller
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1]
			t.lowLink[parent.id] = min(t.lowLink[parent.id], t.lowLink[f.id])
		}

		if t.lowLink[f.id] != t.indices[f.id] {
			continue
		}
		var scc []int64
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == f.id {
				break
			}
		}
		// Single nodes are not cycles; self loops are handled by the caller
		if len(scc) > 1 {
			t.sccs = append(t.sccs, scc)
		}
	}
}
