package sdrun

import (
	"container/heap"

	"sdengine/internal/sdlerrors"
)

// Node is one entry in a dependency graph to be topologically sorted: Ident
// depends on every ident in Deps.
type Node struct {
	Ident string
	Deps  []string
}

// identHeap is a min-heap of idents, used to deterministically break ties
// among equally-ready nodes (smallest canonical ident first).
type identHeap []string

func (h identHeap) Len() int            { return len(h) }
func (h identHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h identHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *identHeap) Push(x interface{}) { *h = append(*h, x.(string)) }
func (h *identHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// TopoSort orders nodes so every ident appears after all of its Deps,
// breaking ties by canonical-ident ascending. A dependency on an ident not
// present in nodes is ignored (it is resolved elsewhere, e.g. a module
// input or a cross-model reference already validated). Returns
// CodeCircularDependency if nodes form a cycle.
func TopoSort(nodes []Node) ([]string, error) {
	index := make(map[string]*Node, len(nodes))
	for i := range nodes {
		index[nodes[i].Ident] = &nodes[i]
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := indegree[n.Ident]; !ok {
			indegree[n.Ident] = 0
		}
		for _, d := range n.Deps {
			if _, ok := index[d]; !ok {
				continue // dependency outside this graph's node set
			}
			indegree[n.Ident]++
			dependents[d] = append(dependents[d], n.Ident)
		}
	}

	ready := &identHeap{}
	for ident, deg := range indegree {
		if deg == 0 {
			heap.Push(ready, ident)
		}
	}

	var order []string
	for ready.Len() > 0 {
		ident := heap.Pop(ready).(string)
		order = append(order, ident)
		for _, dep := range dependents[ident] {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, sdlerrors.New(sdlerrors.KindModel, sdlerrors.CodeCircularDependency,
			"dependency cycle detected among %d of %d variables", len(nodes)-len(order), len(nodes))
	}
	return order, nil
}
