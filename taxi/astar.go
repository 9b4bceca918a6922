// taxi/astar.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package taxi

import "container/heap"

type searchNode struct {
	id  NodeID
	g   float32
	f   float32
	seq int // insertion order, for breaking ties in f
}

type openSet []searchNode

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}
func (o openSet) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o *openSet) Push(x any)   { *o = append(*o, x.(searchNode)) }
func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	*o = old[:len(old)-1]
	return n
}

// FindPath returns a shortest path from start to goal, including both
// endpoints, using A* with the straight-line distance to goal as the
// heuristic. Nodes in blocked are never entered; blocked may be nil. The
// second result is false if either endpoint is not in the graph or goal
// is unreachable.
func (g *Graph) FindPath(start, goal NodeID, blocked map[NodeID]struct{}) ([]NodeID, bool) {
	if !g.Has(start) || !g.Has(goal) {
		return nil, false
	}

	seq := 0
	open := &openSet{{id: start, f: g.Distance(start, goal)}}
	gScore := map[NodeID]float32{start: 0}
	cameFrom := make(map[NodeID]NodeID)
	closed := make(map[NodeID]struct{})

	for open.Len() > 0 {
		cur := heap.Pop(open).(searchNode)
		if cur.id == goal {
			return reconstructPath(cameFrom, start, goal), true
		}
		if _, ok := closed[cur.id]; ok {
			// Stale entry; a cheaper one was already expanded.
			continue
		}
		closed[cur.id] = struct{}{}

		for _, nb := range g.Adjacency[cur.id] {
			if _, ok := blocked[nb]; ok {
				continue
			}
			if _, ok := closed[nb]; ok {
				continue
			}
			ng := cur.g + g.Distance(cur.id, nb)
			if best, ok := gScore[nb]; ok && ng >= best {
				continue
			}
			gScore[nb] = ng
			cameFrom[nb] = cur.id
			seq++
			heap.Push(open, searchNode{id: nb, g: ng, f: ng + g.Distance(nb, goal), seq: seq})
		}
	}
	return nil, false
}

func reconstructPath(cameFrom map[NodeID]NodeID, start, goal NodeID) []NodeID {
	path := []NodeID{goal}
	for n := goal; n != start; {
		n = cameFrom[n]
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
