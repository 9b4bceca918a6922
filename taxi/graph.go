// taxi/graph.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package taxi holds the airport's taxiway topology and finds routes
// across it.
package taxi

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/util"
)

// NodeID names a taxiway node: a runway exit, an intersection, or a
// gate's entry point.
type NodeID string

// Graph is an undirected taxiway graph with nodes at fixed positions.
// It is not modified after NewGraph returns and so may be shared freely.
type Graph struct {
	Nodes     map[NodeID]math.Point2f
	Adjacency map[NodeID][]NodeID
}

// NewGraph builds a Graph from node positions and an adjacency list. Edges
// are made symmetric and duplicate or self edges are dropped. An edge that
// names a node without a position is an error.
func NewGraph(nodes map[NodeID]math.Point2f, adjacency map[NodeID][]NodeID) (*Graph, error) {
	var e util.ErrorLogger

	g := &Graph{
		Nodes:     make(map[NodeID]math.Point2f, len(nodes)),
		Adjacency: make(map[NodeID][]NodeID, len(nodes)),
	}
	for id, p := range nodes {
		g.Nodes[id] = p
	}

	link := func(a, b NodeID) {
		if !slices.Contains(g.Adjacency[a], b) {
			g.Adjacency[a] = append(g.Adjacency[a], b)
		}
	}

	for _, a := range util.SortedMapKeys(adjacency) {
		e.Push(string(a))
		if _, ok := g.Nodes[a]; !ok {
			e.ErrorString("node has no position")
		}
		for _, b := range adjacency[a] {
			if _, ok := g.Nodes[b]; !ok {
				e.ErrorString("neighbor %q has no position", b)
				continue
			}
			if a != b {
				link(a, b)
				link(b, a)
			}
		}
		e.Pop()
	}
	if err := e.Err(ErrUnknownNode); err != nil {
		return nil, err
	}

	// Sorted neighbor lists make searches independent of map order.
	for id := range g.Adjacency {
		slices.Sort(g.Adjacency[id])
	}
	return g, nil
}

func (g *Graph) Has(id NodeID) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Distance returns the straight-line distance between two nodes.
func (g *Graph) Distance(a, b NodeID) float32 {
	return math.Distance2f(g.Nodes[a], g.Nodes[b])
}

// PathCost returns the summed edge lengths along the path.
func (g *Graph) PathCost(path []NodeID) float32 {
	var c float32
	for i := 1; i < len(path); i++ {
		c += g.Distance(path[i-1], path[i])
	}
	return c
}

// Adjacent reports whether a and b share an edge.
func (g *Graph) Adjacent(a, b NodeID) bool {
	return slices.Contains(g.Adjacency[a], b)
}

// Edge identifies an undirected taxiway segment; MakeEdge orders its
// endpoints so that MakeEdge(a, b) == MakeEdge(b, a).
type Edge struct {
	A, B NodeID
}

func MakeEdge(a, b NodeID) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s-%s", e.A, e.B)
}

// Compare orders edges by their first endpoint, then their second.
func (e Edge) Compare(o Edge) int {
	return cmp.Or(cmp.Compare(e.A, o.A), cmp.Compare(e.B, o.B))
}

// Edges returns every edge in the graph, sorted.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, a := range util.SortedMapKeys(g.Adjacency) {
		for _, b := range g.Adjacency[a] {
			if a < b {
				edges = append(edges, Edge{A: a, B: b})
			}
		}
	}
	return edges
}
