// taxi/taxi_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package taxi

import (
	"errors"
	"slices"
	"testing"

	"github.com/atcflow/atcflow/math"
)

func mustGraph(t *testing.T, nodes map[NodeID]math.Point2f, adj map[NodeID][]NodeID) *Graph {
	t.Helper()
	g, err := NewGraph(nodes, adj)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func lineGraph(t *testing.T) *Graph {
	return mustGraph(t,
		map[NodeID]math.Point2f{"A": {0, 0}, "B": {10, 0}, "C": {20, 0}},
		map[NodeID][]NodeID{"A": {"B"}, "B": {"C"}})
}

func TestFindPathLine(t *testing.T) {
	g := lineGraph(t)

	path, ok := g.FindPath("A", "C", nil)
	if !ok {
		t.Fatal("no path found")
	}
	if !slices.Equal(path, []NodeID{"A", "B", "C"}) {
		t.Errorf("got %v, want [A B C]", path)
	}
	if c := g.PathCost(path); c != 20 {
		t.Errorf("cost = %v, want 20", c)
	}

	// Adjacency is symmetric, so the reverse works too.
	if path, ok := g.FindPath("C", "A", map[NodeID]struct{}{}); !ok || !slices.Equal(path, []NodeID{"C", "B", "A"}) {
		t.Errorf("reverse: got %v, %v", path, ok)
	}

	if path, ok := g.FindPath("B", "B", nil); !ok || !slices.Equal(path, []NodeID{"B"}) {
		t.Errorf("trivial path: got %v, %v", path, ok)
	}
}

func TestFindPathMissingEndpoints(t *testing.T) {
	g := lineGraph(t)
	if _, ok := g.FindPath("A", "Z", nil); ok {
		t.Errorf("found path to nonexistent node")
	}
	if _, ok := g.FindPath("Z", "A", nil); ok {
		t.Errorf("found path from nonexistent node")
	}
}

// detourGraph has two equal-cost routes from S to T via M1 and M2 and a
// much longer one via X.
func detourGraph(t *testing.T) *Graph {
	return mustGraph(t,
		map[NodeID]math.Point2f{
			"S": {0, 0}, "M1": {5, 5}, "M2": {5, -5}, "X": {5, 40}, "T": {10, 0},
		},
		map[NodeID][]NodeID{
			"S":  {"M1", "M2", "X"},
			"M1": {"T"}, "M2": {"T"}, "X": {"T"},
		})
}

func TestFindPathOptimal(t *testing.T) {
	g := detourGraph(t)
	path, ok := g.FindPath("S", "T", nil)
	if !ok {
		t.Fatal("no path")
	}
	want := 2 * math.Sqrt(50)
	if c := g.PathCost(path); math.Abs(c-want) > 1e-4 {
		t.Errorf("cost %v, want optimal %v (path %v)", c, want, path)
	}
	// Ties in f resolve by insertion order and neighbors are sorted, so
	// M1 is preferred over M2.
	if !slices.Equal(path, []NodeID{"S", "M1", "T"}) {
		t.Errorf("got %v, want [S M1 T]", path)
	}
}

func TestFindPathBlocked(t *testing.T) {
	g := detourGraph(t)

	blocked := map[NodeID]struct{}{"M1": {}}
	path, ok := g.FindPath("S", "T", blocked)
	if !ok || !slices.Equal(path, []NodeID{"S", "M2", "T"}) {
		t.Errorf("got %v, %v; want [S M2 T]", path, ok)
	}

	blocked["M2"] = struct{}{}
	path, ok = g.FindPath("S", "T", blocked)
	if !ok || slices.Contains(path, "M1") || slices.Contains(path, "M2") {
		t.Errorf("path %v passes through a blocked node", path)
	}
	if !slices.Equal(path, []NodeID{"S", "X", "T"}) {
		t.Errorf("got %v, want [S X T]", path)
	}

	blocked["X"] = struct{}{}
	if path, ok := g.FindPath("S", "T", blocked); ok {
		t.Errorf("expected no path, got %v", path)
	}
}

func TestFindPathNeverUsesBlocked(t *testing.T) {
	g := mustGraph(t,
		map[NodeID]math.Point2f{
			"a": {0, 0}, "b": {1, 0}, "c": {2, 0}, "d": {0, 1}, "e": {1, 1}, "f": {2, 1},
		},
		map[NodeID][]NodeID{
			"a": {"b", "d"}, "b": {"c", "e"}, "c": {"f"}, "d": {"e"}, "e": {"f"},
		})
	for _, blk := range []NodeID{"b", "d", "e"} {
		blocked := map[NodeID]struct{}{blk: {}}
		path, ok := g.FindPath("a", "f", blocked)
		if !ok {
			t.Errorf("blocking %s: no path", blk)
			continue
		}
		if slices.Contains(path, blk) {
			t.Errorf("blocking %s: path %v contains it", blk, path)
		}
		for i := 1; i < len(path); i++ {
			if !g.Adjacent(path[i-1], path[i]) {
				t.Errorf("path %v uses non-edge %s-%s", path, path[i-1], path[i])
			}
		}
	}
}

func TestNewGraphValidation(t *testing.T) {
	_, err := NewGraph(
		map[NodeID]math.Point2f{"A": {0, 0}},
		map[NodeID][]NodeID{"A": {"B"}, "Q": {"A"}})
	if !errors.Is(err, ErrUnknownNode) {
		t.Errorf("got %v, want ErrUnknownNode", err)
	}

	g := mustGraph(t,
		map[NodeID]math.Point2f{"A": {0, 0}, "B": {1, 0}},
		map[NodeID][]NodeID{"A": {"B", "B", "A"}, "B": {"A"}})
	if !slices.Equal(g.Adjacency["A"], []NodeID{"B"}) || !slices.Equal(g.Adjacency["B"], []NodeID{"A"}) {
		t.Errorf("adjacency not deduplicated: %v", g.Adjacency)
	}
	if edges := g.Edges(); len(edges) != 1 || edges[0] != (Edge{A: "A", B: "B"}) {
		t.Errorf("Edges() = %v", edges)
	}
}

func TestMakeEdge(t *testing.T) {
	if MakeEdge("T_B", "T_A") != MakeEdge("T_A", "T_B") {
		t.Errorf("edge keys differ by direction")
	}
	if e := MakeEdge("Z", "A"); e.A != "A" || e.B != "Z" || e.String() != "A-Z" {
		t.Errorf("got %+v", e)
	}
}

func TestPlanner(t *testing.T) {
	p := NewPlanner(lineGraph(t), 4)

	for range 3 {
		path, err := p.Route("A", "C", nil)
		if err != nil || !slices.Equal(path, []NodeID{"A", "B", "C"}) {
			t.Fatalf("got %v, %v", path, err)
		}
		// Callers may modify what they get back.
		path[0] = "mutated"
	}
	if hits, misses := p.CacheStats(); hits != 2 || misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", hits, misses)
	}

	// Blocked queries bypass the cache.
	if _, err := p.Route("A", "C", map[NodeID]struct{}{"B": {}}); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("got %v, want ErrRouteNotFound", err)
	}
	if hits, misses := p.CacheStats(); hits != 2 || misses != 1 {
		t.Errorf("blocked query touched the cache: %d/%d", hits, misses)
	}

	if _, err := p.Route("A", "nowhere", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("got %v, want ErrUnknownNode", err)
	}
}
