// taxi/planner.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package taxi

import (
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultRouteCacheSize = 256

type routeKey struct {
	start, goal NodeID
}

type cachedRoute struct {
	path []NodeID
	ok   bool
}

// Planner answers route queries against a Graph, caching the results of
// unblocked queries. Since the graph never changes, cached routes never
// go stale. Planner is safe for concurrent use.
type Planner struct {
	graph  *Graph
	cache  *lru.Cache[routeKey, cachedRoute]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewPlanner returns a Planner over g that caches up to size routes; a
// non-positive size selects a default.
func NewPlanner(g *Graph, size int) *Planner {
	if size <= 0 {
		size = defaultRouteCacheSize
	}
	c, err := lru.New[routeKey, cachedRoute](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Planner{graph: g, cache: c}
}

func (p *Planner) Graph() *Graph {
	return p.graph
}

// Route returns a shortest path from start to goal that avoids the nodes
// in blocked. It returns an error wrapping ErrUnknownNode if either
// endpoint isn't in the graph and ErrRouteNotFound if no path exists.
func (p *Planner) Route(start, goal NodeID, blocked map[NodeID]struct{}) ([]NodeID, error) {
	for _, id := range []NodeID{start, goal} {
		if !p.graph.Has(id) {
			return nil, fmt.Errorf("%q: %w", id, ErrUnknownNode)
		}
	}

	var path []NodeID
	var ok bool
	if len(blocked) > 0 {
		path, ok = p.graph.FindPath(start, goal, blocked)
	} else {
		key := routeKey{start: start, goal: goal}
		if r, hit := p.cache.Get(key); hit {
			p.hits.Add(1)
			path, ok = slices.Clone(r.path), r.ok
		} else {
			p.misses.Add(1)
			path, ok = p.graph.FindPath(start, goal, nil)
			p.cache.Add(key, cachedRoute{path: slices.Clone(path), ok: ok})
		}
	}

	if !ok {
		return nil, fmt.Errorf("%s to %s: %w", start, goal, ErrRouteNotFound)
	}
	return path, nil
}

// CacheStats returns the number of cache hits and misses so far.
func (p *Planner) CacheStats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}
