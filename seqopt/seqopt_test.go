// seqopt/seqopt_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package seqopt

import (
	"fmt"
	"slices"
	"testing"

	"github.com/atcflow/atcflow/rand"
)

func isPermutation[T comparable](t *testing.T, in, out []T) {
	t.Helper()
	if len(in) != len(out) {
		t.Fatalf("length %d, want %d: %v", len(out), len(in), out)
	}
	count := make(map[T]int)
	for _, v := range in {
		count[v]++
	}
	for _, v := range out {
		count[v]--
	}
	for v, c := range count {
		if c != 0 {
			t.Fatalf("element %v count off by %d in %v", v, c, out)
		}
	}
}

// positional cost: sum of index*weight, minimized by sorting weights
// in decreasing order.
func weightedCost(weights map[string]float64) func([]string) float64 {
	return func(order []string) float64 {
		var c float64
		for i, id := range order {
			c += float64(i) * weights[id]
		}
		return c
	}
}

func TestAlwaysPermutation(t *testing.T) {
	r := rand.New(99)
	for n := range 12 {
		ids := make([]string, n)
		weights := make(map[string]float64)
		for i := range ids {
			ids[i] = fmt.Sprintf("F%d", i)
			weights[ids[i]] = float64(r.Float32())
		}
		for _, gens := range []int{0, 1, 5, 25} {
			for _, p := range []Params{
				{PopulationSize: 32, Generations: gens, MutationRate: 0.12},
				{PopulationSize: 3, Generations: gens, MutationRate: 1},
				{PopulationSize: 2, Generations: gens, MutationRate: 0},
				{PopulationSize: 0, Generations: gens, MutationRate: 0.5},
			} {
				out := Optimize(ids, weightedCost(weights), p, r)
				isPermutation(t, ids, out)
			}
		}
	}
}

func TestInputNotModified(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	orig := slices.Clone(ids)
	Optimize(ids, func(o []string) float64 { return 0 }, DefaultParams(), rand.New(1))
	if !slices.Equal(ids, orig) {
		t.Errorf("input modified: %v", ids)
	}
}

func TestFindsGoodOrder(t *testing.T) {
	weights := map[string]float64{"A": 1, "B": 5, "C": 3, "D": 9, "E": 7}
	ids := []string{"A", "B", "C", "D", "E"}
	cost := weightedCost(weights)

	out, stats := OptimizeStats(ids, cost, DefaultParams(), rand.New(2024))
	isPermutation(t, ids, out)

	// The optimum is D E B C A (cost 30); the worst is its reverse (cost 70).
	if c := cost(out); c > 35 {
		t.Errorf("got %v with cost %v, expected close to the optimum 30", out, c)
	}
	if c := cost(out); c > stats.Best[0] {
		t.Errorf("final cost %v worse than initial best %v", c, stats.Best[0])
	}

	if len(stats.Best) != DefaultParams().Generations+1 {
		t.Errorf("recorded %d generations", len(stats.Best))
	}
	// Elitist survival means the best cost never gets worse.
	for i := 1; i < len(stats.Best); i++ {
		if stats.Best[i] > stats.Best[i-1] {
			t.Errorf("best cost regressed at generation %d: %v -> %v", i, stats.Best[i-1], stats.Best[i])
		}
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8}
	cost := func(o []int) float64 {
		var c float64
		for i, v := range o {
			c += float64((i + 1) * (v % 3))
		}
		return c
	}
	a := Optimize(ids, cost, DefaultParams(), rand.New(5))
	b := Optimize(ids, cost, DefaultParams(), rand.New(5))
	if !slices.Equal(a, b) {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}

func TestOrderedCrossover(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{5, 4, 3, 2, 1}
	if got := orderedCrossover(a, b, 2); !slices.Equal(got, []int{1, 2, 5, 4, 3}) {
		t.Errorf("got %v", got)
	}
	if got := orderedCrossover(a, b, 4); !slices.Equal(got, []int{1, 2, 3, 4, 5}) {
		t.Errorf("got %v", got)
	}
}

func TestSwapMutate(t *testing.T) {
	r := rand.New(3)
	for range 100 {
		s := []int{0, 1}
		swapMutate(s, r)
		if !slices.Equal(s, []int{1, 0}) {
			t.Fatalf("two-element swap produced %v", s)
		}
	}
}
