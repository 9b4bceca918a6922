// seqopt/seqopt.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package seqopt reorders a batch of items with a genetic algorithm to
// minimize a caller-supplied cost. The result is always a permutation of
// the input; the optimizer can only do better or worse, never fail.
package seqopt

import (
	"slices"

	"github.com/atcflow/atcflow/rand"
)

type Params struct {
	PopulationSize int     `json:"population_size" yaml:"population_size"`
	Generations    int     `json:"generations" yaml:"generations"`
	MutationRate   float32 `json:"mutation_rate" yaml:"mutation_rate"`
}

func DefaultParams() Params {
	return Params{PopulationSize: 32, Generations: 40, MutationRate: 0.12}
}

// Stats records the best and mean fitness of the population at the start
// of each generation, plus the final population.
type Stats struct {
	Best        []float64
	Mean        []float64
	Evaluations int
}

// Optimize returns the lowest-cost ordering of ids it finds. ids must be
// distinct; crossover drops repeats. fitness is
// called with candidate orderings and must not retain or modify them.
func Optimize[T comparable](ids []T, fitness func([]T) float64, p Params, r *rand.Rand) []T {
	best, _ := OptimizeStats(ids, fitness, p, r)
	return best
}

type individual[T comparable] struct {
	order []T
	cost  float64
}

// OptimizeStats is Optimize but also returns the per-generation fitness
// history.
func OptimizeStats[T comparable](ids []T, fitness func([]T) float64, p Params, r *rand.Rand) ([]T, Stats) {
	var stats Stats
	n := len(ids)
	if n < 2 || p.PopulationSize < 2 {
		return slices.Clone(ids), stats
	}

	eval := func(order []T) individual[T] {
		stats.Evaluations++
		return individual[T]{order: order, cost: fitness(order)}
	}
	record := func(pop []individual[T]) {
		var sum float64
		for _, ind := range pop {
			sum += ind.cost
		}
		stats.Best = append(stats.Best, pop[0].cost)
		stats.Mean = append(stats.Mean, sum/float64(len(pop)))
	}
	byCost := func(a, b individual[T]) int {
		switch {
		case a.cost < b.cost:
			return -1
		case a.cost > b.cost:
			return 1
		default:
			return 0
		}
	}

	pop := make([]individual[T], p.PopulationSize)
	for i := range pop {
		order := make([]T, n)
		for j, k := range r.Perm(n) {
			order[j] = ids[k]
		}
		pop[i] = eval(order)
	}

	for range max(p.Generations, 0) {
		slices.SortStableFunc(pop, byCost)
		record(pop)

		survivors := pop[:max(p.PopulationSize/2, 1)]
		next := slices.Clone(survivors)
		for len(next) < p.PopulationSize {
			a := survivors[r.Intn(len(survivors))].order
			b := survivors[r.Intn(len(survivors))].order
			child := orderedCrossover(a, b, 1+r.Intn(n-1))
			if r.Float32() < p.MutationRate {
				swapMutate(child, r)
			}
			next = append(next, eval(child))
		}
		pop = next
	}

	slices.SortStableFunc(pop, byCost)
	record(pop)
	return slices.Clone(pop[0].order), stats
}

// orderedCrossover returns a child that takes a[:cut] followed by the
// elements of b not in that prefix, in b's order.
func orderedCrossover[T comparable](a, b []T, cut int) []T {
	child := make([]T, 0, len(a))
	child = append(child, a[:cut]...)
	used := make(map[T]struct{}, cut)
	for _, v := range a[:cut] {
		used[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := used[v]; !ok {
			child = append(child, v)
		}
	}
	return child
}

// swapMutate exchanges two distinct random positions of s.
func swapMutate[T any](s []T, r *rand.Rand) {
	i := r.Intn(len(s))
	j := r.Intn(len(s) - 1)
	if j >= i {
		j++
	}
	s[i], s[j] = s[j], s[i]
}
