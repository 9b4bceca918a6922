// sched/sched.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sched assigns each flight in a batch a runway, a gate, and a
// time slot such that flights sharing a runway or a gate are kept apart
// in time. It is a constraint-satisfaction search: flights are committed
// in priority order, refined by the minimum-remaining-values heuristic,
// with chronological backtracking.
package sched

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/util"
)

const (
	// SlotWindow is the number of consecutive slots, starting at a
	// flight's requested slot, that it may be assigned.
	SlotWindow = 6
	// GateSeparation is the minimum slot distance between two flights
	// using the same gate.
	GateSeparation = 2
)

type FlightID string

// SizeClass describes aircraft and gate sizes.
type SizeClass string

const (
	SizeAny    SizeClass = ""
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

func (s SizeClass) rank() int {
	switch s {
	case SizeSmall:
		return 1
	case SizeMedium:
		return 2
	case SizeLarge:
		return 3
	default:
		return 0
	}
}

func (s SizeClass) Valid() bool {
	return s == SizeAny || s.rank() > 0
}

// Accepts reports whether a gate of size s can park an aircraft of size
// a: a gate takes aircraft of its own size or smaller. A gate or aircraft
// without a size class matches anything.
func (s SizeClass) Accepts(a SizeClass) bool {
	return s == SizeAny || a == SizeAny || a.rank() <= s.rank()
}

// Variable is a flight to be scheduled.
type Variable struct {
	ID            FlightID
	RequestedSlot int
	Priority      float32
	Size          SizeClass
}

type Gate struct {
	ID   string
	Size SizeClass
}

type Request struct {
	Flights []Variable
	Runways []string
	Gates   []Gate
	// Separation is the minimum slot distance between two flights using
	// the same runway.
	Separation int
	// MaxSteps bounds the number of consistency checks the search may
	// perform; zero or negative means no limit.
	MaxSteps int
	// Fixed holds assignments committed by earlier passes. New
	// assignments must be consistent with them; they are not returned.
	Fixed map[FlightID]Assignment
}

type Assignment struct {
	Runway string `json:"runway" yaml:"runway"`
	Gate   string `json:"gate" yaml:"gate"`
	Slot   int    `json:"slot" yaml:"slot"`
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s/%s@%d", a.Runway, a.Gate, a.Slot)
}

func (a Assignment) LogValue() slog.Value {
	return slog.GroupValue(slog.String("runway", a.Runway), slog.String("gate", a.Gate),
		slog.Int("slot", a.Slot))
}

// Stats describes the work done by a search.
type Stats struct {
	Steps      int
	Backtracks int
}

// Domain returns the candidate assignments for v in the order the search
// tries them: runways, then compatible gates, then slots in the window
// starting at the requested slot.
func Domain(v Variable, runways []string, gates []Gate) []Assignment {
	var dom []Assignment
	for _, r := range runways {
		for _, g := range gates {
			if !g.Size.Accepts(v.Size) {
				continue
			}
			for s := v.RequestedSlot; s < v.RequestedSlot+SlotWindow; s++ {
				dom = append(dom, Assignment{Runway: r, Gate: g.ID, Slot: s})
			}
		}
	}
	return dom
}

// Solve returns an assignment for every flight in the request, or an
// error wrapping ErrSchedulingFailure if there is none.
func Solve(req Request) (map[FlightID]Assignment, error) {
	a, _, err := SolveStats(req)
	return a, err
}

// SolveStats is Solve but also returns statistics about the search.
func SolveStats(req Request) (map[FlightID]Assignment, Stats, error) {
	s := &solver{
		req:      req,
		assigned: make(map[FlightID]Assignment, len(req.Flights)+len(req.Fixed)),
	}
	for id, a := range req.Fixed {
		s.assigned[id] = a
	}

	// Highest priority first; SliceStable keeps input order among equals.
	s.order = slices.Clone(req.Flights)
	slices.SortStableFunc(s.order, func(a, b Variable) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		default:
			return 0
		}
	})

	seen := make(map[FlightID]struct{}, len(s.order))
	s.domains = make([][]Assignment, len(s.order))
	for i, v := range s.order {
		if _, ok := seen[v.ID]; ok {
			return nil, Stats{}, fmt.Errorf("flight %s appears twice: %w", v.ID, ErrSchedulingFailure)
		}
		if _, ok := req.Fixed[v.ID]; ok {
			return nil, Stats{}, fmt.Errorf("flight %s is already assigned: %w", v.ID, ErrSchedulingFailure)
		}
		seen[v.ID] = struct{}{}
		s.domains[i] = Domain(v, req.Runways, req.Gates)
	}
	s.pending = make([]bool, len(s.order))
	for i := range s.pending {
		s.pending[i] = true
	}

	if !s.backtrack(len(s.order)) {
		if s.exhausted {
			return nil, s.stats, ErrSearchExhausted
		}
		return nil, s.stats, ErrSchedulingFailure
	}
	for id := range req.Fixed {
		delete(s.assigned, id)
	}
	return s.assigned, s.stats, nil
}

type solver struct {
	req       Request
	order     []Variable
	domains   [][]Assignment
	pending   []bool
	assigned  map[FlightID]Assignment
	stats     Stats
	exhausted bool
}

// consistent reports whether val conflicts with nothing assigned so far.
func (s *solver) consistent(val Assignment) bool {
	for _, other := range s.assigned {
		d := math.Abs(other.Slot - val.Slot)
		if other.Runway == val.Runway && d < s.req.Separation {
			return false
		}
		if other.Gate == val.Gate && d < GateSeparation {
			return false
		}
	}
	return true
}

// remaining returns the values in variable i's domain that are
// consistent with the current partial assignment. It returns false if
// the step budget ran out.
func (s *solver) remaining(i int) ([]Assignment, bool) {
	var vals []Assignment
	for _, val := range s.domains[i] {
		s.stats.Steps++
		if s.req.MaxSteps > 0 && s.stats.Steps > s.req.MaxSteps {
			s.exhausted = true
			return nil, false
		}
		if s.consistent(val) {
			vals = append(vals, val)
		}
	}
	return vals, true
}

// selectVariable returns the pending variable with the fewest remaining
// values, preferring higher priority among ties, along with those values.
func (s *solver) selectVariable() (int, []Assignment, bool) {
	best, bestVals := -1, []Assignment(nil)
	for i, p := range s.pending {
		if !p {
			continue
		}
		vals, ok := s.remaining(i)
		if !ok {
			return -1, nil, false
		}
		if best == -1 || len(vals) < len(bestVals) {
			best, bestVals = i, vals
			if len(vals) == 0 {
				// Dead end; no need to look further.
				break
			}
		}
	}
	return best, bestVals, true
}

func (s *solver) backtrack(left int) bool {
	if left == 0 {
		return true
	}

	i, vals, ok := s.selectVariable()
	if !ok {
		return false
	}

	v := s.order[i]
	s.pending[i] = false
	for _, val := range vals {
		s.assigned[v.ID] = val
		if s.backtrack(left - 1) {
			return true
		}
		delete(s.assigned, v.ID)
		if s.exhausted {
			break
		}
		s.stats.Backtracks++
	}
	s.pending[i] = true
	return false
}

// Verify checks that assignments covers every flight in req with a value
// from its domain and that no two flights, including those in req.Fixed,
// violate runway or gate separation. It returns an error wrapping ErrSchedulingFailure that
// describes every problem found.
func Verify(assignments map[FlightID]Assignment, req Request) error {
	var e util.ErrorLogger

	for _, v := range req.Flights {
		a, ok := assignments[v.ID]
		if !ok {
			e.ErrorString("%s: not assigned", v.ID)
			continue
		}
		if !slices.Contains(Domain(v, req.Runways, req.Gates), a) {
			e.ErrorString("%s: %s is outside its domain", v.ID, a)
		}
	}

	all := make(map[FlightID]Assignment, len(assignments)+len(req.Fixed))
	for id, a := range req.Fixed {
		all[id] = a
	}
	for id, a := range assignments {
		all[id] = a
	}

	ids := util.SortedMapKeys(all)
	for i, ida := range ids {
		for _, idb := range ids[i+1:] {
			a, b := all[ida], all[idb]
			d := math.Abs(a.Slot - b.Slot)
			if a.Runway == b.Runway && d < req.Separation {
				e.ErrorString("%s and %s: runway %s slots %d and %d closer than %d",
					ida, idb, a.Runway, a.Slot, b.Slot, req.Separation)
			}
			if a.Gate == b.Gate && d < GateSeparation {
				e.ErrorString("%s and %s: gate %s slots %d and %d closer than %d",
					ida, idb, a.Gate, a.Slot, b.Slot, GateSeparation)
			}
		}
	}

	return e.Err(ErrSchedulingFailure)
}
