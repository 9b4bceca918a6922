// sim/sequence.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"

	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/seqopt"
	"github.com/atcflow/atcflow/util"
)

// EmergencyBonus is subtracted by WeightedWaitFitness for each position
// an emergency flight is ahead of the end of the sequence.
const EmergencyBonus = 5

// SequenceFlight is what a sequence fitness function knows about each
// flight.
type SequenceFlight struct {
	Priority  float32
	Emergency bool
}

// WeightedWaitFitness returns a cost function over sequences that
// charges each flight its position weighted by its priority, so urgent
// flights are cheapest at the front, and rewards emergencies for being
// early. Lower is better.
func WeightedWaitFitness(flights map[FlightID]SequenceFlight) func([]FlightID) float64 {
	return func(seq []FlightID) float64 {
		var cost float64
		n := len(seq)
		for i, id := range seq {
			f := flights[id]
			cost += float64(i) * float64(f.Priority)
			if f.Emergency {
				cost -= EmergencyBonus * float64(n-i)
			}
		}
		return cost
	}
}

// InverseWeightedWaitFitness charges each flight its position weighted by
// one minus its priority and applies the same emergency bonus as
// WeightedWaitFitness. It favors putting low-priority flights late rather
// than urgent ones early.
func InverseWeightedWaitFitness(flights map[FlightID]SequenceFlight) func([]FlightID) float64 {
	return func(seq []FlightID) float64 {
		var cost float64
		n := len(seq)
		for i, id := range seq {
			f := flights[id]
			cost += float64(i) * float64(1-f.Priority)
			if f.Emergency {
				cost -= EmergencyBonus * float64(n-i)
			}
		}
		return cost
	}
}

// OptimizeSequence returns a landing order for the given flights, or for
// every airborne flight if ids is empty. Each id may appear only once. A nil fitness selects
// WeightedWaitFitness and a zero params the configured ones. The search
// runs without holding the engine lock.
func (s *Sim) OptimizeSequence(ids []FlightID, fitness func([]FlightID) float64,
	params seqopt.Params) ([]FlightID, error) {
	s.mu.Lock(s.lg)
	if len(ids) == 0 {
		ids = util.FilterSlice(s.order, func(id FlightID) bool { return s.flights[id].State.Airborne() })
	}
	info := make(map[FlightID]SequenceFlight, len(ids))
	for _, id := range ids {
		f, ok := s.flights[id]
		if !ok {
			s.mu.Unlock(s.lg)
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownFlight)
		}
		if _, dup := info[id]; dup {
			s.mu.Unlock(s.lg)
			return nil, fmt.Errorf("%s: %w", id, ErrDuplicateFlight)
		}
		info[id] = SequenceFlight{Priority: f.Priority, Emergency: f.Emergency}
	}
	if params == (seqopt.Params{}) {
		params = s.cfg.Sequencing
	}
	r := rand.New(int64(s.rand.Uint32()))
	s.mu.Unlock(s.lg)

	if fitness == nil {
		fitness = WeightedWaitFitness(info)
	}
	best, stats := seqopt.OptimizeStats(ids, fitness, params, r)
	if n := len(stats.Best); n > 0 {
		s.lg.Info("sequence optimized", slog.Int("flights", len(ids)),
			slog.Float64("best", stats.Best[n-1]), slog.Int("evaluations", stats.Evaluations))
	}
	return best, nil
}
