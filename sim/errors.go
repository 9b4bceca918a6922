// sim/errors.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
	"fmt"

	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/taxi"
)

var (
	ErrCapacityExceeded       = errors.New("flight capacity exceeded")
	ErrActiveCapacityExceeded = fmt.Errorf("active flight limit reached: %w", ErrCapacityExceeded)
	ErrDuplicateFlight        = errors.New("duplicate flight id")
	ErrInvalidConfig          = errors.New("invalid airport configuration")
	ErrInvalidGraphReference  = errors.New("configuration references a node missing from the taxi graph")
	ErrInvalidState           = errors.New("not possible in the flight's current state")
	ErrNoPendingDecision      = errors.New("no pending landing decision")
	ErrUnknownFlight          = errors.New("unknown flight")
	ErrUnknownRunway          = errors.New("unknown runway")

	// Re-exported so that callers need only import sim.
	ErrSchedulingFailure = sched.ErrSchedulingFailure
	ErrSearchExhausted   = sched.ErrSearchExhausted
	ErrRouteNotFound     = taxi.ErrRouteNotFound
	ErrUnknownNode       = taxi.ErrUnknownNode
)
