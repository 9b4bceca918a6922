// sched/errors.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulingFailure is returned when no assignment satisfies every
	// separation constraint. It is not fatal: callers retry with the next
	// batch.
	ErrSchedulingFailure = errors.New("no consistent schedule")

	// ErrSearchExhausted is returned when the search hits its step limit
	// before finding a schedule. It wraps ErrSchedulingFailure.
	ErrSearchExhausted = fmt.Errorf("search step limit reached: %w", ErrSchedulingFailure)
)
