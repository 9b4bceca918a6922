// taxi/errors.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package taxi

import "errors"

var (
	ErrUnknownNode   = errors.New("unknown taxi node")
	ErrRouteNotFound = errors.New("no taxi route found")
)
