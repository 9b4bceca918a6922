// sim/decision.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Outcome is the resolution of a landing clearance request.
type Outcome int

const (
	Hold Outcome = iota
	Grant
	Divert
	// Cancel is what an operator gets by dismissing a request; it is
	// treated as Hold.
	Cancel
)

func (o Outcome) String() string {
	switch o {
	case Grant:
		return "grant"
	case Hold:
		return "hold"
	case Divert:
		return "divert"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grant", "g", "yes", "y":
		return Grant, nil
	case "hold", "h", "no", "n":
		return Hold, nil
	case "divert", "d":
		return Divert, nil
	case "cancel", "c":
		return Cancel, nil
	default:
		return Hold, fmt.Errorf("%q: unknown decision outcome", s)
	}
}

// DecisionRequest is issued each time a flight enters Requesting.
type DecisionRequest struct {
	RequestID       string
	Flight          FlightID
	Runway          string
	Priority        float32
	FuelPct         float32
	WeatherSeverity float32
	Emergency       bool
	Time            time.Duration
}

func (r DecisionRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("request_id", r.RequestID),
		slog.String("flight", string(r.Flight)),
		slog.String("runway", r.Runway),
		slog.Float64("priority", float64(r.Priority)),
		slog.Bool("emergency", r.Emergency))
}

// DecisionAuthority resolves landing clearance requests. RequestDecision
// is called from the tick loop and must not block; resolve may be called
// before it returns or at any later time, from any goroutine. Only the
// first call to resolve has any effect.
type DecisionAuthority interface {
	RequestDecision(req DecisionRequest, resolve func(Outcome))
}

// decisionCanceler is implemented by authorities that keep per-request
// state; the engine calls CancelDecision when a request goes stale.
type decisionCanceler interface {
	CancelDecision(requestID string)
}

// AutomaticPolicy grants, holds or diverts based on the flight's priority
// alone.
type AutomaticPolicy struct {
	GrantThreshold  float32
	DivertThreshold float32
}

func (p AutomaticPolicy) Decide(priority float32) Outcome {
	if priority >= p.GrantThreshold {
		return Grant
	} else if priority < p.DivertThreshold {
		return Divert
	}
	return Hold
}

func (p AutomaticPolicy) RequestDecision(req DecisionRequest, resolve func(Outcome)) {
	resolve(p.Decide(req.Priority))
}

// InteractiveAuthority hands requests to an external consumer through a
// channel and waits for Resolve to be called with the outcome.
type InteractiveAuthority struct {
	mu       sync.Mutex
	requests chan DecisionRequest
	pending  map[string]func(Outcome)
}

// NewInteractiveAuthority returns an authority whose request channel
// holds up to buffer unconsumed requests. Requests that arrive while the
// channel is full are resolved as Hold straight away.
func NewInteractiveAuthority(buffer int) *InteractiveAuthority {
	return &InteractiveAuthority{
		requests: make(chan DecisionRequest, max(buffer, 1)),
		pending:  make(map[string]func(Outcome)),
	}
}

func (a *InteractiveAuthority) Requests() <-chan DecisionRequest {
	return a.requests
}

func (a *InteractiveAuthority) RequestDecision(req DecisionRequest, resolve func(Outcome)) {
	a.mu.Lock()
	a.pending[req.RequestID] = resolve
	a.mu.Unlock()

	select {
	case a.requests <- req:
	default:
		a.mu.Lock()
		delete(a.pending, req.RequestID)
		a.mu.Unlock()
		resolve(Hold)
	}
}

// Resolve delivers the outcome for a request previously read from
// Requests.
func (a *InteractiveAuthority) Resolve(requestID string, o Outcome) error {
	a.mu.Lock()
	resolve, ok := a.pending[requestID]
	delete(a.pending, requestID)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", requestID, ErrNoPendingDecision)
	}
	// Called without a.mu held: resolve may need the engine's lock, and
	// the engine calls CancelDecision while holding it.
	resolve(o)
	return nil
}

func (a *InteractiveAuthority) CancelDecision(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, requestID)
}

// Pending returns the number of unresolved requests.
func (a *InteractiveAuthority) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
