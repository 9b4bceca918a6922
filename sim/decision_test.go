// sim/decision_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAutomaticPolicy(t *testing.T) {
	p := AutomaticPolicy{GrantThreshold: 0.55, DivertThreshold: 0.12}
	for _, c := range []struct {
		priority float32
		want     Outcome
	}{
		{1, Grant}, {0.55, Grant}, {0.549, Hold}, {0.12, Hold}, {0.119, Divert}, {0, Divert},
	} {
		if got := p.Decide(c.priority); got != c.want {
			t.Errorf("Decide(%v) = %s, want %s", c.priority, got, c.want)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	for in, want := range map[string]Outcome{"grant": Grant, " HOLD ": Hold, "d": Divert, "Cancel": Cancel} {
		if got, err := ParseOutcome(in); err != nil || got != want {
			t.Errorf("ParseOutcome(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseOutcome("land now"); err == nil {
		t.Error("expected an error for an unknown outcome")
	}
}

// requestingSim returns a sim with one flight that has just asked for
// landing clearance through an interactive authority.
func requestingSim(t *testing.T) (*Sim, *InteractiveAuthority, FlightID, DecisionRequest) {
	t.Helper()
	ia := NewInteractiveAuthority(4)
	s := makeTestSim(t, DefaultAirportConfig(), Options{Authority: ia})
	id := mustSpawn(t, s, FlightSpec{FuelPct: 50, PreferredRunway: "RWY1"})

	tickUntil(t, s, 1000, func(snap Snapshot) bool { return flightState(id)(snap) == Requesting })
	select {
	case req := <-ia.Requests():
		if req.Flight != id || req.Runway != "RWY1" || req.RequestID == "" {
			t.Fatalf("unexpected request %+v", req)
		}
		return s, ia, id, req
	default:
		t.Fatal("no request posted")
	}
	return nil, nil, "", DecisionRequest{}
}

func TestInteractiveGrant(t *testing.T) {
	s, ia, id, req := requestingSim(t)

	// The engine keeps ticking while the decision is outstanding.
	for range 10 {
		s.Tick(testDt)
	}
	if st := flightState(id)(s.Snapshot()); st != Requesting {
		t.Fatalf("state %s while awaiting a decision, want Requesting", st)
	}

	// Resolve from another goroutine, as a console would.
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = ia.Resolve(req.RequestID, Grant)
	}()
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if st := flightState(id)(snap); st != Landing {
		t.Errorf("state %s after grant, want Landing", st)
	}
	if want := snap.Time + 6*time.Second; snap.Runways[0].BusyUntil != want {
		t.Errorf("RWY1 busy until %v, want %v", snap.Runways[0].BusyUntil, want)
	}
	if ia.Pending() != 0 {
		t.Errorf("%d requests still pending", ia.Pending())
	}
	if err := ia.Resolve(req.RequestID, Grant); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("resolving twice: got %v, want ErrNoPendingDecision", err)
	}
}

func TestInteractiveCancelHolds(t *testing.T) {
	s, ia, id, req := requestingSim(t)
	if err := ia.Resolve(req.RequestID, Cancel); err != nil {
		t.Fatal(err)
	}
	if st := flightState(id)(s.Snapshot()); st != Holding {
		t.Errorf("state %s after cancel, want Holding", st)
	}
}

func TestResolveDecision(t *testing.T) {
	s, ia, id, req := requestingSim(t)

	if err := s.ResolveDecision("F1", Grant); !errors.Is(err, ErrUnknownFlight) {
		t.Errorf("got %v, want ErrUnknownFlight", err)
	}
	if err := s.ResolveDecision(id, Divert); err != nil {
		t.Fatal(err)
	}
	if st := flightState(id)(s.Snapshot()); st != Diverted {
		t.Errorf("state %s, want Diverted", st)
	}
	if err := s.ResolveDecision(id, Grant); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("got %v, want ErrNoPendingDecision", err)
	}

	// The authority no longer holds the request once the engine resolved
	// it directly.
	if err := ia.Resolve(req.RequestID, Grant); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("got %v, want ErrNoPendingDecision", err)
	}
	if st := flightState(id)(s.Snapshot()); st != Diverted {
		t.Errorf("state %s after a stale grant, want Diverted", st)
	}
}

// capturingAuthority keeps every resolve callback so tests can call them
// whenever they like.
type capturingAuthority struct {
	mu       sync.Mutex
	requests []DecisionRequest
	resolves []func(Outcome)
}

func (c *capturingAuthority) RequestDecision(req DecisionRequest, resolve func(Outcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	c.resolves = append(c.resolves, resolve)
}

func TestStaleResolutionIgnored(t *testing.T) {
	ca := &capturingAuthority{}
	s := makeTestSim(t, DefaultAirportConfig(), Options{Authority: ca})
	sub := s.Subscribe()
	id := mustSpawn(t, s, FlightSpec{PreferredRunway: "RWY1"})

	tickUntil(t, s, 1000, func(snap Snapshot) bool { return flightState(id)(snap) == Requesting })
	stale := ca.resolves[0]

	// Hold, then wait for the flight to ask again.
	if err := s.ResolveDecision(id, Hold); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, s, 5000, func(snap Snapshot) bool { return flightState(id)(snap) == Requesting })
	if len(ca.requests) != 2 || ca.requests[0].RequestID == ca.requests[1].RequestID {
		t.Fatalf("requests %+v: want two with distinct ids", ca.requests)
	}

	// The first request's grant arrives late and must not clear the
	// flight.
	stale(Grant)
	if st := flightState(id)(s.Snapshot()); st != Requesting {
		t.Fatalf("state %s after a stale grant, want Requesting", st)
	}
	ignored := false
	for _, e := range sub.Get() {
		ignored = ignored || (e.Type == DecisionIgnoredEvent && e.RequestID == ca.requests[0].RequestID)
	}
	if !ignored {
		t.Error("no DecisionIgnored event for the stale resolution")
	}

	// Only the first call of a resolve callback counts.
	current := ca.resolves[1]
	current(Grant)
	current(Divert)
	if st := flightState(id)(s.Snapshot()); st != Landing {
		t.Errorf("state %s, want Landing", st)
	}
}

func TestRequestingFallsBackWhenRunwayBusy(t *testing.T) {
	ca := &capturingAuthority{}
	s := makeTestSim(t, DefaultAirportConfig(), Options{Authority: ca})
	id := mustSpawn(t, s, FlightSpec{PreferredRunway: "RWY1"})
	tickUntil(t, s, 1000, func(snap Snapshot) bool { return flightState(id)(snap) == Requesting })

	if err := s.CloseRunway("RWY1", time.Minute); err != nil {
		t.Fatal(err)
	}
	s.Tick(testDt)
	if st := flightState(id)(s.Snapshot()); st != Holding {
		t.Fatalf("state %s with the runway closed, want Holding", st)
	}

	// A grant for the abandoned request has no effect.
	ca.resolves[0](Grant)
	if st := flightState(id)(s.Snapshot()); st != Holding {
		t.Errorf("state %s, want Holding", st)
	}
}

func TestGrantOnBusyRunwayHolds(t *testing.T) {
	ca := &capturingAuthority{}
	s := makeTestSim(t, DefaultAirportConfig(), Options{Authority: ca})
	id := mustSpawn(t, s, FlightSpec{PreferredRunway: "RWY1"})
	tickUntil(t, s, 1000, func(snap Snapshot) bool { return flightState(id)(snap) == Requesting })

	// The runway is taken between the request and the grant.
	if err := s.CloseRunway("RWY1", 10*time.Second); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot().Runways[0].BusyUntil
	ca.resolves[0](Grant)

	snap := s.Snapshot()
	if st := flightState(id)(snap); st != Holding {
		t.Errorf("state %s, want Holding", st)
	}
	if snap.Runways[0].BusyUntil != before {
		t.Errorf("busy until changed from %v to %v", before, snap.Runways[0].BusyUntil)
	}
}

func TestInteractiveAuthorityFullChannel(t *testing.T) {
	ia := NewInteractiveAuthority(1)
	var got []Outcome
	resolve := func(o Outcome) { got = append(got, o) }

	ia.RequestDecision(DecisionRequest{RequestID: "a"}, resolve)
	ia.RequestDecision(DecisionRequest{RequestID: "b"}, resolve)

	if len(got) != 1 || got[0] != Hold {
		t.Errorf("overflow resolutions %v, want one Hold", got)
	}
	if ia.Pending() != 1 {
		t.Errorf("pending = %d, want 1", ia.Pending())
	}
	if err := ia.Resolve("b", Grant); !errors.Is(err, ErrNoPendingDecision) {
		t.Errorf("got %v, want ErrNoPendingDecision", err)
	}
	if err := ia.Resolve("a", Grant); err != nil || got[len(got)-1] != Grant {
		t.Errorf("resolve a: %v, outcomes %v", err, got)
	}
}
