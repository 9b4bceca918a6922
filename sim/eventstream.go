// sim/eventstream.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/atcflow/atcflow/log"
)

// EventStream is a simple pub/sub stream: anything may post, and each
// subscriber sees every event posted after it subscribed, in order.
type EventStream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*EventsSubscription]struct{}
	warnedLong    bool
	lg            *log.Logger
}

type EventsSubscription struct {
	stream *EventStream
	// offset is the index in the stream's events up to which the
	// subscriber has consumed.
	offset int
	source string
}

func (e *EventsSubscription) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("offset", e.offset), slog.String("source", e.source))
}

func NewEventStream(lg *log.Logger) *EventStream {
	return &EventStream{
		subscriptions: make(map[*EventsSubscription]struct{}),
		lg:            lg,
	}
}

// Subscribe registers a new subscriber.
func (e *EventStream) Subscribe() *EventsSubscription {
	// Record the callsite so that subscribers that stop consuming can be
	// tracked down.
	_, fn, line, _ := runtime.Caller(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &EventsSubscription{
		stream: e,
		offset: len(e.events),
		source: fmt.Sprintf("%s:%d", fn, line),
	}
	e.subscriptions[sub] = struct{}{}
	return sub
}

func (e *EventsSubscription) Unsubscribe() {
	s := e.stream
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, e)
	e.stream = nil
}

// Post adds an event to the stream. Events posted while nobody is
// subscribed are dropped.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subscriptions) == 0 {
		return
	}
	e.events = append(e.events, event)

	if len(e.events) > 1000 && !e.warnedLong {
		// Most likely a subscriber has stopped calling Get.
		e.lg.Warn("long event stream", slog.Int("length", len(e.events)))
		e.warnedLong = true
	}
}

// Get returns the events posted since the previous call.
func (e *EventsSubscription) Get() []Event {
	s := e.stream
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events := slices.Clone(s.events[e.offset:])
	e.offset = len(s.events)
	s.compact()
	return events
}

// compact drops events that every subscriber has seen.
func (e *EventStream) compact() {
	minOffset := len(e.events)
	for sub := range e.subscriptions {
		minOffset = min(minOffset, sub.offset)
	}

	if minOffset > cap(e.events)/2 {
		n := copy(e.events, e.events[minOffset:])
		e.events = e.events[:n]
		for sub := range e.subscriptions {
			sub.offset -= minOffset
		}
		e.warnedLong = false
	}
}

func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slog.GroupValue(slog.Int("len", len(e.events)), slog.Int("cap", cap(e.events)),
		slog.Int("subscriptions", len(e.subscriptions)))
}

///////////////////////////////////////////////////////////////////////////

type EventType int

const (
	SpawnEvent EventType = iota
	SpawnRejectedEvent
	DecisionRequestEvent
	DecisionIgnoredEvent
	StateChangeEvent
	SchedulingFailureEvent
	DegradedParkingEvent
	RemovedEvent
	NumEventTypes
)

func (t EventType) String() string {
	return [...]string{"Spawn", "SpawnRejected", "DecisionRequest", "DecisionIgnored",
		"StateChange", "SchedulingFailure", "DegradedParking", "Removed"}[t]
}

type Event struct {
	Type      EventType
	Time      time.Duration
	Flight    FlightID    `msgpack:",omitempty"`
	Runway    string      `msgpack:",omitempty"`
	From, To  FlightState `msgpack:",omitempty"`
	Outcome   Outcome     `msgpack:",omitempty"`
	RequestID string      `msgpack:",omitempty"`
	Message   string      `msgpack:",omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case StateChangeEvent:
		return fmt.Sprintf("%s %s: %s -> %s", e.Time, e.Flight, e.From, e.To)
	case DecisionRequestEvent:
		return fmt.Sprintf("%s %s: requesting %s (request %s)", e.Time, e.Flight, e.Runway, e.RequestID)
	default:
		s := fmt.Sprintf("%s %s", e.Time, e.Type)
		if e.Flight != "" {
			s += " " + string(e.Flight)
		}
		if e.Message != "" {
			s += ": " + e.Message
		}
		return s
	}
}

func (e Event) LogValue() slog.Value {
	items := []slog.Attr{slog.String("type", e.Type.String()), slog.Duration("time", e.Time)}
	if e.Flight != "" {
		items = append(items, slog.String("flight", string(e.Flight)))
	}
	if e.Type == StateChangeEvent {
		items = append(items, slog.String("from", e.From.String()), slog.String("to", e.To.String()))
	}
	if e.Message != "" {
		items = append(items, slog.String("message", e.Message))
	}
	return slog.GroupValue(items...)
}
