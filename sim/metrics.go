// sim/metrics.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/atcflow/atcflow/sim"

type engineMetrics struct {
	spawned       metric.Int64Counter
	rejected      metric.Int64Counter
	decisions     metric.Int64Counter
	completions   metric.Int64Counter
	removals      metric.Int64Counter
	schedFailures metric.Int64Counter
	degraded      metric.Int64Counter
	taxiWaits     metric.Int64Counter
	wait          metric.Float64Histogram
}

func newEngineMetrics(mp metric.MeterProvider) (*engineMetrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	em := &engineMetrics{
		spawned:       counter("atcflow.flights.spawned", "Flights spawned"),
		rejected:      counter("atcflow.flights.rejected", "Spawns rejected by population limits"),
		decisions:     counter("atcflow.decisions", "Landing clearance decisions applied, by outcome"),
		completions:   counter("atcflow.flights.completed", "Flights that completed their gate dwell"),
		removals:      counter("atcflow.flights.removed", "Diverted flights that left the world"),
		schedFailures: counter("atcflow.scheduler.failures", "Scheduling passes that found no assignment"),
		degraded:      counter("atcflow.flights.degraded", "Flights parked without a taxi route"),
		taxiWaits:     counter("atcflow.taxi.waits", "Ticks flights spent waiting on a reserved taxi edge"),
	}
	var err error
	em.wait, err = m.Float64Histogram("atcflow.flights.wait",
		metric.WithDescription("Time from spawn to landing clearance"), metric.WithUnit("s"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return em, nil
}

func (m *engineMetrics) decision(o Outcome) {
	m.decisions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", o.String())))
}

func (m *engineMetrics) granted(runway string, wait time.Duration) {
	m.decision(Grant)
	m.wait.Record(context.Background(), wait.Seconds(),
		metric.WithAttributes(attribute.String("runway", runway)))
}

func (m *engineMetrics) inc(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}
