// scenario/run.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scenario

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/sim"

	"go.opentelemetry.io/otel/metric"
)

type RunOptions struct {
	// Authority overrides the automatic decision policy.
	Authority     sim.DecisionAuthority
	MeterProvider metric.MeterProvider
	// Seed is used if the scenario doesn't specify one.
	Seed int64
}

type activeEvent struct {
	Event
	end time.Duration
}

// Run plays the scenario at the given airport until every flight has
// finished or the scenario's time limit is reached.
func Run(ctx context.Context, sc *Scenario, cfg sim.AirportConfig, opts RunOptions, lg *log.Logger) (*Report, error) {
	if err := sc.Validate(&cfg); err != nil {
		return nil, err
	}

	seed := sc.Seed
	if seed == 0 {
		seed = opts.Seed
	}
	s, err := sim.NewSim(cfg, sim.Options{
		Rand:          rand.New(seed),
		Authority:     opts.Authority,
		MeterProvider: opts.MeterProvider,
	}, lg)
	if err != nil {
		return nil, err
	}

	step := orDefault(sc.Step.D(), DefaultStep)
	limit := orDefault(sc.MaxSimTime.D(), DefaultMaxSimTime)
	flights := sc.sortedFlights()
	pending := slices.Clone(sc.Events)
	var active []activeEvent

	wallStart := time.Now()
	var now time.Duration
	for tick := 0; now < limit; tick++ {
		if tick%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		changed := false
		active = slices.DeleteFunc(active, func(ae activeEvent) bool {
			if now < ae.end {
				return false
			}
			lg.Info("scenario event ended", slog.String("kind", string(ae.Kind)), slog.Duration("time", now))
			changed = true
			return true
		})
		pending = slices.DeleteFunc(pending, func(ev Event) bool {
			if now < ev.Start.D() {
				return false
			}
			if ev.Kind == RunwayClosure {
				if err := s.CloseRunway(ev.Runway, ev.Duration.D()); err != nil {
					lg.Warn("runway closure", slog.Any("error", err))
				}
			}
			lg.Info("scenario event started", slog.String("kind", string(ev.Kind)), slog.Duration("time", now))
			active = append(active, activeEvent{Event: ev, end: ev.Start.D() + ev.Duration.D()})
			changed = true
			return true
		})
		if changed {
			applyConditions(s, active)
		}

		for len(flights) > 0 && flights[0].SpawnTime.D() <= now {
			if _, err := s.Spawn(flights[0].Spec()); err != nil {
				if !errors.Is(err, sim.ErrCapacityExceeded) {
					return nil, err
				}
				lg.Info("scenario flight rejected", slog.String("flight", string(flights[0].ID)),
					slog.Any("error", err))
			}
			flights = flights[1:]
		}

		s.Tick(step)
		now += step

		if len(flights) == 0 && s.FlightCount() == 0 {
			break
		}
	}

	r := newReport(sc, &cfg, s.KPIs(), now)
	r.Duration = time.Since(wallStart)
	lg.Info("scenario finished", slog.String("scenario", sc.Name), slog.Any("kpis", s.KPIs()))
	return r, nil
}

// applyConditions sets the weather and taxiway conditions to the worst of
// the active events. Runway closures need nothing here: the engine
// tracks them itself.
func applyConditions(s *sim.Sim, active []activeEvent) {
	severity, factor := float32(-1), float32(1)
	for _, ae := range active {
		switch ae.Kind {
		case WeatherEvent:
			severity = max(severity, ae.Severity)
		case TaxiCongestion:
			factor = max(factor, ae.Factor)
		}
	}
	if severity >= 0 {
		s.SetWeather(severity)
	} else {
		s.ClearWeather()
	}
	s.SetTaxiCongestion(factor)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
