// sim/export.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/atcflow/atcflow/util"

	"github.com/davecgh/go-spew/spew"
)

var scheduleHeader = []string{"flight", "runway", "gate", "slot"}

// ScheduleEntry is one row of the exported schedule.
type ScheduleEntry struct {
	Flight FlightID `json:"flight" yaml:"flight"`
	Runway string   `json:"runway" yaml:"runway"`
	Gate   string   `json:"gate" yaml:"gate"`
	Slot   int      `json:"slot" yaml:"slot"`
}

// ExportSchedule returns the assignment of every flight that has one,
// ordered by slot and then flight id.
func (s *Sim) ExportSchedule() []ScheduleEntry {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	var entries []ScheduleEntry
	for _, f := range s.flights {
		if a := f.Assigned; a != nil {
			entries = append(entries, ScheduleEntry{Flight: f.ID, Runway: a.Runway, Gate: a.Gate, Slot: a.Slot})
		}
	}
	slices.SortFunc(entries, func(a, b ScheduleEntry) int {
		return cmp.Or(cmp.Compare(a.Slot, b.Slot), cmp.Compare(a.Flight, b.Flight))
	})
	return entries
}

func WriteScheduleCSV(w io.Writer, entries []ScheduleEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scheduleHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{string(e.Flight), e.Runway, e.Gate, strconv.Itoa(e.Slot)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadScheduleCSV parses a schedule written by WriteScheduleCSV.
func ReadScheduleCSV(r io.Reader) ([]ScheduleEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(scheduleHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("schedule: missing header")
	} else if err != nil {
		return nil, err
	}
	if !slices.Equal(header, scheduleHeader) {
		return nil, fmt.Errorf("schedule: unexpected header %q", strings.Join(header, ","))
	}

	var entries []ScheduleEntry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return entries, nil
		} else if err != nil {
			return nil, err
		}
		slot, err := strconv.Atoi(rec[3])
		if err != nil {
			line, _ := cr.FieldPos(3)
			return nil, fmt.Errorf("schedule: line %d: bad slot: %w", line, err)
		}
		entries = append(entries, ScheduleEntry{Flight: FlightID(rec[0]), Runway: rec[1], Gate: rec[2], Slot: slot})
	}
}

// SaveSnapshot writes a snapshot of the engine to path.
func (s *Sim) SaveSnapshot(path string) error {
	snap := s.Snapshot()
	return util.StoreObject(path, &snap)
}

func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	err := util.RetrieveObject(path, &snap)
	return snap, err
}

// FlightDebugString returns a full dump of the flight's state.
func (s *Sim) FlightDebugString(id FlightID) (string, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	f, ok := s.flights[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrUnknownFlight)
	}
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	return cfg.Sdump(f), nil
}
