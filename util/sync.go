// util/sync.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"log/slog"
	gomath "math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atcflow/atcflow/log"

	"github.com/shirou/gopsutil/v3/cpu"
)

///////////////////////////////////////////////////////////////////////////
// LoggingMutex

// heldMutexes counts LoggingMutexes currently locked in the process.
var heldMutexes atomic.Int32

// LoggingMutex is a sync.Mutex that records where it was acquired and
// reports on the process's health when it can't be acquired promptly.
type LoggingMutex struct {
	sync.Mutex
	acq      time.Time
	acqStack []log.StackFrame
}

// stallTimeout is how long Lock waits before reporting a possible deadlock.
func stallTimeout() time.Duration {
	if log.RaceEnabled {
		return 30 * time.Second
	}
	return 10 * time.Second
}

func (l *LoggingMutex) Lock(lg *log.Logger) {
	start := time.Now()

	if !l.Mutex.TryLock() {
		locked := make(chan struct{})
		go func() {
			l.Mutex.Lock()
			close(locked)
		}()

		select {
		case <-locked:
		case <-time.After(stallTimeout()):
			lg.Error("mutex acquisition stalled", slog.Any("mutex", l),
				slog.Int("held_mutexes", int(heldMutexes.Load())))
			reportProcessHealth(lg)
			<-locked
		}
	}

	heldMutexes.Add(1)
	l.acq = time.Now()
	l.acqStack = log.Callstack(l.acqStack)
	if w := l.acq.Sub(start); w > time.Second {
		lg.Warn("slow mutex acquisition", slog.Any("mutex", l), slog.Duration("wait", w))
	}
}

func (l *LoggingMutex) Unlock(lg *log.Logger) {
	if l.acq.IsZero() {
		lg.Error("unlock of unheld mutex")
	} else {
		heldMutexes.Add(-1)
		if d := time.Since(l.acq); d > time.Second {
			lg.Warn("mutex held too long", slog.Any("mutex", l), slog.Duration("held", d))
		}
	}

	l.acq = time.Time{}
	l.acqStack = l.acqStack[:0]
	l.Mutex.Unlock()
}

func (l *LoggingMutex) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("acquired", l.acq),
		slog.Duration("held", time.Since(l.acq)),
		slog.Any("stack", l.acqStack))
}

// reportProcessHealth logs CPU load, memory and goroutine counts.
func reportProcessHealth(lg *log.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	attrs := []any{
		slog.Uint64("alloc_mb", m.Alloc>>20),
		slog.Uint64("sys_mb", m.Sys>>20),
		slog.Int("goroutines", runtime.NumGoroutine()),
	}
	if usage, err := cpu.Percent(time.Second, false); err == nil && len(usage) > 0 {
		attrs = append(attrs, slog.Int("cpu_pct", int(gomath.Round(usage[0]))))
	}
	lg.Error("process health", attrs...)
}
