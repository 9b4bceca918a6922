// log/log.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
	LogFile string
	LogDir  string
	Start   time.Time
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "%q: invalid log level; using info\n", level)
		return slog.LevelInfo
	}
	return l
}

// New returns a Logger that writes JSON records to a rotating log file in
// dir. Headless runs (scenario batches, the CLI's run command) keep more
// history and compress old files.
func New(headless bool, level string, dir string) *Logger {
	if dir == "" {
		if headless {
			dir = "atcflow-logs"
		} else {
			var err error
			dir, err = os.UserConfigDir()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Unable to find user config dir: %v", err)
				dir = "."
			}
			dir = filepath.Join(dir, "atcflow")
		}
	}

	var w *lumberjack.Logger
	if headless {
		w = &lumberjack.Logger{
			Filename: filepath.Join(dir, "slog"),
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
	} else {
		w = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "atcflow.slog"),
			MaxSize:    32, // MB
			MaxBackups: 1,
		}
		if level == "debug" {
			w.MaxSize = 512
		}
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	l := &Logger{
		Logger:  slog.New(h),
		LogFile: w.Filename,
		LogDir:  dir,
		Start:   time.Now(),
	}

	attrs := []any{
		slog.Time("start", l.Start),
		slog.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
		slog.Int("cpus", runtime.NumCPU()),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		attrs = append(attrs, slog.String("go", bi.GoVersion), slog.String("module", bi.Main.Version))
	}
	l.Info("logging started", attrs...)

	return l
}

// NewWriter returns a Logger that writes text records to w; it's used by
// tests and by the command-line tools when logging to stderr.
func NewWriter(w io.Writer, level string) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{
		Logger: slog.New(h),
		Start:  time.Now(),
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, "error")
}

// The leveled methods below attach the caller's stack to each record. A
// nil *Logger is allowed: debug and info records are then dropped while
// warnings and errors go to the default slog logger.

func (l *Logger) emit(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if l == nil {
		if level < slog.LevelWarn {
			return
		}
		args = append([]any{slog.Any("callstack", callstack(nil, 4))}, args...)
		slog.Log(ctx, level, msg, args...)
		return
	}
	if !l.Logger.Enabled(ctx, level) {
		return
	}
	args = append([]any{slog.Any("callstack", callstack(nil, 4))}, args...)
	l.Logger.Log(ctx, level, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args) }

// Debugf and friends log a printf-formatted message with no attributes.
func (l *Logger) Debugf(msg string, args ...any) {
	l.emit(slog.LevelDebug, fmt.Sprintf(msg, args...), nil)
}

func (l *Logger) Infof(msg string, args ...any) {
	l.emit(slog.LevelInfo, fmt.Sprintf(msg, args...), nil)
}

func (l *Logger) Errorf(msg string, args ...any) {
	l.emit(slog.LevelError, fmt.Sprintf(msg, args...), nil)
}

func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		Logger:  l.Logger.With(args...),
		LogFile: l.LogFile,
		LogDir:  l.LogDir,
		Start:   l.Start,
	}
}

// CatchAndReportCrash is meant to be deferred; it recovers a panic, logs
// it along with the stack, and saves a crash report next to the log file
// when there is one. The recovered value is returned so that callers can
// decide whether to keep going.
func (l *Logger) CatchAndReportCrash() any {
	err := recover()
	if err != nil {
		report := fmt.Sprintf("Crashed: %v\n", err)
		report += "Sys: " + runtime.GOARCH + "/" + runtime.GOOS + "\n"
		report += string(debug.Stack())

		l.Errorf("Crashed: %v", err)
		if l != nil && l.LogDir != "" {
			ts := strings.ReplaceAll(time.Now().Format(time.RFC3339), ":", "-")
			fn := filepath.Join(l.LogDir, "crash-"+ts+".txt")
			_ = os.WriteFile(fn, []byte(report), 0o600)
		}
	}
	return err
}
