// log/stack.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

const maxStackDepth = 16

// StackFrame is one entry of a call stack attached to log records.
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) String() string {
	return fmt.Sprintf("%s:%d:%s", f.File, f.Line, f.Function)
}

// Callstack returns the stack of the caller's caller, reusing fr's
// storage if it is large enough. Frames above main.main are dropped.
func Callstack(fr []StackFrame) []StackFrame {
	return callstack(fr, 4)
}

// callstack skips skip frames, counting runtime.Callers and itself.
func callstack(fr []StackFrame, skip int) []StackFrame {
	pcs := make([]uintptr, maxStackDepth)
	pcs = pcs[:runtime.Callers(skip, pcs)]

	fr = fr[:0]
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		fn := strings.TrimPrefix(frame.Function, "github.com/atcflow/atcflow/")
		fr = append(fr, StackFrame{
			File:     filepath.Base(frame.File),
			Line:     frame.Line,
			Function: strings.TrimPrefix(fn, "main."),
		})
		if !more || frame.Function == "main.main" {
			break
		}
	}
	return fr
}
