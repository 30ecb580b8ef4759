// Package nlog is gofilt's logger: leveled, depth-aware, unbuffered (each
// line is written to the output as soon as it is logged).
// Simplified from the teacher's rotating multi-file logger (no CLI flag
// wiring, no on-disk rotation - out of scope per the engine's Non-goals)
// but keeps the severity levels and the reusable-buffer write path.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

var (
	mu          sync.Mutex
	out         io.Writer = os.Stderr
	minSev                = sevInfo
	linePool              = sync.Pool{New: func() any { return new(strings.Builder) }}
)

// SetOutput redirects all log output; nil resets to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// SetVerbosity filters out anything below the given severity ("info",
// "warning", "error").
func SetVerbosity(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch level {
	case "warning":
		minSev = sevWarn
	case "error":
		minSev = sevErr
	default:
		minSev = sevInfo
	}
}

func InfoDepth(depth int, args ...any)    { logln(sevInfo, depth+1, args...) }
func Infoln(args ...any)                  { logln(sevInfo, 1, args...) }
func Infof(format string, args ...any)    { logf(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { logln(sevWarn, 1, args...) }
func Warningf(format string, args ...any) { logf(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { logln(sevErr, depth+1, args...) }
func Errorln(args ...any)                 { logln(sevErr, 1, args...) }
func Errorf(format string, args ...any)   { logf(sevErr, 1, format, args...) }

// Flush is a no-op for the unbuffered stderr/arbitrary-writer path; kept for
// API parity with the teacher so callers that run `defer nlog.Flush(true)`
// at shutdown don't need two logging APIs.
func Flush(...bool) {}

func logln(sev severity, depth int, args ...any) {
	if sev < minSev {
		return
	}
	b := linePool.Get().(*strings.Builder)
	b.Reset()
	writeHdr(b, sev, depth+1)
	fmt.Fprintln(b, args...)
	emit(b)
}

func logf(sev severity, depth int, format string, args ...any) {
	if sev < minSev {
		return
	}
	b := linePool.Get().(*strings.Builder)
	b.Reset()
	writeHdr(b, sev, depth+1)
	fmt.Fprintf(b, format, args...)
	if b.Len() == 0 || b.String()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
	emit(b)
}

func emit(b *strings.Builder) {
	mu.Lock()
	io.WriteString(out, b.String())
	mu.Unlock()
	linePool.Put(b)
}

func writeHdr(b *strings.Builder, sev severity, depth int) {
	_, fn, ln, ok := runtime.Caller(depth + 1)
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
}
