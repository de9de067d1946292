// Copyright 2024 The reposit Authors
// This file is part of the reposit library.
//
// The reposit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The reposit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the reposit library. If not, see <http://www.gnu.org/licenses/>.

// Package logutil wraps go.uber.org/zap behind the key-value call
// convention the rest of this codebase's ancestry uses: Info(msg, "k",
// v, "k2", v2, ...). The wrapping keeps call sites terse while giving us
// zap's structured, leveled output and sampling.
package logutil

import (
	"os"

	"github.com/go-stack/stack"
	"go.uber.org/zap"
)

// Logger is a leveled, structured logger keyed by string/value pairs.
type Logger struct {
	z    *zap.SugaredLogger
	with []interface{}
}

// New builds a production-configured Logger writing JSON to stderr.
func New() *Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap's own production config never fails to build against
		// stderr; if it somehow does, fall back to a no-op core rather
		// than panic inside a logging call.
		z = zap.NewNop()
	}
	return &Logger{z: z.Sugar()}
}

// With returns a child logger that always includes the given key/value
// pairs, mirroring the teacher's log.New(ctx...) pattern.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{z: l.z, with: append(append([]interface{}{}, l.with...), kv...)}
}

func (l *Logger) merge(kv []interface{}) []interface{} {
	if len(l.with) == 0 {
		return kv
	}
	return append(append([]interface{}{}, l.with...), kv...)
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, l.merge(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, l.merge(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, l.merge(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, l.merge(kv)...) }

// Crit logs at error level, annotated with the caller's stack frame, and
// exits the process — used only for conditions the teacher's own log.Crit
// treats as unrecoverable corruption of on-disk invariants, never for an
// ordinary I/O failure.
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.z.Errorw(msg, l.merge(append(kv, "caller", stack.Caller(1).String()))...)
	os.Exit(1)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
