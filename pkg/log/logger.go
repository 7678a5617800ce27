// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the daemon's bootstrap logger: a small
// leveled-printf interface over the standard library logger, with an
// optional rate-limiting decorator for noisy call sites (see
// ratelimit.go). Components inside pkg/tiermem do not import this
// package directly; they accept anything satisfying tiermem.Logger, and
// cmd/tiermemd wires one of these in at startup.
package log

import (
	stdlog "log"
	"os"
)

// Logger is the leveled logging surface the daemon entry point uses.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Fatal(format string, args ...interface{})
}

type stdLogger struct {
	*stdlog.Logger
	debug bool
}

// NewStdLogger wraps the standard library logger, writing to stderr with
// no extra prefix decoration beyond the level tag.
func NewStdLogger(debug bool) Logger {
	return &stdLogger{Logger: stdlog.New(os.Stderr, "", stdlog.LstdFlags), debug: debug}
}

func (l *stdLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.Printf("DEBUG "+format, args...)
	}
}

func (l *stdLogger) Info(format string, args ...interface{})  { l.Printf("INFO "+format, args...) }
func (l *stdLogger) Warn(format string, args ...interface{})  { l.Printf("WARN "+format, args...) }
func (l *stdLogger) Error(format string, args ...interface{}) { l.Printf("ERROR "+format, args...) }
func (l *stdLogger) Fatal(format string, args ...interface{}) { l.Fatalf("FATAL "+format, args...) }
