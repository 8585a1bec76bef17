// Copyright 2018-2026 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package logger creates the root logger for the daemon and its services.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Mode is the format mode for the logger output.
type Mode string

const (
	// JSONMode outputs one JSON document per log line.
	JSONMode Mode = "json"
	// ConsoleMode outputs lines for human consumption.
	ConsoleMode Mode = "console"
)

// Options collects the parameters for building a logger.
type Options struct {
	Level  string
	Writer io.Writer
	Mode   Mode
}

// Option customizes the logger options.
type Option func(o *Options)

// WithLevel sets the minimum level, one of the zerolog level strings.
func WithLevel(level string) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithWriter sets the output writer and format mode.
func WithWriter(w io.Writer, m Mode) Option {
	return func(o *Options) {
		o.Writer = w
		o.Mode = m
	}
}

// New returns a logger built from the given options. An unparsable level
// falls back to info rather than failing, so a daemon with a typoed config
// still logs. The level is applied process-wide, which is what lets the
// daemon change it at runtime without rebuilding every derived logger.
func New(opts ...Option) *zerolog.Logger {
	o := &Options{Level: "info", Writer: os.Stderr, Mode: ConsoleMode}
	for _, opt := range opts {
		opt(o)
	}

	zerolog.SetGlobalLevel(ParseLevel(o.Level))

	w := o.Writer
	if o.Mode == ConsoleMode {
		w = zerolog.ConsoleWriter{Out: w}
	}

	zl := zerolog.New(w).With().Timestamp().Logger()
	return &zl
}

// ParseLevel maps a level name onto a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return lvl
}
