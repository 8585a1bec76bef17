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

// Package grace ties the daemon to its pid file and its signals: INT and
// TERM drain the server under a deadline, QUIT cuts connections off, HUP
// runs the configured reload function.
package grace

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Server is the part of the HTTP server the watcher drives.
type Server interface {
	Stop() error
	GracefulStop() error
	Network() string
	Address() string
}

// Watcher owns the pid file and the signal loop of the daemon process.
type Watcher struct {
	log      zerolog.Logger
	pidFile  string
	srv      Server
	reload   func()
	deadline time.Duration
}

// Option configures the Watcher.
type Option func(w *Watcher)

// WithLogger adds a logger to the Watcher.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// WithPIDFile specifies the pid file to use.
func WithPIDFile(fn string) Option {
	return func(w *Watcher) {
		w.pidFile = fn
	}
}

// WithReload sets the function run when SIGHUP arrives.
func WithReload(f func()) Option {
	return func(w *Watcher) {
		w.reload = f
	}
}

// NewWatcher creates a Watcher.
func NewWatcher(opts ...Option) *Watcher {
	w := &Watcher{
		log:      zerolog.Nop(),
		pidFile:  path.Join(os.TempDir(), "swauthd.pid"),
		deadline: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PIDFile returns the pid file the watcher manages.
func (w *Watcher) PIDFile() string {
	return w.pidFile
}

// WritePID claims the pid file. It refuses to start over a pid file whose
// process is still alive.
func (w *Watcher) WritePID() error {
	if pid, err := w.readPID(); err == nil {
		if process, err := os.FindProcess(pid); err == nil {
			if err := process.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid already running: %d", pid)
			}
		}
		w.log.Warn().Msgf("overwriting stale pid file of pid:%d", pid)
	}
	if err := os.WriteFile(w.pidFile, []byte(strconv.Itoa(os.Getpid())), 0664); err != nil {
		return err
	}
	w.log.Info().Msgf("pid file written to %s", w.pidFile)
	return nil
}

// Exit exits the current process cleaning up the pid file.
func (w *Watcher) Exit(errc int) {
	if err := w.clean(); err != nil {
		w.log.Warn().Err(err).Msg("error removing pid file")
	} else {
		w.log.Info().Msgf("pid file %q removed", w.pidFile)
	}
	os.Exit(errc)
}

// clean removes the pid file, but only when it still holds our own pid.
func (w *Watcher) clean() error {
	pid, err := w.readPID()
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return fmt.Errorf("pid:%d in pid file is not ours, leaving it alone", pid)
	}
	return os.Remove(w.pidFile)
}

func (w *Watcher) readPID() (int, error) {
	data, err := os.ReadFile(w.pidFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// GetProcessFromFile reads the pid file and returns the running process.
func GetProcessFromFile(pfile string) (*os.Process, error) {
	data, err := os.ReadFile(pfile)
	if err != nil {
		return nil, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return nil, err
	}
	return os.FindProcess(pid)
}

// Listen opens the listener for the server and registers the server with
// the signal loop.
func (w *Watcher) Listen(s Server) (net.Listener, error) {
	w.srv = s
	return net.Listen(s.Network(), s.Address())
}

// TrapSignals runs the signal loop until the daemon exits.
func (w *Watcher) TrapSignals() {
	signalCh := make(chan os.Signal, 1024)
	signal.Notify(signalCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for s := range signalCh {
		w.log.Info().Msgf("%v signal received", s)

		switch s {
		case syscall.SIGHUP:
			if w.reload != nil {
				w.reload()
			}
		case syscall.SIGINT, syscall.SIGTERM:
			w.log.Info().Msgf("draining active connections with a deadline of %s", w.deadline)
			go func() {
				time.Sleep(w.deadline)
				w.log.Info().Msg("deadline reached before connections drained, cutting them off")
				if err := w.srv.Stop(); err != nil {
					w.log.Error().Err(err).Msg("error stopping server")
				}
				w.Exit(1)
			}()
			if err := w.srv.GracefulStop(); err != nil {
				w.log.Error().Err(err).Msg("error stopping server")
				w.Exit(1)
			}
			w.log.Info().Msgf("%s:%s gracefully closed", w.srv.Network(), w.srv.Address())
			w.Exit(0)
		case syscall.SIGQUIT:
			w.log.Info().Msg("hard shutdown, aborting active connections")
			if err := w.srv.Stop(); err != nil {
				w.log.Error().Err(err).Msg("error stopping server")
			}
			w.Exit(0)
		}
	}
}
