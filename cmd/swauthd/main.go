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

// Command swauthd runs the authentication server in front of an object
// store cluster: the auth middleware, the administrative API and the
// storage passthrough, configured from one TOML file.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"syscall"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openstack-archive/swauth/cmd/swauthd/config"
	"github.com/openstack-archive/swauth/cmd/swauthd/grace"
	"github.com/openstack-archive/swauth/pkg/logger"
	"github.com/openstack-archive/swauth/pkg/shttp"
)

var (
	versionFlag = flag.Bool("version", false, "show version and exit")
	testFlag    = flag.Bool("t", false, "test configuration and exit")
	signalFlag  = flag.String("s", "", "send signal to a running process: stop, quit, reload")
	configFlag  = flag.String("c", "/etc/swauthd/swauthd.toml", "set configuration file")
	pidFlag     = flag.String("p", "", "pid file, defaults to swauthd.pid under the system temp directory")

	// Compile time variables initialized with ldflags.
	version, gitCommit, buildDate, goVersion string
)

func init() {
	flag.BoolVar(testFlag, "test-config", false, "test configuration and exit")
}

func main() {
	flag.Parse()

	handleVersionFlag()
	handleSignalFlag()

	handleConfigFlagOrDie()
	logConf := parseLogConfOrDie(config.Get("log"))

	log, err := newLogger(logConf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}

	httpServer, err := getHTTPServer(config.Get("http"), log)
	if err != nil {
		log.Error().Err(err).Msg("error creating http server")
		os.Exit(1)
	}

	if *testFlag {
		fmt.Fprintf(os.Stdout, "configuration file %s test is successful\n", *configFlag)
		os.Exit(0)
	}

	log.Info().Msgf("version=%s commit=%s go=%s running on %d cpus", version, gitCommit, goVersion, runtime.NumCPU())

	watcher, err := handlePIDFlag(log)
	if err != nil {
		log.Error().Err(err).Msg("error creating grace watcher")
		os.Exit(1)
	}

	ln, err := watcher.Listen(httpServer)
	if err != nil {
		log.Error().Err(err).Msg("error opening listener")
		watcher.Exit(1)
	}

	go func() {
		if err := httpServer.Start(ln); err != nil {
			log.Error().Err(err).Msg("error starting the http server")
			watcher.Exit(1)
		}
	}()

	// wait for signals to close the server
	watcher.TrapSignals()
}

func newLogger(conf *logConf) (*zerolog.Logger, error) {
	w, err := getWriter(conf.Output)
	if err != nil {
		return nil, err
	}

	l := logger.New(
		logger.WithLevel(conf.Level),
		logger.WithWriter(w, logger.Mode(conf.Mode)),
	)
	sub := l.With().Int("pid", os.Getpid()).Logger()
	return &sub, nil
}

func getWriter(out string) (io.Writer, error) {
	if out == "stderr" || out == "" {
		return os.Stderr, nil
	}
	if out == "stdout" {
		return os.Stdout, nil
	}
	fd, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "error opening log file")
	}
	return fd, nil
}

func handleVersionFlag() {
	if *versionFlag {
		fmt.Fprintf(os.Stderr, "version=%s commit=%s go_version=%s build_date=%s\n",
			version, gitCommit, goVersion, buildDate)
		os.Exit(1)
	}
}

func handleSignalFlag() {
	if *signalFlag == "" {
		return
	}

	var sig syscall.Signal
	switch *signalFlag {
	case "reload":
		sig = syscall.SIGHUP
	case "quit":
		sig = syscall.SIGQUIT
	case "stop":
		sig = syscall.SIGTERM
	default:
		fmt.Fprintf(os.Stderr, "unknown signal %q\n", *signalFlag)
		os.Exit(1)
	}

	process, err := grace.GetProcessFromFile(pidFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error getting process from pid file: %v\n", err)
		os.Exit(1)
	}

	if err := process.Signal(sig); err != nil {
		fmt.Fprintf(os.Stderr, "error signaling process %d with signal %s\n", process.Pid, sig)
		os.Exit(1)
	}

	os.Exit(0)
}

func handleConfigFlagOrDie() {
	config.SetFile(*configFlag)
	if err := config.Read(); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file %s: %v\n", *configFlag, err)
		os.Exit(1)
	}
}

func handlePIDFlag(l *zerolog.Logger) (*grace.Watcher, error) {
	opts := []grace.Option{
		grace.WithLogger(l.With().Str("pkg", "grace").Logger()),
		grace.WithReload(reloadLogLevel(l)),
	}
	if *pidFlag != "" {
		opts = append(opts, grace.WithPIDFile(*pidFlag))
	}

	w := grace.NewWatcher(opts...)
	if err := w.WritePID(); err != nil {
		return nil, err
	}
	return w, nil
}

func pidFile() string {
	if *pidFlag != "" {
		return *pidFlag
	}
	return grace.NewWatcher().PIDFile()
}

// reloadLogLevel re-reads the configuration and applies its log level to
// the running process.
func reloadLogLevel(l *zerolog.Logger) func() {
	return func() {
		if err := config.Read(); err != nil {
			l.Error().Err(err).Msg("error re-reading config, log level unchanged")
			return
		}
		c := &logConf{}
		if err := mapstructure.Decode(config.Get("log"), c); err != nil {
			l.Error().Err(err).Msg("error decoding log config, log level unchanged")
			return
		}
		lvl := logger.ParseLevel(c.Level)
		zerolog.SetGlobalLevel(lvl)
		l.Info().Msgf("log level set to %s", lvl)
	}
}

func getHTTPServer(conf interface{}, l *zerolog.Logger) (*shttp.Server, error) {
	sub := l.With().Str("pkg", "shttp").Logger()
	s, err := shttp.New(conf, sub)
	if err != nil {
		return nil, errors.Wrap(err, "main: error creating http server")
	}
	return s, nil
}

func parseLogConfOrDie(v interface{}) *logConf {
	c := &logConf{}
	if err := mapstructure.Decode(v, c); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding log config: %v\n", err)
		os.Exit(1)
	}
	return c
}

type logConf struct {
	Output string `mapstructure:"output"`
	Mode   string `mapstructure:"mode"`
	Level  string `mapstructure:"level"`
}
