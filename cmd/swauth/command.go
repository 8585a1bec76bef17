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

package main

import (
	"flag"
	"io"

	"github.com/pkg/errors"
)

// command is a subcommand of the tool. The embedded flag set parses the
// arguments that follow the command name; Action runs it. When Action gets a
// writer the command encodes its result there instead of printing, which is
// how the interactive shell feeds the argument completer.
type command struct {
	*flag.FlagSet
	Name        string
	Description func() string
	Usage       func() string
	Action      func(w ...io.Writer) error
}

func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd := &command{
		FlagSet:     fs,
		Name:        name,
		Description: func() string { return "" },
		Usage:       func() string { return "Usage: " + name + " [-flags]" },
		Action: func(w ...io.Writer) error {
			return errors.New("command not implemented")
		},
	}
	fs.Usage = func() {
		out := fs.Output()
		_, _ = io.WriteString(out, cmd.Usage()+"\n")
		fs.PrintDefaults()
	}
	return cmd
}

// ResetFlags restores every flag to its default so a command can run more
// than once inside the interactive shell.
func (c *command) ResetFlags() {
	c.VisitAll(func(f *flag.Flag) { _ = f.Value.Set(f.DefValue) })
}
