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

// Command swauth manages accounts, users and tokens on a swauth server
// through its administrative API. Run with a subcommand for one-shot use or
// without arguments for an interactive shell.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
)

var (
	conf *config

	gitCommit, buildDate, version, goVersion string

	timeout          int64
	disableargprompt bool
)

func init() {
	flag.Int64Var(&timeout, "timeout", -1, "timeout in seconds for shell commands, -1 means no timeout")
	flag.BoolVar(&disableargprompt, "disable-arg-prompt", false, "disables the arguments prompt in the interactive shell")
	flag.Parse()
}

var commands = []*command{
	versionCommand(),
	configureCommand(),
	prepCommand(),
	addAccountCommand(),
	addUserCommand(),
	deleteAccountCommand(),
	deleteUserCommand(),
	listCommand(),
	setAccountServiceCommand(),
	cleanupTokensCommand(),
}

func main() {
	// The configuration file is optional; every command also accepts the
	// connection flags.
	if c, err := readConfig(); err == nil {
		conf = c
	}

	if len(flag.Args()) > 0 {
		action := flag.Args()[0]
		for _, v := range commands {
			if v.Name == action {
				if err := v.Parse(flag.Args()[1:]); err != nil {
					fmt.Println(err)
					os.Exit(1)
				}
				if err := v.Action(); err != nil {
					fmt.Println(err)
					os.Exit(1)
				}
				os.Exit(0)
			}
		}
		fmt.Println(createMainUsage(commands))
		os.Exit(1)
	}

	executor := &Executor{Timeout: timeout}
	completer := &Completer{DisableArgPrompt: disableargprompt}
	completer.init()
	p := prompt.New(
		executor.Execute,
		completer.Complete,
		prompt.OptionTitle("swauth"),
		prompt.OptionPrefix(">> "),
	)
	p.Run()
}

func createMainUsage(cmds []*command) string {
	n := 0
	for _, cmd := range cmds {
		l := len(cmd.Name)
		if l > n {
			n = l
		}
	}

	usage := "Command line interface to a swauth server\n\n"
	for _, cmd := range cmds {
		usage += fmt.Sprintf("%s%s%s\n", cmd.Name, strings.Repeat(" ", 4+(n-len(cmd.Name))), cmd.Description())
	}
	return usage
}
