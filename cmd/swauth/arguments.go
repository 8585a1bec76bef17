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
	"bytes"
	"encoding/gob"
	"errors"
	"sync"
	"time"

	"github.com/c-bata/go-prompt"
)

type argumentCompleter struct {
	suggestions []prompt.Suggest
	expiration  time.Time
	sync.RWMutex
}

func (c *Completer) accountArgumentCompleter() []prompt.Suggest {
	if s, ok := checkCache(c.accountArguments); ok {
		return s
	}

	var names []string
	b, err := executeCommand(listCommand())
	if err != nil {
		if err.Error() == "timeout" {
			cacheSuggestions(c.accountArguments, []prompt.Suggest{})
		}
		return []prompt.Suggest{}
	}
	dec := gob.NewDecoder(&b)
	if err := dec.Decode(&names); err != nil {
		return []prompt.Suggest{}
	}

	suggests := make([]prompt.Suggest, 0, len(names))
	for _, n := range names {
		suggests = append(suggests, prompt.Suggest{Text: n})
	}
	cacheSuggestions(c.accountArguments, suggests)
	return suggests
}

// userArgumentCompleter is not cached: the account changes between
// invocations and the underlying call is bounded by the command timeout.
func (c *Completer) userArgumentCompleter(account string) []prompt.Suggest {
	var names []string
	b, err := executeCommand(listCommand(), account)
	if err != nil {
		return []prompt.Suggest{}
	}
	dec := gob.NewDecoder(&b)
	if err := dec.Decode(&names); err != nil {
		return []prompt.Suggest{}
	}

	suggests := make([]prompt.Suggest, 0, len(names))
	for _, n := range names {
		suggests = append(suggests, prompt.Suggest{Text: n})
	}
	return suggests
}

func executeCommand(cmd *command, args ...string) (bytes.Buffer, error) {
	var b bytes.Buffer
	var err error
	if err = cmd.Parse(args); err != nil {
		return b, err
	}
	defer cmd.ResetFlags()

	c := make(chan error, 1)
	go func() {
		c <- cmd.Action(&b)
	}()

	select {
	case err = <-c:
		if err != nil {
			return b, err
		}
	case <-time.After(500 * time.Millisecond):
		return b, errors.New("timeout")
	}
	return b, nil
}

func checkCache(a *argumentCompleter) ([]prompt.Suggest, bool) {
	a.RLock()
	defer a.RUnlock()
	if time.Now().Before(a.expiration) {
		return a.suggestions, true
	}
	return nil, false
}

func cacheSuggestions(a *argumentCompleter, suggests []prompt.Suggest) {
	a.Lock()
	a.suggestions = suggests
	a.expiration = time.Now().Add(time.Second * 10)
	a.Unlock()
}
