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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func setAccountServiceCommand() *command {
	cmd := newCommand("set-account-service")
	endpoint, user, key := adminFlags(cmd)
	cmd.Description = func() string { return "set one service endpoint of an account" }
	cmd.Usage = func() string {
		return "Usage: set-account-service [-flags] <account> <service> <name> <value>\n" +
			"Example: set-account-service act storage local http://127.0.0.1:8080/v1/AUTH_018c6480"
	}
	cmd.Action = func(w ...io.Writer) error {
		if cmd.NArg() != 4 {
			return errors.New(cmd.Usage())
		}
		account, service, name, value := cmd.Args()[0], cmd.Args()[1], cmd.Args()[2], cmd.Args()[3]
		c, err := newAdminClient(*endpoint, *user, *key)
		if err != nil {
			return err
		}
		patch, err := json.Marshal(map[string]map[string]string{service: {name: value}})
		if err != nil {
			return err
		}
		status, _, body, err := c.do(context.Background(), http.MethodPost, "/v2/"+account+"/.services", nil, patch)
		if err != nil {
			return err
		}
		if err := statusErr("set-account-service", status, body); err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	}
	return cmd
}
