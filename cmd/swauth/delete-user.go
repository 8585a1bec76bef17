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
	"errors"
	"fmt"
	"io"
	"net/http"
)

func deleteUserCommand() *command {
	cmd := newCommand("delete-user")
	endpoint, user, key := adminFlags(cmd)
	cmd.Description = func() string { return "delete a user and revoke its token" }
	cmd.Usage = func() string { return "Usage: delete-user [-flags] <account> <user>" }
	cmd.Action = func(w ...io.Writer) error {
		if cmd.NArg() != 2 {
			return errors.New(cmd.Usage())
		}
		account, name := cmd.Args()[0], cmd.Args()[1]
		c, err := newAdminClient(*endpoint, *user, *key)
		if err != nil {
			return err
		}
		status, _, body, err := c.do(context.Background(), http.MethodDelete, "/v2/"+account+"/"+name, nil, nil)
		if err != nil {
			return err
		}
		if err := statusErr("delete-user", status, body); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
