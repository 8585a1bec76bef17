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

func addUserCommand() *command {
	cmd := newCommand("add-user")
	endpoint, user, key := adminFlags(cmd)
	admin := cmd.Bool("a", false, "make the user an account admin")
	reseller := cmd.Bool("r", false, "make the user a reseller admin")
	suffix := cmd.String("s", "", "suffix for the storage account id when the account is created")
	cmd.Description = func() string { return "create or update a user, creating the account when missing" }
	cmd.Usage = func() string { return "Usage: add-user [-flags] <account> <user> <key>" }
	cmd.Action = func(w ...io.Writer) error {
		if cmd.NArg() != 3 {
			return errors.New(cmd.Usage())
		}
		account, name, userKey := cmd.Args()[0], cmd.Args()[1], cmd.Args()[2]
		c, err := newAdminClient(*endpoint, *user, *key)
		if err != nil {
			return err
		}
		ctx := context.Background()

		// The account PUT is idempotent, so creating it unconditionally
		// keeps the command usable as the first provisioning step.
		hdr := http.Header{}
		if *suffix != "" {
			hdr.Set("X-Account-Suffix", *suffix)
		}
		status, _, body, err := c.do(ctx, http.MethodPut, "/v2/"+account, hdr, nil)
		if err != nil {
			return err
		}
		if err := statusErr("create account", status, body); err != nil {
			return err
		}

		hdr = http.Header{}
		hdr.Set("X-Auth-User-Key", userKey)
		if *admin {
			hdr.Set("X-Auth-User-Admin", "true")
		}
		if *reseller {
			hdr.Set("X-Auth-User-Reseller-Admin", "true")
		}
		status, _, body, err = c.do(ctx, http.MethodPut, "/v2/"+account+"/"+name, hdr, nil)
		if err != nil {
			return err
		}
		if err := statusErr("add-user", status, body); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
