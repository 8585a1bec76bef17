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

func addAccountCommand() *command {
	cmd := newCommand("add-account")
	endpoint, user, key := adminFlags(cmd)
	suffix := cmd.String("s", "", "suffix for the storage account id instead of a random one")
	cmd.Description = func() string { return "create an account" }
	cmd.Usage = func() string { return "Usage: add-account [-flags] <account>" }
	cmd.Action = func(w ...io.Writer) error {
		if cmd.NArg() != 1 {
			return errors.New(cmd.Usage())
		}
		account := cmd.Args()[0]
		c, err := newAdminClient(*endpoint, *user, *key)
		if err != nil {
			return err
		}
		hdr := http.Header{}
		if *suffix != "" {
			hdr.Set("X-Account-Suffix", *suffix)
		}
		status, _, body, err := c.do(context.Background(), http.MethodPut, "/v2/"+account, hdr, nil)
		if err != nil {
			return err
		}
		if err := statusErr("add-account", status, body); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
