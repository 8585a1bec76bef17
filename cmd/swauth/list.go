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
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func listCommand() *command {
	cmd := newCommand("list")
	endpoint, user, key := adminFlags(cmd)
	rawJSON := cmd.Bool("j", false, "print the raw JSON response")
	cmd.Description = func() string { return "list accounts, an account's users, or a user's groups" }
	cmd.Usage = func() string { return "Usage: list [-flags] [account [user]]" }
	cmd.Action = func(w ...io.Writer) error {
		c, err := newAdminClient(*endpoint, *user, *key)
		if err != nil {
			return err
		}

		var pth string
		switch cmd.NArg() {
		case 0:
			pth = "/v2"
		case 1:
			pth = "/v2/" + cmd.Args()[0]
		case 2:
			pth = "/v2/" + cmd.Args()[0] + "/" + cmd.Args()[1]
		default:
			return errors.New(cmd.Usage())
		}
		status, _, body, err := c.do(context.Background(), http.MethodGet, pth, nil, nil)
		if err != nil {
			return err
		}
		if err := statusErr("list", status, body); err != nil {
			return err
		}

		var names []string
		switch cmd.NArg() {
		case 0:
			var doc struct {
				Accounts []struct {
					Name string `json:"name"`
				} `json:"accounts"`
			}
			if err := json.Unmarshal(body, &doc); err != nil {
				return err
			}
			for _, a := range doc.Accounts {
				names = append(names, a.Name)
			}
		case 1:
			var doc struct {
				Users []struct {
					Name string `json:"name"`
				} `json:"users"`
			}
			if err := json.Unmarshal(body, &doc); err != nil {
				return err
			}
			for _, u := range doc.Users {
				names = append(names, u.Name)
			}
		case 2:
			var doc struct {
				Groups []struct {
					Name string `json:"name"`
				} `json:"groups"`
			}
			if err := json.Unmarshal(body, &doc); err != nil {
				return err
			}
			for _, g := range doc.Groups {
				names = append(names, g.Name)
			}
		}

		if len(w) > 0 {
			enc := gob.NewEncoder(w[0])
			return enc.Encode(names)
		}
		if *rawJSON {
			fmt.Println(string(body))
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}
	return cmd
}
