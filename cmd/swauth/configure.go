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
	"bufio"
	"fmt"
	"io"
	"os"
)

func configureCommand() *command {
	cmd := newCommand("configure")
	cmd.Description = func() string { return "store the server endpoint and admin credentials" }
	cmd.Usage = func() string { return "Usage: configure" }
	cmd.Action = func(w ...io.Writer) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("endpoint [%s]: ", defaultEndpoint)
		endpoint, err := read(reader)
		if err != nil {
			return err
		}
		if endpoint == "" {
			endpoint = defaultEndpoint
		}

		fmt.Printf("admin user [%s]: ", defaultAdminUser)
		user, err := read(reader)
		if err != nil {
			return err
		}
		if user == "" {
			user = defaultAdminUser
		}

		fmt.Print("admin key (leave empty to pass -K per command): ")
		key, err := readPassword(0)
		if err != nil {
			return err
		}
		fmt.Println()

		c := &config{Endpoint: endpoint, AdminUser: user, AdminKey: key}
		if err := writeConfig(c); err != nil {
			return err
		}
		conf = c
		fmt.Println("config saved at " + getConfigFile())
		return nil
	}
	return cmd
}
