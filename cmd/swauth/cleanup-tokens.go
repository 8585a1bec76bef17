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
	"net/url"
	"strings"
	"time"

	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/backing/remote"
)

func cleanupTokensCommand() *command {
	cmd := newCommand("cleanup-tokens")
	endpoint := cmd.String("A", "", "administrative URL of the auth server (default "+defaultEndpoint+")")
	key := cmd.String("K", "", "administrative key")
	purge := cmd.String("purge", "", "remove every token of the given account, expired or not")
	purgeAll := cmd.Bool("purge-all", false, "remove every token, expired or not")
	sleep := cmd.Float64("sleep", 0.1, "seconds to sleep between token checks")
	tokenLife := cmd.Int64("token-life", 86400, "token objects younger than this many seconds are assumed live and skipped")
	verbose := cmd.Bool("v", false, "report every removed token")
	cmd.Description = func() string { return "sweep expired tokens from the token containers" }
	cmd.Usage = func() string { return "Usage: cleanup-tokens [-flags]" }
	cmd.Action = func(w ...io.Writer) error {
		ep, _, k, err := resolveAdmin(*endpoint, "", *key)
		if err != nil {
			return err
		}
		ctx := context.Background()
		src := newGrantSource(ep, k, &http.Client{Timeout: 60 * time.Second})
		storageURL, err := src.StorageURL(ctx)
		if err != nil {
			return err
		}
		su, err := url.Parse(storageURL)
		if err != nil {
			return fmt.Errorf("invalid storage url %q: %w", storageURL, err)
		}
		client, err := remote.New(su.Scheme+"://"+su.Host, remote.Options{
			NodeTimeout: 10 * time.Second,
			Tokens:      src,
		})
		if err != nil {
			return err
		}
		root := strings.TrimSuffix(su.Path, "/")

		now := time.Now()
		var examined, removed int
		for _, shard := range "0123456789abcdef" {
			cont := root + "/.token_" + string(shard)
			entries, _, err := backing.ListAll(ctx, client, cont)
			if err != nil {
				var nf interface{ IsNotFound() }
				if errors.As(err, &nf) {
					return fmt.Errorf("token container %s missing; run \"swauth prep\" first", cont)
				}
				return err
			}
			for _, e := range entries {
				examined++
				if *purge == "" && !*purgeAll && youngerThan(e.LastModified, now, *tokenLife) {
					continue
				}
				if *sleep > 0 {
					time.Sleep(time.Duration(*sleep * float64(time.Second)))
				}
				res, err := client.Do(ctx, backing.NewRequest(http.MethodGet, cont+"/"+e.Name))
				if err != nil {
					return err
				}
				if res.StatusCode == http.StatusNotFound {
					continue
				}
				if err := backing.StatusErr(res, "reading token "+e.Name); err != nil {
					return err
				}
				var detail struct {
					Account string  `json:"account"`
					Expires float64 `json:"expires"`
				}
				if err := json.Unmarshal(res.Body, &detail); err != nil {
					// Unreadable token objects are left alone.
					continue
				}
				drop := *purgeAll ||
					(*purge != "" && detail.Account == *purge) ||
					detail.Expires <= float64(now.Unix())
				if !drop {
					continue
				}
				res, err = client.Do(ctx, backing.NewRequest(http.MethodDelete, cont+"/"+e.Name))
				if err != nil {
					return err
				}
				if res.StatusCode != http.StatusNotFound {
					if err := backing.StatusErr(res, "deleting token "+e.Name); err != nil {
						return err
					}
				}
				removed++
				if *verbose {
					fmt.Printf("removed %s (account %q)\n", e.Name, detail.Account)
				}
			}
		}
		fmt.Printf("examined %d tokens, removed %d\n", examined, removed)
		return nil
	}
	return cmd
}

// youngerThan reports whether a listing timestamp is within life seconds of
// now. Unparsable timestamps count as old so the token still gets checked.
func youngerThan(lastModified string, now time.Time, life int64) bool {
	if lastModified == "" {
		return false
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999", lastModified)
	if err != nil {
		return false
	}
	return now.Sub(t) < time.Duration(life)*time.Second
}
