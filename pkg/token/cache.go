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

package token

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/cache"
)

// Entry is a cached validation: absolute expiry and the translated group
// string. The wire form is shared by every instance on the same cache, so
// peers can validate tokens minted elsewhere, internal tokens included.
type Entry struct {
	Expires float64 `json:"expires"`
	Groups  string  `json:"groups"`
}

// ExpiresAt returns the expiry as a time.
func (e *Entry) ExpiresAt() time.Time {
	sec, frac := math.Modf(e.Expires)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Cache reads and writes token entries on the shared cache, keyed
// "<reseller_prefix>/auth/<token>".
type Cache struct {
	c      cache.Cache
	prefix string
}

// NewCache returns a token cache over c. A nil c yields a nil Cache, which
// every method tolerates as a permanent miss.
func NewCache(c cache.Cache, resellerPrefix string) *Cache {
	if c == nil {
		return nil
	}
	return &Cache{c: c, prefix: resellerPrefix}
}

// Key returns the cache key for a token.
func (tc *Cache) Key(token string) string {
	return tc.prefix + "/auth/" + token
}

// Get returns the live entry for a token, or nil on a miss. Entries past
// their expiry count as misses.
func (tc *Cache) Get(ctx context.Context, token string) (*Entry, error) {
	if tc == nil {
		return nil, nil
	}
	raw, ok, err := tc.c.Get(ctx, tc.Key(token))
	if err != nil {
		return nil, errors.Wrap(err, "token: reading cache")
	}
	if !ok {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, errors.Wrap(err, "token: decoding cache entry")
	}
	if !e.ExpiresAt().After(time.Now()) {
		return nil, nil
	}
	return &e, nil
}

// Set stores a validation until expires. Entries already past their expiry
// are not stored.
func (tc *Cache) Set(ctx context.Context, token, groups string, expires time.Time) error {
	if tc == nil {
		return nil
	}
	ttl := time.Until(expires)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(&Entry{Expires: epoch(expires), Groups: groups})
	if err != nil {
		return errors.Wrap(err, "token: encoding cache entry")
	}
	return tc.c.Set(ctx, tc.Key(token), string(raw), ttl)
}

// Delete drops a token from the cache. Absent tokens are not an error.
func (tc *Cache) Delete(ctx context.Context, token string) error {
	if tc == nil {
		return nil
	}
	return tc.c.Delete(ctx, tc.Key(token))
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
