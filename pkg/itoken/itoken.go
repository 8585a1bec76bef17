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

// Package itoken mints the internal token the auth system itself acts
// with. The token never touches the backing store: it exists only as a
// cache entry carrying the auth and reseller admin groups, so any peer on
// the same cache honors it. Without a shared cache there is nothing to
// validate it against, which makes one a hard requirement here.
package itoken

import (
	"context"
	"sync"
	"time"

	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/metrics"
	"github.com/openstack-archive/swauth/pkg/token"
)

// Source hands out the internal token, minting a fresh one when the old
// one expired. It implements backing.TokenSource.
type Source struct {
	mu      sync.Mutex
	token   string
	expires time.Time

	prefix      string
	authAccount string
	life        time.Duration
	cache       *token.Cache
}

// New returns a Source minting tokens under resellerPrefix with the given
// lifetime, registered in c.
func New(resellerPrefix, authAccount string, life time.Duration, c *token.Cache) *Source {
	if life <= 0 {
		life = 24 * time.Hour
	}
	return &Source{
		prefix:      resellerPrefix,
		authAccount: authAccount,
		life:        life,
		cache:       c,
	}
}

// Token returns the current internal token, minting a new one when the old
// one expired or force is set.
func (s *Source) Token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && s.token != "" && s.expires.After(time.Now()) {
		return s.token, nil
	}
	if s.cache == nil {
		return "", errtypes.ConfigurationError("itoken: no shared cache to register internal tokens in")
	}
	tok := token.MintInternal(s.prefix)
	expires := time.Now().Add(s.life)
	groups := ".auth,.reseller_admin," + s.authAccount
	if err := s.cache.Set(ctx, tok, groups, expires); err != nil {
		return "", err
	}
	s.token, s.expires = tok, expires
	metrics.TokensIssued.WithLabelValues("internal").Inc()
	return tok, nil
}
