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
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/httpclient"
	"github.com/openstack-archive/swauth/pkg/metrics"
)

// Remote validates tokens against a peer auth instance instead of the
// backing store, for clusters that keep none of the auth state themselves.
// The peer answers on its validate endpoint with the groups and remaining
// lifetime, which are cached locally like a regular validation.
type Remote struct {
	base  string
	hc    *httpclient.Client
	cache *Cache
}

// NewRemote returns a Remote against base, the peer's auth prefix URL,
// e.g. http://peer.example:8080/auth.
func NewRemote(base string, timeout time.Duration, c *Cache) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		base:  base,
		hc:    httpclient.New(httpclient.Timeout(timeout)),
		cache: c,
	}
}

// Validate implements Validator over the peer's validate endpoint.
func (r *Remote) Validate(ctx context.Context, token string) (*Validation, error) {
	log := appctx.GetLogger(ctx)
	entry, err := r.cache.Get(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("token cache read failed, falling through")
	}
	if entry != nil {
		metrics.TokenValidations.WithLabelValues("cache").Inc()
		return &Validation{Groups: entry.Groups, Expires: entry.ExpiresAt()}, nil
	}

	target := r.base + "/v2/.token/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "token: building remote validation")
	}
	res, err := r.hc.Do(req)
	if err != nil {
		metrics.TokenValidations.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "token: calling remote validation")
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		metrics.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, errtypes.NotFound("token")
	}
	groups := res.Header.Get("X-Auth-Groups")
	ttl, err := strconv.ParseFloat(res.Header.Get("X-Auth-Ttl"), 64)
	if err != nil {
		metrics.TokenValidations.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "token: parsing remote validation ttl")
	}
	expires := time.Now().Add(time.Duration(ttl * float64(time.Second)))

	if err := r.cache.Set(ctx, token, groups, expires); err != nil {
		log.Warn().Err(err).Msg("token cache write failed")
	}
	metrics.TokenValidations.WithLabelValues("ok").Inc()
	return &Validation{Groups: groups, Expires: expires}, nil
}
