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

// Package token issues, validates and revokes the opaque bearer tokens
// handed to clients. A token is an object in the backing store whose body
// names the account, user, groups and expiry; a shared cache in front keeps
// the hot path off the store. Object names are concealed so raw tokens
// never show up in storage paths.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/metrics"
)

// Validation is the outcome of validating a live token.
type Validation struct {
	// Groups is the translated group string: group names comma joined,
	// with the account admin marker replaced by the storage account id.
	Groups string
	// Expires is the absolute expiry of the token.
	Expires time.Time
}

// TTL returns the remaining lifetime.
func (v *Validation) TTL() time.Duration {
	return time.Until(v.Expires)
}

// Validator turns a bearer token into groups and an expiry.
type Validator interface {
	// Validate returns the validation for a live token, or an error
	// satisfying errtypes.IsNotFound when the token is unknown or expired.
	Validate(ctx context.Context, token string) (*Validation, error)
}

// Options configure a Store.
type Options struct {
	// Client performs the backing subrequests.
	Client backing.Client
	// Cache, optional, fronts the backing store.
	Cache *Cache
	// AuthAccount is the storage account holding all auth state.
	AuthAccount string
	// ResellerPrefix is prepended to minted tokens.
	ResellerPrefix string
	// HashPathPrefix and HashPathSuffix key the token name concealment.
	HashPathPrefix string
	HashPathSuffix string
	// TokenLife is the default lifetime of issued tokens.
	TokenLife time.Duration
	// MaxTokenLife caps client-requested lifetimes.
	MaxTokenLife time.Duration
}

// Store issues and validates tokens against the backing store.
type Store struct {
	client       backing.Client
	cache        *Cache
	authAccount  string
	prefix       string
	hashPrefix   string
	hashSuffix   string
	tokenLife    time.Duration
	maxTokenLife time.Duration
}

// NewStore returns a Store.
func NewStore(opts Options) *Store {
	if opts.TokenLife <= 0 {
		opts.TokenLife = 24 * time.Hour
	}
	if opts.MaxTokenLife <= 0 {
		opts.MaxTokenLife = opts.TokenLife
	}
	return &Store{
		client:       opts.Client,
		cache:        opts.Cache,
		authAccount:  opts.AuthAccount,
		prefix:       opts.ResellerPrefix,
		hashPrefix:   opts.HashPathPrefix,
		hashSuffix:   opts.HashPathSuffix,
		tokenLife:    opts.TokenLife,
		maxTokenLife: opts.MaxTokenLife,
	}
}

// record is the stored token object body.
type record struct {
	Account   string      `json:"account"`
	User      string      `json:"user"`
	AccountID string      `json:"account_id"`
	Groups    []groupItem `json:"groups"`
	Expires   float64     `json:"expires"`
}

type groupItem struct {
	Name string `json:"name"`
}

func (r *record) names() []string {
	names := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		names[i] = g.Name
	}
	return names
}

func (s *Store) objectPath(token string) string {
	concealed := Conceal(s.hashPrefix, token, s.hashSuffix)
	return "/v1/" + s.authAccount + "/" + Shard(concealed) + "/" + concealed
}

// Validate implements Validator against the cache and the backing store.
// Live validations are written through to the cache with the remaining
// lifetime; expired token objects are reaped on sight.
func (s *Store) Validate(ctx context.Context, token string) (*Validation, error) {
	log := appctx.GetLogger(ctx)
	entry, err := s.cache.Get(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("token cache read failed, falling through")
	}
	if entry != nil {
		metrics.TokenValidations.WithLabelValues("cache").Inc()
		return &Validation{Groups: entry.Groups, Expires: entry.ExpiresAt()}, nil
	}

	path := s.objectPath(token)
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodGet, path))
	if err != nil {
		metrics.TokenValidations.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "token: reading token object")
	}
	if !res.OK() {
		metrics.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, errtypes.NotFound("token")
	}
	var rec record
	if err := json.Unmarshal(res.Body, &rec); err != nil {
		metrics.TokenValidations.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "token: decoding token object")
	}
	expires := (&Entry{Expires: rec.Expires}).ExpiresAt()
	if !expires.After(time.Now()) {
		if err := s.Revoke(ctx, token); err != nil {
			log.Warn().Err(err).Msg("reaping expired token failed")
		}
		metrics.TokenValidations.WithLabelValues("expired").Inc()
		return nil, errtypes.NotFound("token")
	}

	groups := TranslateGroups(rec.names(), rec.AccountID)
	if err := s.cache.Set(ctx, token, groups, expires); err != nil {
		log.Warn().Err(err).Msg("token cache write failed")
	}
	metrics.TokenValidations.WithLabelValues("ok").Inc()
	return &Validation{Groups: groups, Expires: expires}, nil
}

// IssueRequest asks for a token for a user whose credentials already
// checked out.
type IssueRequest struct {
	Account string
	User    string
	// Groups are the stored group names of the user, untranslated.
	Groups []string
	// Candidate is the token back-referenced on the user object, if any.
	Candidate string
	// ForceNew revokes the candidate instead of reusing it.
	ForceNew bool
	// Lifetime is the client-requested lifetime; zero means the default.
	// Values above the configured maximum are clamped.
	Lifetime time.Duration
}

// Grant is an issued token.
type Grant struct {
	Token   string
	Expires time.Time
}

// Issue returns a token for the user, reusing the candidate while it is
// still live. A fresh token is written to the backing store, back-referenced
// on the user object and cached.
func (s *Store) Issue(ctx context.Context, req *IssueRequest) (*Grant, error) {
	life := s.tokenLife
	if req.Lifetime > 0 {
		life = req.Lifetime
	}
	if life > s.maxTokenLife {
		life = s.maxTokenLife
	}

	if req.Candidate != "" {
		if req.ForceNew {
			if err := s.Revoke(ctx, req.Candidate); err != nil {
				return nil, err
			}
		} else {
			grant, err := s.reuse(ctx, req.Candidate)
			if err != nil {
				return nil, err
			}
			if grant != nil {
				metrics.TokensIssued.WithLabelValues("reused").Inc()
				return grant, nil
			}
		}
	}

	accountID, err := s.accountID(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	tok := Mint(s.prefix)
	expires := time.Now().Add(life)
	groups := make([]groupItem, len(req.Groups))
	for i, g := range req.Groups {
		groups[i] = groupItem{Name: g}
	}
	body, err := json.Marshal(&record{
		Account:   req.Account,
		User:      req.User,
		AccountID: accountID,
		Groups:    groups,
		Expires:   epoch(expires),
	})
	if err != nil {
		return nil, errors.Wrap(err, "token: encoding token object")
	}
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodPut, s.objectPath(tok)).WithBody(body))
	if err != nil {
		return nil, errors.Wrap(err, "token: writing token object")
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("token: writing token object: status %d", res.StatusCode))
	}

	userPath := "/v1/" + s.authAccount + "/" + req.Account + "/" + req.User
	res, err = s.client.Do(ctx, backing.NewRequest(http.MethodPost, userPath).
		WithHeader("X-Object-Meta-Auth-Token", tok))
	if err != nil {
		return nil, errors.Wrap(err, "token: back-referencing token")
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("token: back-referencing token on %s: status %d", userPath, res.StatusCode))
	}

	if err := s.cache.Set(ctx, tok, TranslateGroups(req.Groups, accountID), expires); err != nil {
		appctx.GetLogger(ctx).Warn().Err(err).Msg("token cache write failed")
	}
	metrics.TokensIssued.WithLabelValues("fresh").Inc()
	return &Grant{Token: tok, Expires: expires}, nil
}

// reuse returns a grant for the candidate when it is still live, nil when
// it is gone or expired. Expired candidates are reaped.
func (s *Store) reuse(ctx context.Context, candidate string) (*Grant, error) {
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodGet, s.objectPath(candidate)))
	if err != nil {
		return nil, errors.Wrap(err, "token: reading candidate token")
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("token: reading candidate token: status %d", res.StatusCode))
	}
	var rec record
	if err := json.Unmarshal(res.Body, &rec); err != nil {
		return nil, errors.Wrap(err, "token: decoding candidate token")
	}
	expires := (&Entry{Expires: rec.Expires}).ExpiresAt()
	if !expires.After(time.Now()) {
		if err := s.Revoke(ctx, candidate); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &Grant{Token: candidate, Expires: expires}, nil
}

// Revoke deletes a token object and its cache entry. Revoking an unknown
// token is not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodDelete, s.objectPath(token)))
	if err != nil {
		return errors.Wrap(err, "token: deleting token object")
	}
	if !res.OK() && res.StatusCode != http.StatusNotFound {
		return errtypes.InternalError(fmt.Sprintf("token: deleting token object: status %d", res.StatusCode))
	}
	if err := s.cache.Delete(ctx, token); err != nil {
		appctx.GetLogger(ctx).Warn().Err(err).Msg("token cache delete failed")
	}
	return nil
}

// accountID reads the storage account id stamped on the account container.
func (s *Store) accountID(ctx context.Context, account string) (string, error) {
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodHead, "/v1/"+s.authAccount+"/"+account))
	if err != nil {
		return "", errors.Wrap(err, "token: reading account container")
	}
	if !res.OK() {
		return "", errtypes.InternalError(fmt.Sprintf("token: reading account container %s: status %d", account, res.StatusCode))
	}
	return res.Header.Get("X-Container-Meta-Account-Id"), nil
}

// TranslateGroups renders stored group names into the group string seen by
// the request pipeline. The account admin marker never leaves the store;
// membership in the storage account id group takes its place, which is what
// the authorizer ultimately checks ownership against.
func TranslateGroups(names []string, accountID string) string {
	out := make([]string, 0, len(names)+1)
	admin := false
	for _, n := range names {
		if n == ".admin" {
			admin = true
			continue
		}
		out = append(out, n)
	}
	if admin && accountID != "" {
		out = append(out, accountID)
	}
	return strings.Join(out, ",")
}
