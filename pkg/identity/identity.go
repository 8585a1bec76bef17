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

// Package identity manages accounts and users inside the auth account.
// An account is a container; its users are JSON objects in it. Alongside
// the users every account carries a .services document with its storage
// endpoints, a mapping object under .account_id from storage account id
// back to account name, and an id stamped on the container metadata once
// the account is fully created. The stamp doubles as the commit marker:
// an account without it is a leftover of an interrupted create and is
// finished on the next attempt.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/authtypes"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/errtypes"
)

const (
	// GroupAdmin marks account admins inside stored user records.
	GroupAdmin = ".admin"
	// GroupResellerAdmin marks reseller admins.
	GroupResellerAdmin = ".reseller_admin"

	accountIDMeta  = "X-Container-Meta-Account-Id"
	userIDMeta     = "X-Object-Meta-Account-Id"
	userTokenMeta  = "X-Object-Meta-Auth-Token"
	tokenShards    = 16
	servicesObject = ".services"
	mappingPrefix  = ".account_id"
)

// Provisioner performs account management calls against absolute cluster
// URLs. *backing.External satisfies it.
type Provisioner interface {
	Do(ctx context.Context, method, rawURL string, body []byte) (*backing.Response, error)
}

// TokenRevoker revokes issued tokens. *token.Store satisfies it.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// Options configures a Store.
type Options struct {
	// Client performs pre-authorized subrequests against the auth account.
	Client backing.Client
	// External provisions service accounts on cluster URLs.
	External Provisioner
	// Cluster is the storage cluster new accounts land on.
	Cluster *backing.Cluster
	// Tokens revokes the token back-referenced on a user being deleted.
	Tokens TokenRevoker
	// Codec encodes new user keys.
	Codec *authtypes.Codec

	AuthAccount    string
	ResellerPrefix string
}

// Store performs the composite account and user operations.
type Store struct {
	client   backing.Client
	external Provisioner
	cluster  *backing.Cluster
	tokens   TokenRevoker
	codec    *authtypes.Codec

	authAccount string
	prefix      string
}

// NewStore returns a Store with the given options.
func NewStore(opts Options) *Store {
	return &Store{
		client:      opts.Client,
		external:    opts.External,
		cluster:     opts.Cluster,
		tokens:      opts.Tokens,
		codec:       opts.Codec,
		authAccount: opts.AuthAccount,
		prefix:      opts.ResellerPrefix,
	}
}

// Group is one group membership entry of a user record.
type Group struct {
	Name string `json:"name"`
}

// User is a stored user record plus the object metadata riding on it.
type User struct {
	Auth   string  `json:"auth"`
	Groups []Group `json:"groups"`

	// Raw is the stored document verbatim.
	Raw []byte `json:"-"`
	// CandidateToken is the token last granted to the user, if any.
	CandidateToken string `json:"-"`
	// AccountID is the storage account id stamped on the user object.
	AccountID string `json:"-"`
}

// GroupNames returns the group names in stored order.
func (u *User) GroupNames() []string {
	names := make([]string, len(u.Groups))
	for i, g := range u.Groups {
		names[i] = g.Name
	}
	return names
}

// HasGroup reports whether the user carries the named group.
func (u *User) HasGroup(name string) bool {
	for _, g := range u.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// Admin reports whether the user is an account admin.
func (u *User) Admin() bool { return u.HasGroup(GroupAdmin) }

// ResellerAdmin reports whether the user is a reseller admin.
func (u *User) ResellerAdmin() bool { return u.HasGroup(GroupResellerAdmin) }

// NameEntry is a single {"name": ...} row in listing documents.
type NameEntry struct {
	Name string `json:"name"`
}

// Services is the parsed .services document of an account, mapping a
// service class to its endpoints, e.g.
// {"storage": {"default": "local", "local": "http://.../v1/AUTH_x"}}.
type Services map[string]map[string]string

// DefaultStorageURL returns the endpoint the default storage entry points
// at, empty when the document has none.
func (s Services) DefaultStorageURL() string {
	st := s["storage"]
	if st == nil {
		return ""
	}
	return st[st["default"]]
}

// Account is the detail document of one account.
type Account struct {
	AccountID string      `json:"account_id"`
	Services  Services    `json:"services"`
	Users     []NameEntry `json:"users"`
}

// ValidName reports whether a name can be used for an account or user.
// Names starting with a dot are reserved; slashes would break storage
// paths.
func ValidName(s string) error {
	if s == "" || strings.HasPrefix(s, ".") || strings.Contains(s, "/") {
		return errtypes.BadRequest("invalid name: " + s)
	}
	return nil
}

func (s *Store) accountPath(account string) string {
	return "/v1/" + s.authAccount + "/" + account
}

func (s *Store) userPath(account, user string) string {
	return s.accountPath(account) + "/" + user
}

func (s *Store) servicesPath(account string) string {
	return s.accountPath(account) + "/" + servicesObject
}

func (s *Store) mappingPath(accountID string) string {
	return "/v1/" + s.authAccount + "/" + mappingPrefix + "/" + accountID
}

// Prep writes the containers everything else relies on: the auth account
// itself, the account-id mapping container and the sixteen token shards.
// Prepping an already prepped store is harmless.
func (s *Store) Prep(ctx context.Context) error {
	paths := make([]string, 0, tokenShards+2)
	paths = append(paths,
		"/v1/"+s.authAccount,
		"/v1/"+s.authAccount+"/"+mappingPrefix,
	)
	for i := 0; i < tokenShards; i++ {
		paths = append(paths, fmt.Sprintf("/v1/%s/.token_%x", s.authAccount, i))
	}
	for _, p := range paths {
		res, err := s.client.Do(ctx, backing.NewRequest(http.MethodPut, p))
		if err != nil {
			return errors.Wrapf(err, "identity: preparing %s", p)
		}
		if !res.OK() {
			return errtypes.InternalError(fmt.Sprintf("identity: preparing %s: status %d", p, res.StatusCode))
		}
	}
	return nil
}

// ListAccounts returns the names of all accounts, reserved containers
// excluded.
func (s *Store) ListAccounts(ctx context.Context) ([]NameEntry, error) {
	entries, _, err := backing.ListAll(ctx, s.client, "/v1/"+s.authAccount)
	if err != nil {
		return nil, err
	}
	accounts := make([]NameEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		accounts = append(accounts, NameEntry{Name: e.Name})
	}
	return accounts, nil
}

// GetAccount returns the detail document of an account: its storage
// account id, its services document and its user names. An account that
// never finished creating has no services document; it shows up with an
// empty one rather than failing the whole read.
func (s *Store) GetAccount(ctx context.Context, account string) (*Account, error) {
	if err := ValidName(account); err != nil {
		return nil, err
	}
	accountID, err := s.AccountID(ctx, account)
	if err != nil {
		return nil, err
	}

	svcs, err := s.GetServices(ctx, account)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		svcs = Services{}
	}

	entries, _, err := backing.ListAll(ctx, s.client, s.accountPath(account))
	if err != nil {
		return nil, err
	}
	users := make([]NameEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		users = append(users, NameEntry{Name: e.Name})
	}
	return &Account{AccountID: accountID, Services: svcs, Users: users}, nil
}

// CreateAccount creates an account: the container representing it, the
// service account on the storage cluster, the reverse id mapping, the
// services document and finally the id stamp on the container. suffix, when
// not empty, fixes the service account id to <reseller_prefix><suffix>.
// An account that already finished creating comes back as AlreadyExists;
// one that did not is completed.
func (s *Store) CreateAccount(ctx context.Context, account, suffix string) error {
	if err := ValidName(account); err != nil {
		return err
	}
	contPath := s.accountPath(account)
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodHead, contPath))
	if err != nil {
		return errors.Wrap(err, "identity: checking account container")
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		res, err = s.client.Do(ctx, backing.NewRequest(http.MethodPut, contPath))
		if err != nil {
			return errors.Wrap(err, "identity: creating account container")
		}
		if !res.OK() {
			return errtypes.InternalError(fmt.Sprintf("identity: creating account container %s: status %d", account, res.StatusCode))
		}
	case res.OK():
		if res.Header.Get(accountIDMeta) != "" {
			return errtypes.AlreadyExists(account)
		}
		// container without an id stamp: an earlier create died
		// halfway, run the remaining steps again
	default:
		return errtypes.InternalError(fmt.Sprintf("identity: checking account container %s: status %d", account, res.StatusCode))
	}

	if suffix == "" {
		suffix = uuid.New().String()
	}
	accountID := s.prefix + suffix

	res, err = s.external.Do(ctx, http.MethodPut, s.cluster.PrivateURL+"/"+accountID, nil)
	if err != nil {
		return errors.Wrapf(err, "identity: creating service account %s on %s", accountID, s.cluster.Name)
	}
	if !res.OK() {
		return errtypes.InternalError(fmt.Sprintf("identity: creating service account %s on %s: status %d", accountID, s.cluster.Name, res.StatusCode))
	}

	res, err = s.client.Do(ctx, backing.NewRequest(http.MethodPut, s.mappingPath(accountID)).WithBody([]byte(account)))
	if err != nil {
		return errors.Wrap(err, "identity: writing account id mapping")
	}
	if !res.OK() {
		return errtypes.InternalError(fmt.Sprintf("identity: writing account id mapping for %s: status %d", account, res.StatusCode))
	}

	svcs := Services{"storage": {
		"default":      s.cluster.Name,
		s.cluster.Name: s.cluster.PublicURL + "/" + accountID,
	}}
	body, err := json.Marshal(svcs)
	if err != nil {
		return errors.Wrap(err, "identity: encoding services document")
	}
	res, err = s.client.Do(ctx, backing.NewRequest(http.MethodPut, s.servicesPath(account)).WithBody(body))
	if err != nil {
		return errors.Wrap(err, "identity: writing services document")
	}
	if !res.OK() {
		return errtypes.InternalError(fmt.Sprintf("identity: writing services document for %s: status %d", account, res.StatusCode))
	}

	res, err = s.client.Do(ctx, backing.NewRequest(http.MethodPost, contPath).WithHeader(accountIDMeta, accountID))
	if err != nil {
		return errors.Wrap(err, "identity: stamping account id")
	}
	if !res.OK() {
		return errtypes.InternalError(fmt.Sprintf("identity: stamping account id on %s: status %d", account, res.StatusCode))
	}
	return nil
}

// DeleteAccount deletes an account that has no users left: the service
// account on every cluster its services document lists, the document, the
// reverse id mapping and the container. A service account that is not
// empty surfaces as Conflict when nothing was deleted yet and as an
// internal error once the teardown is past the point of no return.
func (s *Store) DeleteAccount(ctx context.Context, account string) error {
	if err := ValidName(account); err != nil {
		return err
	}
	entries, header, err := backing.ListAll(ctx, s.client, s.accountPath(account))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, ".") {
			return errtypes.Conflict("account " + account + " still has users")
		}
	}
	accountID := header.Get(accountIDMeta)

	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodGet, s.servicesPath(account)))
	if err != nil {
		return errors.Wrap(err, "identity: reading services document")
	}
	if !res.OK() && res.StatusCode != http.StatusNotFound {
		return errtypes.InternalError(fmt.Sprintf("identity: reading services document of %s: status %d", account, res.StatusCode))
	}
	if res.OK() {
		var svcs Services
		if err := json.Unmarshal(res.Body, &svcs); err != nil {
			return errors.Wrap(err, "identity: decoding services document")
		}
		deletedAny := false
		for name, u := range svcs["storage"] {
			if name == "default" {
				continue
			}
			dres, err := s.external.Do(ctx, http.MethodDelete, u, nil)
			if err != nil {
				return errors.Wrapf(err, "identity: deleting service account %s", u)
			}
			switch {
			case dres.StatusCode == http.StatusConflict && deletedAny:
				return errtypes.InternalError(fmt.Sprintf("identity: deleted some service accounts of %s, then got status 409 for %s", account, u))
			case dres.StatusCode == http.StatusConflict:
				return errtypes.Conflict("service account of " + account + " is not empty")
			case !dres.OK() && dres.StatusCode != http.StatusNotFound:
				return errtypes.InternalError(fmt.Sprintf("identity: deleting service account %s: status %d", u, dres.StatusCode))
			}
			deletedAny = true
		}
		if err := s.deleteTolerant(ctx, s.servicesPath(account), "services document of "+account); err != nil {
			return err
		}
	}

	if accountID != "" {
		if err := s.deleteTolerant(ctx, s.mappingPath(accountID), "account id mapping of "+account); err != nil {
			return err
		}
	}
	return s.deleteTolerant(ctx, s.accountPath(account), "account container "+account)
}

// AccountID returns the storage account id stamped on an account
// container, empty when the account never finished creating.
func (s *Store) AccountID(ctx context.Context, account string) (string, error) {
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodHead, s.accountPath(account)))
	if err != nil {
		return "", errors.Wrap(err, "identity: reading account container")
	}
	if res.StatusCode == http.StatusNotFound {
		return "", errtypes.NotFound(account)
	}
	if !res.OK() {
		return "", errtypes.InternalError(fmt.Sprintf("identity: reading account container %s: status %d", account, res.StatusCode))
	}
	return res.Header.Get(accountIDMeta), nil
}

// GetUser returns a stored user record. The object metadata rides along:
// the candidate token minted for the user, if any, and the account id
// stamp.
func (s *Store) GetUser(ctx context.Context, account, user string) (*User, error) {
	if err := ValidName(account); err != nil {
		return nil, err
	}
	if err := ValidName(user); err != nil {
		return nil, err
	}
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodGet, s.userPath(account, user)))
	if err != nil {
		return nil, errors.Wrap(err, "identity: reading user object")
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, errtypes.NotFound(account + ":" + user)
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("identity: reading user object %s/%s: status %d", account, user, res.StatusCode))
	}
	u := &User{}
	if err := json.Unmarshal(res.Body, u); err != nil {
		return nil, errors.Wrap(err, "identity: decoding user object")
	}
	u.Raw = res.Body
	u.CandidateToken = res.Header.Get(userTokenMeta)
	u.AccountID = res.Header.Get(userIDMeta)
	return u, nil
}

// ListGroups returns the union of the group names of all users of an
// account, sorted.
func (s *Store) ListGroups(ctx context.Context, account string) ([]NameEntry, error) {
	if err := ValidName(account); err != nil {
		return nil, err
	}
	entries, _, err := backing.ListAll(ctx, s.client, s.accountPath(account))
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		u, err := s.GetUser(ctx, account, e.Name)
		if err != nil {
			return nil, err
		}
		for _, g := range u.Groups {
			set[g.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	groups := make([]NameEntry, len(names))
	for i, n := range names {
		groups[i] = NameEntry{Name: n}
	}
	return groups, nil
}

// PutUserRequest carries the attributes of a user to create or update.
type PutUserRequest struct {
	// Key is a cleartext key, encoded with the configured codec.
	Key string
	// KeyHash is an already encoded credential. It wins over Key and must
	// carry the configured scheme.
	KeyHash string
	// Admin makes the user an account admin.
	Admin bool
	// ResellerAdmin makes the user a reseller admin, which implies Admin.
	ResellerAdmin bool
}

// PutUser writes a user record. The object carries the account id stamp of
// its account so request paths can be rewritten without a container round
// trip.
func (s *Store) PutUser(ctx context.Context, account, user string, req *PutUserRequest) error {
	if err := ValidName(account); err != nil {
		return err
	}
	if err := ValidName(user); err != nil {
		return err
	}
	if req.Key == "" && req.KeyHash == "" {
		return errtypes.BadRequest("user key required")
	}
	auth := req.KeyHash
	if auth != "" {
		creds, err := authtypes.ParseCreds(auth)
		if err != nil {
			return errtypes.BadRequest("invalid key hash")
		}
		if creds.Type != s.codec.Scheme() {
			return errtypes.BadRequest(fmt.Sprintf("key hash scheme %s does not match configured %s", creds.Type, s.codec.Scheme()))
		}
	} else {
		var err error
		if auth, err = s.codec.Encode(req.Key); err != nil {
			return err
		}
	}

	accountID, err := s.AccountID(ctx, account)
	if err != nil {
		return err
	}

	groups := []Group{{Name: account + ":" + user}, {Name: account}}
	if req.Admin || req.ResellerAdmin {
		groups = append(groups, Group{Name: GroupAdmin})
	}
	if req.ResellerAdmin {
		groups = append(groups, Group{Name: GroupResellerAdmin})
	}
	body, err := json.Marshal(&User{Auth: auth, Groups: groups})
	if err != nil {
		return errors.Wrap(err, "identity: encoding user object")
	}
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodPut, s.userPath(account, user)).
		WithBody(body).
		WithHeader(userIDMeta, accountID))
	if err != nil {
		return errors.Wrap(err, "identity: writing user object")
	}
	if res.StatusCode == http.StatusNotFound {
		return errtypes.NotFound(account)
	}
	if !res.OK() {
		return errtypes.InternalError(fmt.Sprintf("identity: writing user object %s/%s: status %d", account, user, res.StatusCode))
	}
	return nil
}

// DeleteUser deletes a user record and revokes the token back-referenced
// on it. The revocation is best effort: a token that cannot be reached now
// dies by expiry.
func (s *Store) DeleteUser(ctx context.Context, account, user string) error {
	u, err := s.GetUser(ctx, account, user)
	if err != nil {
		return err
	}
	if u.CandidateToken != "" && s.tokens != nil {
		if err := s.tokens.Revoke(ctx, u.CandidateToken); err != nil {
			appctx.GetLogger(ctx).Warn().Err(err).
				Str("account", account).Str("user", user).
				Msg("revoking token of deleted user failed")
		}
	}
	return s.deleteTolerant(ctx, s.userPath(account, user), "user object "+account+"/"+user)
}

// GetServices returns the parsed services document of an account.
func (s *Store) GetServices(ctx context.Context, account string) (Services, error) {
	if err := ValidName(account); err != nil {
		return nil, err
	}
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodGet, s.servicesPath(account)))
	if err != nil {
		return nil, errors.Wrap(err, "identity: reading services document")
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, errtypes.NotFound("services document of " + account)
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("identity: reading services document of %s: status %d", account, res.StatusCode))
	}
	var svcs Services
	if err := json.Unmarshal(res.Body, &svcs); err != nil {
		return nil, errors.Wrap(err, "identity: decoding services document")
	}
	return svcs, nil
}

// SetServices merges a patch into the services document of an account and
// returns the merged document. Top-level service classes merge; endpoint
// entries within a class overwrite by key.
func (s *Store) SetServices(ctx context.Context, account string, patch []byte) (Services, error) {
	if err := ValidName(account); err != nil {
		return nil, err
	}
	var p Services
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, errtypes.BadRequest("malformed services patch: " + err.Error())
	}
	svcs, err := s.GetServices(ctx, account)
	if err != nil {
		return nil, err
	}
	for class, entries := range p {
		cur, ok := svcs[class]
		if !ok {
			svcs[class] = entries
			continue
		}
		for k, v := range entries {
			cur[k] = v
		}
	}
	body, err := json.Marshal(svcs)
	if err != nil {
		return nil, errors.Wrap(err, "identity: encoding services document")
	}
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodPut, s.servicesPath(account)).WithBody(body))
	if err != nil {
		return nil, errors.Wrap(err, "identity: writing services document")
	}
	if !res.OK() {
		return nil, errtypes.InternalError(fmt.Sprintf("identity: writing services document of %s: status %d", account, res.StatusCode))
	}
	return svcs, nil
}

// deleteTolerant deletes a path, treating 404 as done.
func (s *Store) deleteTolerant(ctx context.Context, path, what string) error {
	res, err := s.client.Do(ctx, backing.NewRequest(http.MethodDelete, path))
	if err != nil {
		return errors.Wrapf(err, "identity: deleting %s", what)
	}
	if res.OK() || res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.StatusCode == http.StatusConflict {
		return errtypes.Conflict(what)
	}
	return errtypes.InternalError(fmt.Sprintf("identity: deleting %s: status %d", what, res.StatusCode))
}

func isNotFound(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsNotFound)
	return ok
}
