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

// Package auth is the middleware at the heart of the service: it serves
// the administrative API under the auth prefix, resolves tokens and S3
// signatures on storage requests, and installs the deferred authorization
// hook the storage layer calls once container metadata is known.
package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/acl"
	"github.com/openstack-archive/swauth/pkg/authtypes"
	"github.com/openstack-archive/swauth/pkg/authz"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/backing/pipeline"
	"github.com/openstack-archive/swauth/pkg/backing/remote"
	cacheregistry "github.com/openstack-archive/swauth/pkg/cache/registry"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/identity"
	"github.com/openstack-archive/swauth/pkg/itoken"
	"github.com/openstack-archive/swauth/pkg/s3"
	"github.com/openstack-archive/swauth/pkg/shttp"
	"github.com/openstack-archive/swauth/pkg/token"
)

const defaultPriority = 100

func init() {
	shttp.RegisterMiddleware("auth", New)
}

type driverConfig struct {
	Driver  string                            `mapstructure:"driver"`
	Drivers map[string]map[string]interface{} `mapstructure:"drivers"`
}

type config struct {
	Priority      int    `mapstructure:"priority"`
	SuperAdminKey string `mapstructure:"super_admin_key"`
	// ResellerPrefix is a pointer because the empty prefix is meaningful:
	// it claims every token and account on the cluster.
	ResellerPrefix       *string `mapstructure:"reseller_prefix"`
	AuthPrefix           string  `mapstructure:"auth_prefix"`
	DefaultSwiftCluster  string  `mapstructure:"default_swift_cluster"`
	TokenLife            int     `mapstructure:"token_life"`
	MaxTokenLife         int     `mapstructure:"max_token_life"`
	NodeTimeout          int     `mapstructure:"node_timeout"`
	AuthType             string  `mapstructure:"auth_type"`
	AuthTypeSalt         string  `mapstructure:"auth_type_salt"`
	S3Support            bool    `mapstructure:"s3_support"`
	AllowOverrides       *bool   `mapstructure:"allow_overrides"`
	AllowedSyncHosts     string  `mapstructure:"allowed_sync_hosts"`
	DefaultStoragePolicy string  `mapstructure:"default_storage_policy"`
	SwauthRemote         string  `mapstructure:"swauth_remote"`
	SwauthRemoteTimeout  int     `mapstructure:"swauth_remote_timeout"`
	Realm                string  `mapstructure:"realm"`

	Cache   driverConfig `mapstructure:"cache"`
	Backing driverConfig `mapstructure:"backing"`
}

func (c *config) init() {
	if c.Priority == 0 {
		c.Priority = defaultPriority
	}
	if c.ResellerPrefix == nil {
		p := "AUTH"
		c.ResellerPrefix = &p
	}
	*c.ResellerPrefix = strings.TrimSpace(*c.ResellerPrefix)
	if *c.ResellerPrefix != "" && !strings.HasSuffix(*c.ResellerPrefix, "_") {
		*c.ResellerPrefix += "_"
	}
	if c.AuthPrefix == "" {
		c.AuthPrefix = "/auth/"
	}
	if !strings.HasPrefix(c.AuthPrefix, "/") {
		c.AuthPrefix = "/" + c.AuthPrefix
	}
	if !strings.HasSuffix(c.AuthPrefix, "/") {
		c.AuthPrefix += "/"
	}
	if c.DefaultSwiftCluster == "" {
		c.DefaultSwiftCluster = "local#http://127.0.0.1:8080/v1"
	}
	if c.TokenLife == 0 {
		c.TokenLife = 86400
	}
	if c.MaxTokenLife == 0 {
		c.MaxTokenLife = c.TokenLife
	}
	if c.NodeTimeout == 0 {
		c.NodeTimeout = 10
	}
	if c.AuthType == "" {
		c.AuthType = "Plaintext"
	}
	if c.AllowedSyncHosts == "" {
		c.AllowedSyncHosts = "127.0.0.1"
	}
	c.SwauthRemote = strings.TrimRight(c.SwauthRemote, "/")
	if c.SwauthRemoteTimeout == 0 {
		c.SwauthRemoteTimeout = 10
	}
	if c.Realm == "" {
		c.Realm = "Swauth"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Backing.Driver == "" {
		c.Backing.Driver = "pipeline"
	}
}

func parseConfig(m map[string]interface{}) (*config, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	c.init()
	return c, nil
}

// New returns the auth middleware with its configured priority.
func New(m map[string]interface{}) (shttp.Middleware, int, error) {
	conf, err := parseConfig(m)
	if err != nil {
		return nil, 0, err
	}

	prefix := *conf.ResellerPrefix
	authAccount := prefix + ".auth"
	tokenLife := time.Duration(conf.TokenLife) * time.Second
	maxTokenLife := time.Duration(conf.MaxTokenLife) * time.Second
	nodeTimeout := time.Duration(conf.NodeTimeout) * time.Second

	cluster, err := backing.ParseCluster(conf.DefaultSwiftCluster)
	if err != nil {
		return nil, 0, err
	}

	codec, err := authtypes.New(conf.AuthType, conf.AuthTypeSalt)
	if err != nil {
		return nil, 0, err
	}
	s3Support := conf.S3Support
	if s3Support && codec.Scheme() != authtypes.Plaintext && !codec.Salted() {
		// signatures cannot be recomputed against randomly salted hashes
		s3Support = false
	}

	if conf.SwauthRemote != "" {
		u, err := url.Parse(conf.SwauthRemote)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, 0, errtypes.ConfigurationError("swauth_remote must be an http or https url: " + conf.SwauthRemote)
		}
	}

	newCache, ok := cacheregistry.NewFuncs[conf.Cache.Driver]
	if !ok {
		return nil, 0, fmt.Errorf("cache driver not found: %s", conf.Cache.Driver)
	}
	sharedCache, err := newCache(conf.Cache.Drivers[conf.Cache.Driver])
	if err != nil {
		return nil, 0, err
	}
	tokenCache := token.NewCache(sharedCache, prefix)
	itokens := itoken.New(prefix, authAccount, tokenLife, tokenCache)

	var syncHosts []string
	for _, h := range strings.Split(conf.AllowedSyncHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			syncHosts = append(syncHosts, h)
		}
	}
	authorizer := authz.New(prefix, syncHosts)

	// The pipeline backing store needs the downstream handler, which only
	// exists once the middleware wraps it.
	var makeClient func(next http.Handler) backing.Client
	switch conf.Backing.Driver {
	case "pipeline":
		makeClient = func(next http.Handler) backing.Client {
			return pipeline.New(next, pipeline.Options{
				NodeTimeout:   nodeTimeout,
				StoragePolicy: conf.DefaultStoragePolicy,
			})
		}
	case "remote":
		rconf := conf.Backing.Drivers["remote"]
		// Subrequest paths carry the /v1 prefix already, so the base is the
		// cluster URL above the API version.
		base := strings.TrimSuffix(cluster.PrivateURL, "/v1")
		if v, ok := rconf["url"].(string); ok && v != "" {
			base = v
		}
		rc, err := remote.New(base, remote.Options{NodeTimeout: nodeTimeout, Tokens: itokens})
		if err != nil {
			return nil, 0, err
		}
		makeClient = func(http.Handler) backing.Client { return rc }
	default:
		return nil, 0, fmt.Errorf("backing driver not found: %s", conf.Backing.Driver)
	}

	hashPrefix, hashSuffix := token.HashPathSecrets()

	chain := func(next http.Handler) http.Handler {
		client := makeClient(next)
		tokens := token.NewStore(token.Options{
			Client:         client,
			Cache:          tokenCache,
			AuthAccount:    authAccount,
			ResellerPrefix: prefix,
			HashPathPrefix: hashPrefix,
			HashPathSuffix: hashSuffix,
			TokenLife:      tokenLife,
			MaxTokenLife:   maxTokenLife,
		})
		ids := identity.NewStore(identity.Options{
			Client:         client,
			External:       backing.NewExternal(itokens, nodeTimeout),
			Cluster:        cluster,
			Tokens:         tokens,
			Codec:          codec,
			AuthAccount:    authAccount,
			ResellerPrefix: prefix,
		})

		var validator token.Validator = tokens
		if conf.SwauthRemote != "" {
			validator = token.NewRemote(conf.SwauthRemote,
				time.Duration(conf.SwauthRemoteTimeout)*time.Second, tokenCache)
		}

		h := &handler{
			next:           next,
			authPrefix:     conf.AuthPrefix,
			resellerPrefix: prefix,
			realm:          conf.Realm,
			allowOverrides: conf.AllowOverrides == nil || *conf.AllowOverrides,
			s3Support:      s3Support,
			s3: s3.New(s3.Options{
				Users:          ids,
				Cache:          sharedCache,
				ResellerPrefix: prefix,
				CacheLife:      tokenLife,
				Remote:         conf.SwauthRemote != "",
			}),
			validator:  validator,
			authorizer: authorizer,
		}
		// An instance deferring to a remote auth server has no local
		// administrative surface; auth prefix paths fall through to the
		// storage layer.
		if conf.SwauthRemote == "" {
			admin := newAdminAPI(adminOptions{
				IDs:            ids,
				Tokens:         tokens,
				ITokens:        itokens,
				Client:         client,
				Gate:           &gate{users: ids, superAdminKey: conf.SuperAdminKey},
				Realm:          conf.Realm,
				ResellerPrefix: prefix,
				AuthAccount:    authAccount,
				Cluster:        cluster,
				SuperAdminKey:  conf.SuperAdminKey,
			})
			h.admin = http.StripPrefix(strings.TrimSuffix(conf.AuthPrefix, "/"), admin)
		}
		return h
	}
	return chain, conf.Priority, nil
}

// handler classifies every request: administrative API, storage request
// with a token or S3 signature, or anonymous.
type handler struct {
	next  http.Handler
	admin http.Handler

	authPrefix     string
	resellerPrefix string
	realm          string
	allowOverrides bool
	s3Support      bool

	s3         *s3.Adapter
	validator  token.Validator
	authorizer *authz.Authorizer
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Another auth system already claimed the request.
	if authz.HasForeignIdentity(ctx) {
		h.next.ServeHTTP(w, r)
		return
	}
	// OPTIONS requests need to pass for preflight requests.
	if r.Method == http.MethodOptions {
		h.next.ServeHTTP(w, r)
		return
	}
	if h.allowOverrides && authz.AuthorizeOverridden(ctx) {
		h.next.ServeHTTP(w, r)
		return
	}
	if authz.IsPreAuthorized(ctx) {
		h.next.ServeHTTP(w, r)
		return
	}

	if h.admin != nil {
		if r.URL.Path == strings.TrimSuffix(h.authPrefix, "/") {
			http.Redirect(w, r, h.authPrefix, http.StatusMovedPermanently)
			return
		}
		if strings.HasPrefix(r.URL.Path, h.authPrefix) {
			h.admin.ServeHTTP(w, r)
			return
		}
	}

	details, isS3 := s3.FromRequest(r)
	if isS3 && !h.s3Support {
		writeBody(w, http.StatusBadRequest, "S3 support is disabled in swauth.")
		return
	}
	tkn := r.Header.Get("X-Auth-Token")
	if tkn == "" {
		tkn = r.Header.Get("X-Storage-Token")
	}
	if len(tkn) > authtypes.MaxTokenLength {
		writeBody(w, http.StatusBadRequest, "Token exceeds maximum length.")
		return
	}

	// An empty reseller prefix claims every token.
	if isS3 || (tkn != "" && strings.HasPrefix(tkn, h.resellerPrefix)) {
		groups, rewrite, err := h.resolveGroups(r, tkn, details)
		if err != nil {
			writeError(w, r, h.realm, err)
			return
		}
		if groups != "" {
			names := strings.Split(groups, ",")
			ctx = authz.ContextSetPrincipal(ctx, &authz.Principal{
				User:   names[0],
				Groups: names,
				Token:  tkn,
			})
			ctx = authz.ContextSetHook(ctx, h.authorizer.Authorize)
			ctx = authz.ContextSetState(ctx, &authz.State{
				CleanACL:        acl.Clean,
				ResellerRequest: hasName(names, ".reseller_admin"),
			})
			if rewrite != nil {
				r.URL.Path = rewrite(r.URL.Path)
			}
			h.next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		// This instance is the definitive authority for tokens under its
		// prefix and can deny them outright.
		if h.resellerPrefix != "" && tkn != "" && strings.HasPrefix(tkn, h.resellerPrefix) {
			setChallenge(w, h.realm)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Not certain to be the definitive authority: leave any hook a
		// previous middleware installed in place.
		if _, ok := authz.ContextGetHook(ctx); !ok {
			ctx = authz.ContextSetHook(ctx, authz.Denied)
			r = r.WithContext(ctx)
		}
		h.next.ServeHTTP(w, r)
		return
	}

	// Anonymous request.
	if h.resellerPrefix != "" {
		if pathAccount(r.URL.Path, h.resellerPrefix) {
			ctx = authz.ContextSetHook(ctx, h.authorizer.Authorize)
			ctx = authz.ContextSetState(ctx, &authz.State{CleanACL: acl.Clean})
			r = r.WithContext(ctx)
		} else if _, ok := authz.ContextGetHook(ctx); !ok {
			ctx = authz.ContextSetHook(ctx, authz.Denied)
			r = r.WithContext(ctx)
		}
	} else if _, ok := authz.ContextGetHook(ctx); !ok {
		ctx = authz.ContextSetHook(ctx, h.authorizer.Authorize)
		ctx = authz.ContextSetState(ctx, &authz.State{CleanACL: acl.Clean})
		r = r.WithContext(ctx)
	}
	h.next.ServeHTTP(w, r)
}

// resolveGroups resolves a token or an S3 signature to the caller's group
// string. Unknown and invalid credentials come back as empty groups; only
// backend failures are errors. For S3 requests the returned rewrite maps
// the access key in the path to the storage account.
func (h *handler) resolveGroups(r *http.Request, tkn string, details *s3.Details) (string, func(string) string, error) {
	ctx := r.Context()
	if details != nil {
		id, err := h.s3.Authenticate(ctx, details)
		if err != nil {
			if isInvalidCredentials(err) || isNotFound(err) {
				return "", nil, nil
			}
			return "", nil, err
		}
		return id.Groups, id.RewritePath, nil
	}
	val, err := h.validator.Validate(ctx, tkn)
	if err != nil {
		if isNotFound(err) || isInvalidCredentials(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return val.Groups, nil, nil
}

// pathAccount reports whether the request path addresses a storage account
// under the reseller prefix.
func pathAccount(p, prefix string) bool {
	p = strings.TrimPrefix(p, "/")
	if _, rest, ok := strings.Cut(p, "/"); ok {
		return strings.HasPrefix(rest, prefix)
	}
	return false
}

func hasName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
