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

package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/authtypes"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/identity"
	"github.com/openstack-archive/swauth/pkg/itoken"
	"github.com/openstack-archive/swauth/pkg/metrics"
	"github.com/openstack-archive/swauth/pkg/shttp"
	"github.com/openstack-archive/swauth/pkg/token"
)

// adminOptions carries the collaborators of the administrative API.
type adminOptions struct {
	IDs     *identity.Store
	Tokens  *token.Store
	ITokens *itoken.Source
	Client  backing.Client
	Gate    *gate

	Realm          string
	ResellerPrefix string
	AuthAccount    string
	Cluster        *backing.Cluster
	SuperAdminKey  string
}

// adminAPI serves the administrative REST surface mounted under the auth
// prefix: account and user management under /v2, token grants under
// /v1/<account>/auth, /v1.0 and /auth, and the .webadmin static site for
// everything else.
type adminAPI struct {
	ids     *identity.Store
	tokens  *token.Store
	itokens *itoken.Source
	client  backing.Client
	gate    *gate

	realm          string
	resellerPrefix string
	authAccount    string
	cluster        *backing.Cluster
	superAdminKey  string

	router   chi.Router
	warnOnce sync.Once
}

func newAdminAPI(opts adminOptions) *adminAPI {
	api := &adminAPI{
		ids:            opts.IDs,
		tokens:         opts.Tokens,
		itokens:        opts.ITokens,
		client:         opts.Client,
		gate:           opts.Gate,
		realm:          opts.Realm,
		resellerPrefix: opts.ResellerPrefix,
		authAccount:    opts.AuthAccount,
		cluster:        opts.Cluster,
		superAdminKey:  opts.SuperAdminKey,
	}

	r := chi.NewRouter()
	r.Use(api.countRequests)
	r.Get("/v2", api.listAccounts)
	r.Post("/v2/.prep", api.prep)
	r.Get("/v2/.token/{token}", api.validateToken)
	r.Get("/v2/{account}", api.getAccount)
	r.Put("/v2/{account}", api.putAccount)
	r.Delete("/v2/{account}", api.deleteAccount)
	r.Post("/v2/{account}/.services", api.setServices)
	r.Get("/v2/{account}/.groups", api.listGroups)
	r.Get("/v2/{account}/{user}", api.getUser)
	r.Put("/v2/{account}/{user}", api.putUser)
	r.Delete("/v2/{account}/{user}", api.deleteUser)
	r.Get("/v1/{account}/auth", api.grantForAccount)
	r.Get("/auth", api.grant)
	r.Get("/auth/*", api.grant)
	r.Get("/v1.0", api.grant)
	r.Get("/v1.0/*", api.grant)
	r.NotFound(api.fallback)
	r.MethodNotAllowed(api.fallback)
	api.router = r
	return api
}

// ServeHTTP dispatches a request whose path is already relative to the
// auth prefix. The whole /v2 surface stays dark without a super admin key.
func (api *adminAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if head, _ := shttp.ShiftPath(r.URL.Path); head == "v2" && api.superAdminKey == "" {
		api.warnOnce.Do(func() {
			appctx.GetLogger(r.Context()).Warn().
				Msg("no super_admin_key set: administrative features disabled")
		})
		w.WriteHeader(http.StatusNotFound)
		return
	}
	api.router.ServeHTTP(w, r)
}

// countRequests tracks administrative operations by route and outcome.
func (api *adminAPI) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		op := chi.RouteContext(r.Context()).RoutePattern()
		if op == "" {
			op = "other"
		}
		metrics.AdminRequests.WithLabelValues(r.Method+" "+op, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// fallback handles paths outside the route table. Malformed requests under
// a known API version are client errors; anything else is served from the
// .webadmin container.
func (api *adminAPI) fallback(w http.ResponseWriter, r *http.Request) {
	switch head, _ := shttp.ShiftPath(r.URL.Path); head {
	case "v1", "v1.0", "v2", "auth":
		w.WriteHeader(http.StatusBadRequest)
	default:
		api.webadmin(w, r)
	}
}

// webadmin serves the static admin UI stored under
// /v1/<auth account>/.webadmin on the cluster.
func (api *adminAPI) webadmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	subpath := strings.TrimPrefix(r.URL.Path, "/")
	if subpath == "" {
		subpath = "index.html"
	}
	res, err := api.client.Do(r.Context(),
		backing.NewRequest(r.Method, "/v1/"+api.authAccount+"/.webadmin/"+subpath))
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	for k, vs := range res.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

func (api *adminAPI) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, api.realm, errtypes.InternalError(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// listAccounts returns every account known to the auth system.
func (api *adminAPI) listAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.resellerAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	accounts, err := api.ids.ListAccounts(ctx)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if accounts == nil {
		accounts = []identity.NameEntry{}
	}
	api.writeJSON(w, r, map[string]interface{}{"accounts": accounts})
}

// prep initializes the auth account and its token containers.
func (api *adminAPI) prep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.superAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	if err := api.ids.Prep(ctx); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateToken reports the groups and remaining lifetime of a token. The
// endpoint is deliberately ungated: instances running against a remote
// auth server call it without credentials.
func (api *adminAPI) validateToken(w http.ResponseWriter, r *http.Request) {
	tkn := chi.URLParam(r, "token")
	if !strings.HasPrefix(tkn, api.resellerPrefix) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	val, err := api.tokens.Validate(r.Context(), tkn)
	if err != nil {
		if isNotFound(err) || isInvalidCredentials(err) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeError(w, r, api.realm, err)
		return
	}
	w.Header().Set("X-Auth-TTL", strconv.FormatFloat(val.TTL().Seconds(), 'f', -1, 64))
	w.Header().Set("X-Auth-Groups", val.Groups)
	w.WriteHeader(http.StatusNoContent)
}

// getAccount returns the account detail document.
func (api *adminAPI) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := chi.URLParam(r, "account")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.accountAdmin(account) {
		writeError(w, r, api.realm, v.denied())
		return
	}
	acct, err := api.ids.GetAccount(ctx, account)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	api.writeJSON(w, r, acct)
}

// putAccount creates an account. Repeating the request on a finished
// account is acknowledged with 202.
func (api *adminAPI) putAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.resellerAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	account := chi.URLParam(r, "account")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if err := api.ids.CreateAccount(ctx, account, r.Header.Get("X-Account-Suffix")); err != nil {
		if isAlreadyExists(err) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeError(w, r, api.realm, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// deleteAccount removes an account that has no users left.
func (api *adminAPI) deleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.resellerAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	account := chi.URLParam(r, "account")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if err := api.ids.DeleteAccount(ctx, account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setServices merges a JSON patch into the account's services document and
// returns the merged document.
func (api *adminAPI) setServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.resellerAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	account := chi.URLParam(r, "account")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	patch, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, api.realm, errtypes.BadRequest("error reading request body"))
		return
	}
	svcs, err := api.ids.SetServices(ctx, account, patch)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	api.writeJSON(w, r, svcs)
}

// listGroups returns the union of the groups of all users of an account.
func (api *adminAPI) listGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := chi.URLParam(r, "account")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.accountAdmin(account) {
		writeError(w, r, api.realm, v.denied())
		return
	}
	groups, err := api.ids.ListGroups(ctx, account)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if groups == nil {
		groups = []identity.NameEntry{}
	}
	api.writeJSON(w, r, map[string]interface{}{"groups": groups})
}

// getUser returns the stored user document. Reading an account admin takes
// reseller admin credentials; reading a reseller admin takes the super
// admin key.
func (api *adminAPI) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := chi.URLParam(r, "account")
	user := chi.URLParam(r, "user")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if err := identity.ValidName(user); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if !v.accountAdmin(account) {
		writeError(w, r, api.realm, v.denied())
		return
	}
	u, err := api.ids.GetUser(ctx, account, user)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if u.Admin() && !v.resellerAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	if u.ResellerAdmin() && !v.superAdmin() {
		writeError(w, r, api.realm, v.denied())
		return
	}
	w.Header().Set("X-Auth-User-Admin", strconv.FormatBool(u.Admin()))
	w.Header().Set("X-Auth-User-Reseller-Admin", strconv.FormatBool(u.ResellerAdmin()))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(u.Raw)
}

// putUser creates or replaces a user. Users may rotate their own key;
// granting .admin takes an account admin, granting .reseller_admin the
// super admin key.
func (api *adminAPI) putUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := chi.URLParam(r, "account")
	user := chi.URLParam(r, "user")
	key := r.Header.Get("X-Auth-User-Key")
	keyHash := r.Header.Get("X-Auth-User-Key-Hash")
	wantAdmin := r.Header.Get("X-Auth-User-Admin") == "true"
	wantReseller := r.Header.Get("X-Auth-User-Reseller-Admin") == "true"

	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if err := identity.ValidName(user); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if key == "" && keyHash == "" {
		writeError(w, r, api.realm, errtypes.BadRequest("X-Auth-User-Key or X-Auth-User-Key-Hash required"))
		return
	}
	if keyHash != "" {
		if _, err := authtypes.ParseCreds(keyHash); err != nil {
			writeError(w, r, api.realm, err)
			return
		}
	}

	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	allowed := v.accountAdmin(account)
	if wantReseller {
		allowed = v.superAdmin()
	}
	if !allowed && !v.mayChangeOwnKey(account, user, wantAdmin, wantReseller) {
		writeError(w, r, api.realm, v.denied())
		return
	}

	err = api.ids.PutUser(ctx, account, user, &identity.PutUserRequest{
		Key:           key,
		KeyHash:       keyHash,
		Admin:         wantAdmin,
		ResellerAdmin: wantReseller,
	})
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// deleteUser removes a user and revokes its candidate token. A missing
// target is reported before the gate; deleting a reseller admin takes the
// super admin key.
func (api *adminAPI) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := chi.URLParam(r, "account")
	user := chi.URLParam(r, "user")
	if err := identity.ValidName(account); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if err := identity.ValidName(user); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	v, err := api.gate.verify(ctx, r)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	target, err := api.ids.GetUser(ctx, account, user)
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	if target.ResellerAdmin() && !v.superAdmin() {
		writeError(w, r, api.realm, errtypes.PermissionDenied("only the super admin may delete a reseller admin"))
		return
	}
	if !v.accountAdmin(account) {
		writeError(w, r, api.realm, v.denied())
		return
	}
	if err := api.ids.DeleteUser(ctx, account, user); err != nil {
		writeError(w, r, api.realm, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// grantForAccount issues a token for GET /v1/<account>/auth. The user
// comes bare from X-Storage-User or account-qualified from X-Auth-User, in
// which case the account part must match the path.
func (api *adminAPI) grantForAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	user := r.Header.Get("X-Storage-User")
	if user == "" {
		qualified := r.Header.Get("X-Auth-User")
		acct, u, ok := strings.Cut(qualified, ":")
		if !ok || acct != account {
			api.unauthorized(w, r)
			return
		}
		user = u
	}
	key := r.Header.Get("X-Storage-Pass")
	if key == "" {
		key = r.Header.Get("X-Auth-Key")
	}
	api.issue(w, r, account, user, key)
}

// grant issues a token for GET /auth and GET /v1.0 where the user comes
// account-qualified from X-Auth-User or X-Storage-User.
func (api *adminAPI) grant(w http.ResponseWriter, r *http.Request) {
	qualified := r.Header.Get("X-Auth-User")
	if qualified == "" {
		qualified = r.Header.Get("X-Storage-User")
	}
	account, user, ok := strings.Cut(qualified, ":")
	if !ok {
		api.unauthorized(w, r)
		return
	}
	key := r.Header.Get("X-Auth-Key")
	if key == "" {
		key = r.Header.Get("X-Storage-Pass")
	}
	api.issue(w, r, account, user, key)
}

// issue grants a token once account, user and key are extracted. The super
// admin gets an internal token scoped to the auth account; everyone else
// gets their services document and a token on their own account.
func (api *adminAPI) issue(w http.ResponseWriter, r *http.Request, account, user, key string) {
	ctx := r.Context()
	if account == "" || user == "" || key == "" {
		api.unauthorized(w, r)
		return
	}

	if user == ".super_admin" && api.superAdminKey != "" && key == api.superAdminKey {
		tkn, err := api.itokens.Token(ctx, forceNewToken(r))
		if err != nil {
			writeError(w, r, api.realm, err)
			return
		}
		url := api.cluster.PublicURL + "/" + api.authAccount
		w.Header().Set("X-Auth-Token", tkn)
		w.Header().Set("X-Storage-Token", tkn)
		w.Header().Set("X-Storage-Url", url)
		api.writeJSON(w, r, identity.Services{"storage": {"default": "local", "local": url}})
		return
	}

	u, err := api.ids.GetUser(ctx, account, user)
	if err != nil {
		if isNotFound(err) || isBadRequest(err) {
			api.unauthorized(w, r)
			return
		}
		writeError(w, r, api.realm, err)
		return
	}
	if !authtypes.Match(key, u.Auth) {
		api.unauthorized(w, r)
		return
	}

	var lifetime time.Duration
	if hdr := r.Header.Get("X-Auth-Token-Lifetime"); hdr != "" {
		if secs, err := strconv.Atoi(hdr); err == nil && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
	}

	g, err := api.tokens.Issue(ctx, &token.IssueRequest{
		Account:   account,
		User:      user,
		Groups:    u.GroupNames(),
		Candidate: u.CandidateToken,
		ForceNew:  forceNewToken(r),
		Lifetime:  lifetime,
	})
	if err != nil {
		writeError(w, r, api.realm, err)
		return
	}

	svcs, err := api.ids.GetServices(ctx, account)
	if err != nil {
		if isNotFound(err) {
			err = errtypes.InternalError("services document missing for " + account)
		}
		writeError(w, r, api.realm, err)
		return
	}
	w.Header().Set("X-Auth-Token", g.Token)
	w.Header().Set("X-Storage-Token", g.Token)
	w.Header().Set("X-Auth-Token-Expires", strconv.Itoa(int(time.Until(g.Expires).Seconds())))
	w.Header().Set("X-Storage-Url", svcs.DefaultStorageURL())
	api.writeJSON(w, r, svcs)
}

func (api *adminAPI) unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, api.realm, errtypes.InvalidCredentials("invalid user or key"))
}

// forceNewToken reports whether the client asked for a fresh token instead
// of reusing the outstanding one.
func forceNewToken(r *http.Request) bool {
	switch strings.ToLower(r.Header.Get("X-Auth-New-Token")) {
	case "true", "1", "yes", "on", "t", "y":
		return true
	}
	return false
}
