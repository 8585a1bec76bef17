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

// Package authz decides whether an authenticated (or anonymous) caller may
// perform a storage request. The decision is deferred: the auth middleware
// installs a hook, and the storage layer calls it once container ACLs and
// sync keys are known.
package authz

import (
	"net"
	"net/http"
	"strings"

	"github.com/openstack-archive/swauth/pkg/acl"
	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/errtypes"
)

// Authorizer authorizes storage requests for accounts under one reseller
// prefix.
type Authorizer struct {
	resellerPrefix   string
	allowedSyncHosts []string
}

// New returns an authorizer. The reseller prefix must already carry its
// trailing underscore, or be empty.
func New(resellerPrefix string, allowedSyncHosts []string) *Authorizer {
	return &Authorizer{
		resellerPrefix:   resellerPrefix,
		allowedSyncHosts: allowedSyncHosts,
	}
}

// Authorize is the deferred authorization decision for storage requests.
// It reads the principal and shared state from the request context. The
// order of the checks matters: reseller admin, account owner, container
// sync, referrer ACL, then group ACL.
func (a *Authorizer) Authorize(r *http.Request) error {
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	_, account, container, obj, err := SplitStoragePath(r.URL.Path)
	if err != nil {
		log.Debug().Str("path", r.URL.Path).Msg("authorize: unparsable path")
		return errtypes.NotFound(r.URL.Path)
	}
	if account == "" || !strings.HasPrefix(account, a.resellerPrefix) {
		return Denied(r)
	}

	var groups []string
	principal, hasPrincipal := ContextGetPrincipal(ctx)
	if hasPrincipal {
		groups = principal.Groups
	}
	state, hasState := ContextGetState(ctx)

	// Reseller admins own every account under the prefix except the auth
	// system's own: the ".auth" account and anything else starting with a
	// dot stays out of reach of the storage API.
	if containsGroup(groups, ".reseller_admin") &&
		account != a.resellerPrefix &&
		!strings.HasPrefix(account[len(a.resellerPrefix):], ".") {
		if hasState {
			state.Owner = true
		}
		return nil
	}

	// The account admin owns the account but may not PUT or DELETE the
	// account itself.
	if containsGroup(groups, account) &&
		((r.Method != http.MethodDelete && r.Method != http.MethodPut) || container != "") {
		if hasState {
			state.Owner = true
		}
		return nil
	}

	// Container sync requests authenticate with the container's sync key
	// from an allowed remote host.
	if hasState && state.SyncKey != "" &&
		state.SyncKey == r.Header.Get("X-Container-Sync-Key") &&
		r.Header.Get("X-Timestamp") != "" &&
		(a.hostAllowed(remoteAddrHost(r)) || a.hostAllowed(remoteClient(r))) {
		return nil
	}

	var aclValue string
	if hasState {
		aclValue = state.ACL
	}
	referrers, aclGroups := acl.Parse(aclValue)
	if acl.ReferrerAllowed(r.Referer(), referrers) {
		if obj != "" || containsGroup(aclGroups, ".rlistings") {
			return nil
		}
		return Denied(r)
	}
	if !hasPrincipal {
		return Denied(r)
	}
	for _, g := range groups {
		if containsGroup(aclGroups, g) {
			return nil
		}
	}
	return Denied(r)
}

// Denied returns the error for a request that failed authorization:
// credentials were presented but do not suffice, or none were presented at
// all. Callers map the two cases to 403 and 401.
func Denied(r *http.Request) error {
	if p, ok := ContextGetPrincipal(r.Context()); ok && p.User != "" {
		return errtypes.PermissionDenied(r.URL.Path)
	}
	return errtypes.UserRequired(r.URL.Path)
}

func (a *Authorizer) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	for _, h := range a.allowedSyncHosts {
		if h == host {
			return true
		}
	}
	return false
}

func containsGroup(groups []string, g string) bool {
	for _, have := range groups {
		if have == g {
			return true
		}
	}
	return false
}

// remoteClient returns the client address as seen through load balancers:
// X-Cluster-Client-Ip, else the first X-Forwarded-For hop, else the
// transport peer.
func remoteClient(r *http.Request) string {
	if client := r.Header.Get("X-Cluster-Client-Ip"); client != "" {
		return client
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return remoteAddrHost(r)
}

func remoteAddrHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SplitStoragePath splits "/v1/<account>[/<container>[/<object>]]" into its
// segments. The object part keeps any remaining slashes. Missing trailing
// segments come back empty; an empty or relative path is an error.
func SplitStoragePath(p string) (version, account, container, obj string, err error) {
	if !strings.HasPrefix(p, "/") {
		return "", "", "", "", errtypes.BadRequest("invalid path: " + p)
	}
	segs := strings.SplitN(p[1:], "/", 4)
	if segs[0] == "" {
		return "", "", "", "", errtypes.BadRequest("invalid path: " + p)
	}
	version = segs[0]
	if len(segs) > 1 {
		account = segs[1]
	}
	if len(segs) > 2 {
		container = segs[2]
	}
	if len(segs) > 3 {
		obj = segs[3]
	}
	return version, account, container, obj, nil
}
