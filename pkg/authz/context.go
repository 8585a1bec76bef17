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

package authz

import (
	"context"
	"net/http"
)

type key int

const (
	principalKey key = iota
	hookKey
	stateKey
	preAuthorizedKey
	overrideKey
	foreignIdentityKey
)

// Principal is the authenticated caller of a storage request. User is the
// caller's "<account>:<user>" group, which is always the first group.
type Principal struct {
	User   string
	Groups []string
	Token  string
}

// Func is a deferred authorization decision. The storage layer calls it
// once it knows which container rules apply to the request. A nil return
// allows the request.
type Func func(r *http.Request) error

// State carries per-request authorization data between the storage layer
// and the deferred authorization hook. The storage layer fills in the
// container inputs before calling the hook; the hook leaves its outputs for
// the storage layer. It is stored by pointer so mutations are shared.
type State struct {
	// ACL is the container read or write ACL applying to the request.
	ACL string
	// SyncKey is the sync key of the container addressed by the request.
	SyncKey string
	// CleanACL validates and normalizes an ACL header value before the
	// storage layer persists it.
	CleanACL func(name, value string) (string, error)
	// Owner is set by the hook when the caller owns the addressed account.
	Owner bool
	// ResellerRequest is set when the caller is a reseller admin.
	ResellerRequest bool
}

// ContextSetPrincipal stores the authenticated principal in the context.
func ContextSetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// ContextGetPrincipal returns the authenticated principal, if any.
func ContextGetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// ContextSetHook stores the deferred authorization hook in the context.
func ContextSetHook(ctx context.Context, f Func) context.Context {
	return context.WithValue(ctx, hookKey, f)
}

// ContextGetHook returns the deferred authorization hook, if any.
func ContextGetHook(ctx context.Context) (Func, bool) {
	f, ok := ctx.Value(hookKey).(Func)
	return f, ok
}

// ContextSetState stores the shared authorization state in the context.
func ContextSetState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

// ContextGetState returns the shared authorization state, if any.
func ContextGetState(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(stateKey).(*State)
	return s, ok
}

// WithPreAuthorized marks the context as belonging to an internal
// subrequest that bypasses authentication and authorization.
func WithPreAuthorized(ctx context.Context) context.Context {
	return context.WithValue(ctx, preAuthorizedKey, true)
}

// IsPreAuthorized reports whether the context belongs to an internal
// subrequest.
func IsPreAuthorized(ctx context.Context) bool {
	v, _ := ctx.Value(preAuthorizedKey).(bool)
	return v
}

// WithAuthorizeOverride marks the request as claimed by another
// authorization layer. Honored only when overrides are allowed by
// configuration.
func WithAuthorizeOverride(ctx context.Context) context.Context {
	return context.WithValue(ctx, overrideKey, true)
}

// AuthorizeOverridden reports whether another layer claimed authorization.
func AuthorizeOverridden(ctx context.Context) bool {
	v, _ := ctx.Value(overrideKey).(bool)
	return v
}

// WithForeignIdentity marks the request as already carrying an identity
// established by a different identity system. Such requests pass through
// untouched, unconditionally.
func WithForeignIdentity(ctx context.Context) context.Context {
	return context.WithValue(ctx, foreignIdentityKey, true)
}

// HasForeignIdentity reports whether a different identity system already
// claimed the request.
func HasForeignIdentity(ctx context.Context) bool {
	v, _ := ctx.Value(foreignIdentityKey).(bool)
	return v
}
