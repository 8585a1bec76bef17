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
	"context"
	"net/http"
	"strings"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/authtypes"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/identity"
)

// Level grades the privilege carried by X-Auth-Admin-User credentials.
type Level int

const (
	// LevelNone means absent or invalid credentials.
	LevelNone Level = iota
	// LevelSelf is a regular user with valid credentials.
	LevelSelf
	// LevelAccountAdmin may administer the users of its own account.
	LevelAccountAdmin
	// LevelResellerAdmin may administer any account under the prefix.
	LevelResellerAdmin
	// LevelSuperAdmin holds the configured super admin key.
	LevelSuperAdmin
)

// userGetter is the slice of the identity store the gate needs.
type userGetter interface {
	GetUser(ctx context.Context, account, user string) (*identity.User, error)
}

// gate verifies administrative credentials against stored user records.
type gate struct {
	users         userGetter
	superAdminKey string
}

// verdict is the graded outcome of verifying administrative credentials.
type verdict struct {
	level   Level
	account string
	user    string
	// credentialsValid splits a failed gate into insufficient privilege
	// (403) and bad or absent credentials (401).
	credentialsValid bool
	// admin is the stored record behind the credentials. Nil for the
	// super admin and for invalid credentials.
	admin *identity.User
}

// verify grades the credentials on the request. Bad credentials come back
// as a LevelNone verdict; only backend failures surface as an error.
func (g *gate) verify(ctx context.Context, r *http.Request) (*verdict, error) {
	adminUser := r.Header.Get("X-Auth-Admin-User")
	adminKey := r.Header.Get("X-Auth-Admin-Key")

	if adminUser == ".super_admin" && g.superAdminKey != "" && adminKey == g.superAdminKey {
		return &verdict{level: LevelSuperAdmin, credentialsValid: true}, nil
	}

	account, user, ok := strings.Cut(adminUser, ":")
	if !ok || account == "" || user == "" {
		return &verdict{}, nil
	}
	u, err := g.users.GetUser(ctx, account, user)
	if err != nil {
		// unknown and unaddressable users both mean bad credentials
		if isNotFound(err) || isBadRequest(err) {
			return &verdict{}, nil
		}
		return nil, err
	}
	if !authtypes.Match(adminKey, u.Auth) {
		appctx.GetLogger(ctx).Debug().Str("admin", adminUser).Msg("admin key mismatch")
		return &verdict{}, nil
	}

	v := &verdict{account: account, user: user, credentialsValid: true, admin: u}
	switch {
	case u.ResellerAdmin():
		v.level = LevelResellerAdmin
	case u.Admin():
		v.level = LevelAccountAdmin
	default:
		v.level = LevelSelf
	}
	return v, nil
}

func (v *verdict) superAdmin() bool { return v.level >= LevelSuperAdmin }

func (v *verdict) resellerAdmin() bool { return v.level >= LevelResellerAdmin }

// accountAdmin reports whether the caller may administer the given account.
func (v *verdict) accountAdmin(account string) bool {
	if v.level >= LevelResellerAdmin {
		return true
	}
	return v.level >= LevelAccountAdmin && v.account == account
}

// self reports whether the credentials belong to exactly account:user.
func (v *verdict) self(account, user string) bool {
	return v.credentialsValid && v.account == account && v.user == user
}

// mayChangeOwnKey reports whether the caller is account:user changing its
// own key. Requesting a group the caller does not already hold is refused;
// users cannot escalate themselves.
func (v *verdict) mayChangeOwnKey(account, user string, wantAdmin, wantReseller bool) bool {
	if v.admin == nil {
		return false
	}
	if !v.admin.Admin() && (wantAdmin || wantReseller) {
		return false
	}
	if !v.admin.ResellerAdmin() && wantReseller {
		return false
	}
	return v.self(account, user)
}

// denied returns the error a failed gate maps to.
func (v *verdict) denied() error {
	if v.credentialsValid {
		return errtypes.PermissionDenied("insufficient administrative privilege")
	}
	return errtypes.InvalidCredentials("administrative credentials required")
}
