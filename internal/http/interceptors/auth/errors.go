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
	"net/http"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/errtypes"
)

// statusOf maps a domain error to an HTTP status code.
func statusOf(err error) int {
	switch errors.Cause(err).(type) {
	case errtypes.NotFound:
		return http.StatusNotFound
	case errtypes.AlreadyExists:
		return http.StatusConflict
	case errtypes.UserRequired, errtypes.InvalidCredentials:
		return http.StatusUnauthorized
	case errtypes.PermissionDenied:
		return http.StatusForbidden
	case errtypes.BadRequest:
		return http.StatusBadRequest
	case errtypes.Conflict:
		return http.StatusConflict
	case errtypes.PreconditionFailed:
		return http.StatusPreconditionFailed
	case errtypes.NotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a domain error. 401 responses carry the auth
// challenge; server errors are logged with the failing path.
func writeError(w http.ResponseWriter, r *http.Request, realm string, err error) {
	status := statusOf(err)
	switch {
	case status == http.StatusUnauthorized:
		setChallenge(w, realm)
	case status >= http.StatusInternalServerError:
		appctx.GetLogger(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	http.Error(w, http.StatusText(status), status)
}

// setChallenge adds the WWW-Authenticate challenge for the realm.
func setChallenge(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Swauth realm="`+realm+`"`)
}

func isNotFound(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsNotFound)
	return ok
}

func isInvalidCredentials(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsInvalidCredentials)
	return ok
}

func isAlreadyExists(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsAlreadyExists)
	return ok
}

func isBadRequest(err error) bool {
	_, ok := errors.Cause(err).(errtypes.IsBadRequest)
	return ok
}
