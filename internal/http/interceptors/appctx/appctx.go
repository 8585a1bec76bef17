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

// Package appctx builds the per-request context: it assigns the transaction
// id and stores a logger tagged with it, so every log line written while
// serving a request can be correlated.
package appctx

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/reqid"
)

// New returns the context middleware. It has no registry entry: the server
// always chains it outermost and it cannot be disabled from configuration.
func New(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Trust an upstream transaction id so a chain of proxies
			// shares one id, mint one otherwise.
			txnID := r.Header.Get(reqid.ReqIDHeaderName)
			if txnID == "" {
				txnID = reqid.MintReqID()
			}
			ctx = reqid.ContextSetReqID(ctx, txnID)

			sub := log.With().Str("txn", txnID).Logger()
			ctx = appctx.WithLogger(ctx, &sub)

			w.Header().Set(reqid.ReqIDHeaderName, txnID)
			r = r.WithContext(ctx)
			h.ServeHTTP(w, r)
		})
	}
}
