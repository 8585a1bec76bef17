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

// Package reqid mints per-request transaction ids and stores them in the
// request context so every log line of a request can be correlated.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type key int

const reqIDKey key = iota

// ReqIDHeaderName is the header to use when storing the
// request ID into an HTTP header.
const ReqIDHeaderName = "X-Trans-Id"

// ContextGetReqID returns the reqID if set in the given context.
func ContextGetReqID(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(reqIDKey).(string)
	return u, ok
}

// ContextSetReqID stores the reqID in the context.
func ContextSetReqID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, reqIDKey, reqID)
}

// MintReqID creates a new request id.
func MintReqID() string {
	return "tx" + uuid.NewString()
}
