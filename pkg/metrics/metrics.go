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

// Package metrics holds the domain counters: what happened to tokens and
// to the administrative API. Wire-level HTTP metrics live with the metrics
// interceptor instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openstack-archive/swauth/pkg/prom/registry"
)

func init() {
	registry.Register("swauth", New)
}

var (
	// TokenValidations counts validation attempts by outcome: "cache" for
	// cache hits, "ok" for store validations, "invalid", "expired" and
	// "error".
	TokenValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swauth_token_validations_total",
		Help: "Token validations by outcome.",
	}, []string{"outcome"})

	// TokensIssued counts grants by kind: "fresh", "reused" or "internal".
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swauth_tokens_issued_total",
		Help: "Tokens handed out by kind.",
	}, []string{"kind"})

	// AdminRequests counts administrative API requests by operation and
	// response code.
	AdminRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swauth_admin_requests_total",
		Help: "Administrative API requests by operation and status code.",
	}, []string{"operation", "code"})

	// AuthzDecisions counts deferred authorization decisions on storage
	// requests: "allowed", "denied" for authenticated callers that lack
	// rights, "unauthorized" for anonymous ones.
	AuthzDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swauth_authz_decisions_total",
		Help: "Deferred authorization decisions on storage requests.",
	}, []string{"outcome"})
)

// New returns the domain collectors.
func New(map[string]interface{}) ([]prometheus.Collector, error) {
	return []prometheus.Collector{
		TokenValidations,
		TokensIssued,
		AdminRequests,
		AuthzDecisions,
	}, nil
}
