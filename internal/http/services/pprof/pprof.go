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

// Package pprof exposes the runtime profiling endpoints. The service is
// disabled by default; it carries no authentication, so enable it only on
// addresses that are not reachable by tenants.
package pprof

import (
	"net/http"
	"net/http/pprof"

	"github.com/openstack-archive/swauth/pkg/shttp"
)

func init() {
	shttp.Register("pprof", New)
}

type svc struct{}

// New returns a new pprof service.
func New(m map[string]interface{}) (shttp.Service, error) {
	return &svc{}, nil
}

// pprof is always exposed at /debug.
func (s *svc) Prefix() string {
	return "debug"
}

func (s *svc) Handler() http.Handler {
	mux := http.NewServeMux()
	// example: /debug/pprof/profile
	mux.HandleFunc("/pprof/", pprof.Index)
	mux.HandleFunc("/pprof/profile", pprof.Profile)
	mux.HandleFunc("/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/pprof/trace", pprof.Trace)
	return mux
}

func (s *svc) Close() error {
	return nil
}
