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

// Package secure sets browser protection headers on every response. The
// auth prefix serves the .webadmin site straight from the cluster, so the
// usual embedding and sniffing protections apply to it like to any other
// static site.
package secure

import (
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/shttp"
)

const defaultPriority = 200

func init() {
	shttp.RegisterMiddleware("secure", New)
}

type config struct {
	Priority              int    `mapstructure:"priority"`
	ContentSecurityPolicy string `mapstructure:"content_security_policy"`
}

// New returns the secure headers middleware.
func New(m map[string]interface{}) (shttp.Middleware, int, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, 0, errors.Wrap(err, "secure: error decoding conf")
	}
	if conf.Priority == 0 {
		conf.Priority = defaultPriority
	}
	if conf.ContentSecurityPolicy == "" {
		conf.ContentSecurityPolicy = "frame-ancestors 'none'"
	}

	chain := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", conf.ContentSecurityPolicy)
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Download-Options", "noopen")
			w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")
			w.Header().Set("X-Robots-Tag", "none")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000")
			}
			next.ServeHTTP(w, r)
		})
	}
	return chain, conf.Priority, nil
}
