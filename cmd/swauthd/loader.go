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

package main

import (
	// These are the extension points: HTTP middlewares, services and cache
	// drivers register themselves when loaded.
	_ "github.com/openstack-archive/swauth/internal/http/interceptors/accesslog"
	_ "github.com/openstack-archive/swauth/internal/http/interceptors/auth"
	_ "github.com/openstack-archive/swauth/internal/http/interceptors/metrics"
	_ "github.com/openstack-archive/swauth/internal/http/interceptors/secure"
	_ "github.com/openstack-archive/swauth/internal/http/services/metrics"
	_ "github.com/openstack-archive/swauth/internal/http/services/pprof"
	_ "github.com/openstack-archive/swauth/internal/http/services/proxy"
	_ "github.com/openstack-archive/swauth/pkg/cache/memory"
	_ "github.com/openstack-archive/swauth/pkg/cache/redis"
)
