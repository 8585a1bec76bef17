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

// Package cache defines the shared cache used for validated tokens and the
// internal token. Deployments with a single instance can use the in-memory
// driver; anything running more than one instance needs the redis driver so
// all instances see the same tokens.
package cache

import (
	"context"
	"time"
)

// Cache stores small string values with a per-entry lifetime.
type Cache interface {
	// Get returns the value for key and whether it was present and alive.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. A non-positive ttl stores the
	// value without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
