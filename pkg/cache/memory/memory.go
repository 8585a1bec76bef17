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

// Package memory provides an in-memory cache driver. Only suitable for
// single-instance deployments: tokens validated by one instance are not
// visible to others.
package memory

import (
	"context"
	"time"

	"github.com/bluele/gcache"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/cache"
	"github.com/openstack-archive/swauth/pkg/cache/registry"
)

func init() {
	registry.Register("memory", New)
}

type config struct {
	CacheSize int `mapstructure:"cache_size"`
}

func (c *config) init() {
	if c.CacheSize == 0 {
		c.CacheSize = 1000000
	}
}

type mgr struct {
	cache gcache.Cache
}

// New returns a cache that stores entries in process memory.
func New(m map[string]interface{}) (cache.Cache, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	c.init()
	return &mgr{
		cache: gcache.New(c.CacheSize).LFU().Build(),
	}, nil
}

func (m *mgr) Get(_ context.Context, key string) (string, bool, error) {
	v, err := m.cache.Get(key)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return "", false, nil
		}
		return "", false, err
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (m *mgr) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return m.cache.Set(key, value)
	}
	return m.cache.SetWithExpire(key, value, ttl)
}

func (m *mgr) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}
