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

// Package redis provides a redis-backed cache driver. Use it whenever more
// than one instance fronts the same cluster: token validations and the
// internal token must be shared or every instance mints its own.
package redis

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/cache"
	"github.com/openstack-archive/swauth/pkg/cache/registry"
)

func init() {
	registry.Register("redis", New)
}

type config struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func (c *config) init() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
}

type mgr struct {
	pool *redis.Pool
}

// New returns a cache backed by a redis server.
func New(m map[string]interface{}) (cache.Cache, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "error decoding conf")
	}
	c.init()
	return &mgr{pool: initRedisPool(c.Address, c.Username, c.Password)}, nil
}

func initRedisPool(address, username, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     50,
		MaxActive:   1000,
		IdleTimeout: 240 * time.Second,

		Dial: func() (redis.Conn, error) {
			var c redis.Conn
			var err error
			switch {
			case username != "":
				c, err = redis.Dial("tcp", address,
					redis.DialUsername(username),
					redis.DialPassword(password),
				)
			case password != "":
				c, err = redis.Dial("tcp", address,
					redis.DialPassword(password),
				)
			default:
				c, err = redis.Dial("tcp", address)
			}

			if err != nil {
				return nil, err
			}
			return c, err
		},

		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

func (m *mgr) Get(ctx context.Context, key string) (string, bool, error) {
	conn, err := m.pool.GetContext(ctx)
	if err != nil {
		return "", false, errors.Wrap(err, "redis: unable to get connection from pool")
	}
	defer conn.Close()

	val, err := redis.String(conn.Do("GET", key))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "redis: GET failed")
	}
	return val, true, nil
}

func (m *mgr) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	conn, err := m.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(err, "redis: unable to get connection from pool")
	}
	defer conn.Close()

	if ttl > 0 {
		// EX wants whole seconds; round sub-second lifetimes up so short
		// entries do not become immortal.
		secs := int(ttl / time.Second)
		if ttl%time.Second != 0 {
			secs++
		}
		_, err = conn.Do("SET", key, value, "EX", secs)
	} else {
		_, err = conn.Do("SET", key, value)
	}
	if err != nil {
		return errors.Wrap(err, "redis: SET failed")
	}
	return nil
}

func (m *mgr) Delete(ctx context.Context, key string) error {
	conn, err := m.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(err, "redis: unable to get connection from pool")
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", key); err != nil {
		return errors.Wrap(err, "redis: DEL failed")
	}
	return nil
}
