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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/swauth/pkg/cache/registry"
)

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	c, err := New(nil)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v1", 0))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, c.Set(ctx, "k", "v2", 0))
	v, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))

	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok, err = c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after its ttl")

	_, ok, err = c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok, "non-positive ttl should not expire")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Delete(ctx, "absent"))
}

func TestBadConfig(t *testing.T) {
	_, err := New(map[string]interface{}{"cache_size": "lots"})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	f, ok := registry.NewFuncs["memory"]
	require.True(t, ok, "driver should register itself")

	c, err := f(map[string]interface{}{"cache_size": 10})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
