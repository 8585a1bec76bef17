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

package pipeline

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/openstack-archive/swauth/pkg/authz"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/backing/fake"
)

func TestDoMarksSubrequests(t *testing.T) {
	var preAuthed bool
	var agent, policy string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preAuthed = authz.IsPreAuthorized(r.Context())
		agent = r.Header.Get("User-Agent")
		policy = r.Header.Get("X-Storage-Policy")
		w.WriteHeader(http.StatusNoContent)
	})
	c := New(next, Options{StoragePolicy: "gold"})
	res, err := c.Do(context.Background(), backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", res.StatusCode)
	}
	if !preAuthed {
		t.Error("subrequest not marked pre-authorized")
	}
	if agent != "Swauth" {
		t.Errorf("user agent = %q", agent)
	}
	if policy != "gold" {
		t.Errorf("storage policy = %q", policy)
	}
}

func TestDoBuffersResponse(t *testing.T) {
	ctx := context.Background()
	store := fake.New()
	c := New(store, Options{})
	seed := []*backing.Request{
		backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth"),
		backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth/act").
			WithHeader("X-Container-Meta-Account-Id", "AUTH_cfa"),
		backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth/act/usr").
			WithBody([]byte(`{"auth":"plaintext:key"}`)),
	}
	for _, r := range seed {
		res, err := c.Do(ctx, r)
		if err != nil || !res.OK() {
			t.Fatalf("seeding %s %s: %v %v", r.Method, r.Path, res, err)
		}
	}

	res, err := c.Do(ctx, backing.NewRequest(http.MethodGet, "/v1/AUTH_.auth/act/usr"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Body) != `{"auth":"plaintext:key"}` {
		t.Errorf("body = %q", res.Body)
	}

	res, err = c.Do(ctx, backing.NewRequest(http.MethodHead, "/v1/AUTH_.auth/act"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Header.Get("X-Container-Meta-Account-Id") != "AUTH_cfa" {
		t.Errorf("container metadata lost: %v", res.Header)
	}
}

func TestDoTimesOut(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.WriteHeader(http.StatusOK)
	})
	c := New(next, Options{NodeTimeout: 10 * time.Millisecond})
	if _, err := c.Do(context.Background(), backing.NewRequest(http.MethodGet, "/v1/AUTH_.auth")); err == nil {
		t.Fatal("expected timeout error")
	}
}
