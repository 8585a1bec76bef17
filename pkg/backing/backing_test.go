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

package backing_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/backing/fake"
	"github.com/openstack-archive/swauth/pkg/errtypes"
)

func TestParseCluster(t *testing.T) {
	c, err := backing.ParseCluster("local#http://host/v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "local" || c.PublicURL != "http://host/v1" || c.PrivateURL != "http://host/v1" {
		t.Fatalf("unexpected cluster: %+v", c)
	}

	c, err = backing.ParseCluster("dfw#https://dfw.example/v1/#http://10.0.0.1:8080/v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.PublicURL != "https://dfw.example/v1" {
		t.Errorf("public url not trimmed: %q", c.PublicURL)
	}
	if c.PrivateURL != "http://10.0.0.1:8080/v1" {
		t.Errorf("wrong private url: %q", c.PrivateURL)
	}

	for _, bad := range []string{"local", "local#ftp://host/v1", "#http://host/v1#x#y"} {
		if _, err := backing.ParseCluster(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func isNotFound(err error) bool {
	_, ok := err.(errtypes.IsNotFound)
	return ok
}

func isPermissionDenied(err error) bool {
	_, ok := err.(errtypes.IsPermissionDenied)
	return ok
}

func isConflict(err error) bool {
	_, ok := err.(errtypes.IsConflict)
	return ok
}

func isPreconditionFailed(err error) bool {
	_, ok := err.(errtypes.IsPreconditionFailed)
	return ok
}

func isInternalError(err error) bool {
	_, ok := err.(errtypes.IsInternalError)
	return ok
}

func TestStatusErr(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusOK, func(err error) bool { return err == nil }},
		{http.StatusNoContent, func(err error) bool { return err == nil }},
		{http.StatusNotFound, isNotFound},
		{http.StatusUnauthorized, isPermissionDenied},
		{http.StatusForbidden, isPermissionDenied},
		{http.StatusConflict, isConflict},
		{http.StatusPreconditionFailed, isPreconditionFailed},
		{http.StatusBadGateway, isInternalError},
	}
	for _, tt := range tests {
		err := backing.StatusErr(&backing.Response{StatusCode: tt.status}, "thing")
		if !tt.check(err) {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
	}
}

func TestRequestBuilders(t *testing.T) {
	r := backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth/act").
		WithHeader("X-Container-Meta-Account-Id", "AUTH_id").
		WithBody([]byte("body"))
	if r.Header.Get("X-Container-Meta-Account-Id") != "AUTH_id" {
		t.Error("header not set")
	}
	if string(r.Body) != "body" {
		t.Error("body not set")
	}
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	store := fake.New()
	put := func(r *backing.Request) {
		t.Helper()
		res, err := store.Do(ctx, r)
		if err != nil || !res.OK() {
			t.Fatalf("seeding %s %s: %v %v", r.Method, r.Path, res, err)
		}
	}
	put(backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth"))
	put(backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth/act").
		WithHeader("X-Container-Meta-Account-Id", "AUTH_cfa"))
	for _, name := range []string{"bob", "alice", ".services", "carol"} {
		put(backing.NewRequest(http.MethodPut, "/v1/AUTH_.auth/act/"+name))
	}

	entries, header, err := backing.ListAll(ctx, store, "/v1/AUTH_.auth/act")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{".services", "alice", "bob", "carol"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Name, name)
		}
	}
	if header.Get("X-Container-Meta-Account-Id") != "AUTH_cfa" {
		t.Errorf("listing header lost container metadata: %v", header)
	}

	if _, _, err := backing.ListAll(ctx, store, "/v1/AUTH_.auth/missing"); !isNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
