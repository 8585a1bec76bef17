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

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/openstack-archive/swauth/pkg/backing"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context, force bool) (string, error) {
	return string(s), nil
}

func TestNewRejectsBadBase(t *testing.T) {
	for _, bad := range []string{"://", "host:8080", ""} {
		if _, err := New(bad, Options{Tokens: staticTokens("t")}); err == nil {
			t.Errorf("expected error for base %q", bad)
		}
	}
}

func TestDo(t *testing.T) {
	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("X-Container-Meta-Account-Id", "AUTH_cfa")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c, err := New(ts.URL+"/", Options{Tokens: staticTokens("AUTH_itk1234")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := url.Values{}
	q.Set("format", "json")
	res, err := c.Do(context.Background(), &backing.Request{
		Method: http.MethodGet,
		Path:   "/v1/AUTH_.auth/act",
		Query:  q,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `[]` {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.Body)
	}
	if res.Header.Get("X-Container-Meta-Account-Id") != "AUTH_cfa" {
		t.Errorf("response header lost: %v", res.Header)
	}
	if got.URL.Path != "/v1/AUTH_.auth/act" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if got.URL.Query().Get("format") != "json" {
		t.Errorf("query = %q", got.URL.RawQuery)
	}
	if got.Header.Get("X-Auth-Token") != "AUTH_itk1234" {
		t.Errorf("internal token header = %q", got.Header.Get("X-Auth-Token"))
	}
	if got.Header.Get("User-Agent") != "Swauth" {
		t.Errorf("user agent = %q", got.Header.Get("User-Agent"))
	}
}
