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

package shttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestShiftPath(t *testing.T) {
	tests := map[string]struct {
		path string
		head string
		tail string
	}{
		"empty": {
			path: "",
			head: "",
			tail: "/",
		},
		"root": {
			path: "/",
			head: "",
			tail: "/",
		},
		"single": {
			path: "/metrics",
			head: "metrics",
			tail: "/",
		},
		"nested": {
			path: "/auth/v2/act/usr",
			head: "auth",
			tail: "/v2/act/usr",
		},
		"trailing_slash": {
			path: "/v1/AUTH_test/",
			head: "v1",
			tail: "/AUTH_test",
		},
		"relative_components": {
			path: "/a/../b/c",
			head: "b",
			tail: "/c",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			head, tail := ShiftPath(test.path)
			if head != test.head || tail != test.tail {
				t.Fatalf("got head=%q tail=%q instead of head=%q tail=%q", head, tail, test.head, test.tail)
			}
		})
	}
}

type testSvc struct {
	prefix  string
	handler http.Handler
	closed  bool
}

func (s *testSvc) Handler() http.Handler { return s.handler }
func (s *testSvc) Prefix() string        { return s.prefix }
func (s *testSvc) Close() error          { s.closed = true; return nil }

func echoPath() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})
}

func register(t *testing.T, name, prefix string) *testSvc {
	t.Helper()
	svc := &testSvc{prefix: prefix, handler: echoPath()}
	Register(name, func(conf map[string]interface{}) (Service, error) {
		return svc, nil
	})
	t.Cleanup(func() { delete(Services, name) })
	return svc
}

func newTestServer(t *testing.T, conf map[string]interface{}) *Server {
	t.Helper()
	s, err := New(conf, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.registerServices(); err != nil {
		t.Fatalf("registerServices: %v", err)
	}
	if err := s.registerMiddlewares(); err != nil {
		t.Fatalf("registerMiddlewares: %v", err)
	}
	return s
}

func TestRoutingByPrefix(t *testing.T) {
	register(t, "testmetrics", "metrics")
	register(t, "testroot", "")

	s := newTestServer(t, map[string]interface{}{
		"enabled_services": []string{"testmetrics", "testroot"},
	})
	h := s.getHandler()

	tests := map[string]struct {
		url  string
		body string
	}{
		"prefixed":        {url: "/metrics", body: "/"},
		"prefixed_nested": {url: "/metrics/sub", body: "/sub"},
		"root_storage":    {url: "/v1/AUTH_test/c/o", body: "/v1/AUTH_test/c/o"},
		"root_bare":       {url: "/v1", body: "/v1"},
		"root_slash":      {url: "/", body: "/"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, test.url, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if got := w.Body.String(); got != test.body {
				t.Fatalf("routed path = %q instead of %q", got, test.body)
			}
		})
	}
}

func TestRoutingNotFoundWithoutRootService(t *testing.T) {
	register(t, "testmetrics", "metrics")

	s := newTestServer(t, map[string]interface{}{
		"enabled_services": []string{"testmetrics"},
	})
	h := s.getHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/AUTH_test", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d instead of 404", w.Code)
	}
}

func TestDisabledServiceNotRouted(t *testing.T) {
	register(t, "testmetrics", "metrics")

	s := newTestServer(t, map[string]interface{}{
		"enabled_services": []string{},
	})
	h := s.getHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d instead of 404", w.Code)
	}
}

func TestMiddlewareChainOrder(t *testing.T) {
	register(t, "testroot", "")

	var order []string
	tag := func(name string) Middleware {
		return func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				h.ServeHTTP(w, r)
			})
		}
	}
	RegisterMiddleware("testlow", func(conf map[string]interface{}) (Middleware, int, error) {
		return tag("low"), 10, nil
	})
	RegisterMiddleware("testhigh", func(conf map[string]interface{}) (Middleware, int, error) {
		return tag("high"), 100, nil
	})
	t.Cleanup(func() {
		delete(NewMiddlewares, "testlow")
		delete(NewMiddlewares, "testhigh")
	})

	s := newTestServer(t, map[string]interface{}{
		"enabled_services":    []string{"testroot"},
		"enabled_middlewares": []string{"testlow", "testhigh"},
	})
	h := s.getHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/AUTH_test", nil))

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("middleware order = %v, want [high low]", order)
	}
}

func TestContextMiddlewareSetsTransactionID(t *testing.T) {
	register(t, "testroot", "")

	s := newTestServer(t, map[string]interface{}{
		"enabled_services": []string{"testroot"},
	})
	h := s.getHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/AUTH_test", nil))
	if w.Header().Get("X-Trans-Id") == "" {
		t.Fatal("expected a transaction id header on the response")
	}

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/AUTH_test", nil)
	r.Header.Set("X-Trans-Id", "txupstream")
	h.ServeHTTP(w, r)
	if got := w.Header().Get("X-Trans-Id"); got != "txupstream" {
		t.Fatalf("transaction id = %q, want the upstream one", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	s, err := New(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Network() != "tcp" {
		t.Fatalf("network = %q", s.Network())
	}
	if s.Address() == "" {
		t.Fatal("expected a default address")
	}
}
