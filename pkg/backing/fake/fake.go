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

// Package fake is an in-memory object store for tests. It speaks just
// enough of the storage API that the auth state machinery can run against
// it: account, container and object CRUD, metadata on POST, and marker
// paginated JSON listings. It doubles as an http.Handler so it can sit at
// the end of an in-process pipeline.
package fake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/openstack-archive/swauth/pkg/backing"
)

type object struct {
	meta http.Header
	body []byte
}

type container struct {
	meta    http.Header
	objects map[string]*object
}

type account struct {
	meta       http.Header
	containers map[string]*container
}

// Store is an in-memory object store.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account

	// Intercept, when set, may hijack a call by returning a nonzero
	// status for it. Used to script failures.
	Intercept func(method, path string) int
}

// New returns an empty Store.
func New() *Store {
	return &Store{accounts: make(map[string]*account)}
}

// Do implements backing.Client.
func (s *Store) Do(_ context.Context, r *backing.Request) (*backing.Response, error) {
	return s.handle(r.Method, r.Path, r.Query, r.Header, r.Body), nil
}

// ServeHTTP implements http.Handler for pipeline use.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	res := s.handle(r.Method, r.URL.Path, r.URL.Query(), r.Header, body)
	for k, vv := range res.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

// Object returns a stored object, if present.
func (s *Store) Object(acct, cont, obj string) ([]byte, http.Header, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return nil, nil, false
	}
	c, ok := a.containers[cont]
	if !ok {
		return nil, nil, false
	}
	o, ok := c.objects[obj]
	if !ok {
		return nil, nil, false
	}
	return o.body, o.meta.Clone(), true
}

// ContainerMeta returns the metadata of a stored container, if present.
func (s *Store) ContainerMeta(acct, cont string) (http.Header, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[acct]
	if !ok {
		return nil, false
	}
	c, ok := a.containers[cont]
	if !ok {
		return nil, false
	}
	return c.meta.Clone(), true
}

func (s *Store) handle(method, path string, query url.Values, header http.Header, body []byte) *backing.Response {
	if s.Intercept != nil {
		if st := s.Intercept(method, path); st != 0 {
			return status(st)
		}
	}
	segs := strings.SplitN(strings.Trim(path, "/"), "/", 4)
	if len(segs) < 2 || segs[0] != "v1" {
		return status(http.StatusBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch len(segs) {
	case 2:
		return s.account(method, segs[1], query, header)
	case 3:
		return s.container(method, segs[1], segs[2], query, header)
	default:
		return s.object(method, segs[1], segs[2], segs[3], header, body)
	}
}

func (s *Store) account(method, acct string, query url.Values, header http.Header) *backing.Response {
	a := s.accounts[acct]
	switch method {
	case http.MethodPut:
		if a == nil {
			s.accounts[acct] = &account{meta: pickMeta(header, "X-Account-Meta-"), containers: make(map[string]*container)}
			return status(http.StatusCreated)
		}
		mergeMeta(a.meta, header, "X-Account-Meta-")
		return status(http.StatusAccepted)
	case http.MethodDelete:
		if a == nil {
			return status(http.StatusNotFound)
		}
		if len(a.containers) > 0 {
			return status(http.StatusConflict)
		}
		delete(s.accounts, acct)
		return status(http.StatusNoContent)
	case http.MethodHead:
		if a == nil {
			return status(http.StatusNotFound)
		}
		return &backing.Response{StatusCode: http.StatusNoContent, Header: a.meta.Clone()}
	case http.MethodGet:
		if a == nil {
			return status(http.StatusNotFound)
		}
		names := make([]string, 0, len(a.containers))
		for name := range a.containers {
			names = append(names, name)
		}
		return listing(names, query, a.meta)
	case http.MethodPost:
		if a == nil {
			return status(http.StatusNotFound)
		}
		mergeMeta(a.meta, header, "X-Account-Meta-")
		return status(http.StatusNoContent)
	}
	return status(http.StatusMethodNotAllowed)
}

func (s *Store) container(method, acct, cont string, query url.Values, header http.Header) *backing.Response {
	a := s.accounts[acct]
	if a == nil {
		return status(http.StatusNotFound)
	}
	c := a.containers[cont]
	switch method {
	case http.MethodPut:
		if c == nil {
			a.containers[cont] = &container{meta: pickMeta(header, "X-Container-Meta-"), objects: make(map[string]*object)}
			return status(http.StatusCreated)
		}
		mergeMeta(c.meta, header, "X-Container-Meta-")
		return status(http.StatusAccepted)
	case http.MethodDelete:
		if c == nil {
			return status(http.StatusNotFound)
		}
		if len(c.objects) > 0 {
			return status(http.StatusConflict)
		}
		delete(a.containers, cont)
		return status(http.StatusNoContent)
	case http.MethodHead:
		if c == nil {
			return status(http.StatusNotFound)
		}
		return &backing.Response{StatusCode: http.StatusNoContent, Header: c.meta.Clone()}
	case http.MethodGet:
		if c == nil {
			return status(http.StatusNotFound)
		}
		names := make([]string, 0, len(c.objects))
		for name := range c.objects {
			names = append(names, name)
		}
		return listing(names, query, c.meta)
	case http.MethodPost:
		if c == nil {
			return status(http.StatusNotFound)
		}
		mergeMeta(c.meta, header, "X-Container-Meta-")
		return status(http.StatusNoContent)
	}
	return status(http.StatusMethodNotAllowed)
}

func (s *Store) object(method, acct, cont, obj string, header http.Header, body []byte) *backing.Response {
	a := s.accounts[acct]
	if a == nil {
		return status(http.StatusNotFound)
	}
	c := a.containers[cont]
	if c == nil {
		return status(http.StatusNotFound)
	}
	o := c.objects[obj]
	switch method {
	case http.MethodPut:
		c.objects[obj] = &object{meta: pickMeta(header, "X-Object-Meta-"), body: append([]byte(nil), body...)}
		return status(http.StatusCreated)
	case http.MethodDelete:
		if o == nil {
			return status(http.StatusNotFound)
		}
		delete(c.objects, obj)
		return status(http.StatusNoContent)
	case http.MethodHead:
		if o == nil {
			return status(http.StatusNotFound)
		}
		return &backing.Response{StatusCode: http.StatusOK, Header: o.meta.Clone()}
	case http.MethodGet:
		if o == nil {
			return status(http.StatusNotFound)
		}
		return &backing.Response{StatusCode: http.StatusOK, Header: o.meta.Clone(), Body: append([]byte(nil), o.body...)}
	case http.MethodPost:
		if o == nil {
			return status(http.StatusNotFound)
		}
		mergeMeta(o.meta, header, "X-Object-Meta-")
		return status(http.StatusAccepted)
	}
	return status(http.StatusMethodNotAllowed)
}

func listing(names []string, query url.Values, meta http.Header) *backing.Response {
	sort.Strings(names)
	marker := query.Get("marker")
	entries := make([]backing.ListEntry, 0, len(names))
	for _, name := range names {
		if marker != "" && name <= marker {
			continue
		}
		entries = append(entries, backing.ListEntry{Name: name})
	}
	body, _ := json.Marshal(entries)
	h := meta.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return &backing.Response{StatusCode: http.StatusOK, Header: h, Body: body}
}

func pickMeta(header http.Header, prefix string) http.Header {
	meta := http.Header{}
	mergeMeta(meta, header, prefix)
	return meta
}

func mergeMeta(dst, src http.Header, prefix string) {
	for k, vv := range src {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		dst.Set(k, vv[len(vv)-1])
	}
}

func status(code int) *backing.Response {
	return &backing.Response{StatusCode: code, Header: http.Header{}}
}
