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

// Package pipeline dispatches pre-authorized subrequests directly to the
// downstream storage handler, in process. This is how all reads and writes
// of the auth account happen: the subrequest is marked so the storage side
// skips authentication and authorization for it.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/authz"
	"github.com/openstack-archive/swauth/pkg/backing"
)

// userAgent identifies subrequests in the storage logs.
const userAgent = "Swauth"

// Options configures the pipeline client.
type Options struct {
	// NodeTimeout bounds each subrequest. Defaults to 10s.
	NodeTimeout time.Duration
	// StoragePolicy, when set, is stamped on every subrequest so
	// containers created by the auth system land on that policy.
	StoragePolicy string
}

// Client dispatches subrequests to a downstream handler.
type Client struct {
	next          http.Handler
	timeout       time.Duration
	storagePolicy string
}

// New returns a pipeline client over the downstream handler.
func New(next http.Handler, opts Options) *Client {
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = 10 * time.Second
	}
	return &Client{
		next:          next,
		timeout:       opts.NodeTimeout,
		storagePolicy: opts.StoragePolicy,
	}
}

// Do performs the subrequest and buffers the full response.
func (c *Client) Do(ctx context.Context, r *backing.Request) (*backing.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = authz.WithPreAuthorized(ctx)

	u := &url.URL{Path: r.Path}
	if r.Query != nil {
		u.RawQuery = r.Query.Encode()
	}
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: building subrequest %s %s", r.Method, r.Path)
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			hr.Header.Add(k, v)
		}
	}
	hr.Header.Set("User-Agent", userAgent)
	if c.storagePolicy != "" {
		hr.Header.Set("X-Storage-Policy", c.storagePolicy)
	}

	rec := newRecorder()
	c.next.ServeHTTP(rec, hr)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "pipeline: subrequest %s %s", r.Method, r.Path)
	}
	return rec.response(), nil
}

// recorder buffers the downstream response of a subrequest.
type recorder struct {
	status int
	header http.Header
	buf    bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.buf.Write(b)
}

func (r *recorder) response() *backing.Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &backing.Response{
		StatusCode: status,
		Header:     r.header,
		Body:       r.buf.Bytes(),
	}
}
