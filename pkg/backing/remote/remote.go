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

// Package remote is a backing client that reaches the object store over
// HTTP. It serves deployments where the auth layer does not sit in front of
// the cluster it stores its state in, so subrequests cannot ride down an
// in-process pipeline.
package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/httpclient"
)

// Options configure a Client.
type Options struct {
	// NodeTimeout bounds each subrequest end to end.
	NodeTimeout time.Duration
	// Tokens supplies the internal token sent with every subrequest. The
	// receiving cluster must share the token cache for it to be honored.
	Tokens backing.TokenSource
}

// Client performs subrequests against a cluster base URL.
type Client struct {
	base   string
	hc     *httpclient.Client
	tokens backing.TokenSource
}

// New returns a Client against base, e.g. http://127.0.0.1:8080.
func New(base string, opts Options) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: parsing base url %s", base)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("remote: base url %s has no scheme or host", base)
	}
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		hc:     httpclient.New(httpclient.Timeout(opts.NodeTimeout)),
		tokens: opts.Tokens,
	}, nil
}

// Do performs one subrequest. The request path is joined onto the base URL
// and the internal token rides in the auth token header.
func (c *Client) Do(ctx context.Context, r *backing.Request) (*backing.Response, error) {
	tok, err := c.tokens.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	target := c.base + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}
	var rd io.Reader
	if r.Body != nil {
		rd = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, rd)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: building %s %s", r.Method, target)
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("X-Auth-Token", tok)
	req.Header.Set("User-Agent", "Swauth")
	if r.Body == nil {
		req.ContentLength = 0
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: calling %s %s", r.Method, target)
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: reading response of %s %s", r.Method, target)
	}
	return &backing.Response{StatusCode: res.StatusCode, Header: res.Header, Body: buf}, nil
}
