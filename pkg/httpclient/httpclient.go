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

// Package httpclient wraps http.Client for outbound calls to clusters and
// remote auth services. It forces a context on every request and propagates
// the transaction id so remote logs can be correlated with ours.
package httpclient

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/reqid"
)

// New returns an HTTP client built from the given options.
func New(opts ...Option) *Client {
	options := newOptions(opts...)

	var tr http.RoundTripper
	if options.RoundTripper == nil {
		tr = &injectTransport{rt: http.DefaultTransport}
	} else {
		tr = &injectTransport{rt: options.RoundTripper}
	}

	httpClient := &http.Client{
		Timeout:   options.Timeout,
		Transport: tr,
	}

	return &Client{c: httpClient}
}

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Timeout      time.Duration
	RoundTripper http.RoundTripper
}

// newOptions initializes the available default options.
func newOptions(opts ...Option) Options {
	opt := Options{}

	for _, o := range opts {
		o(&opt)
	}

	return opt
}

// Timeout provides a function to set the timeout option.
func Timeout(t time.Duration) Option {
	return func(o *Options) {
		o.Timeout = t
	}
}

// RoundTripper provides a function to set a custom RoundTripper.
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *Options) {
		o.RoundTripper = rt
	}
}

// Client wraps a http.Client but only exposes the Do method
// to force consumers to always create a request with
// http.NewRequestWithContext().
type Client struct {
	c *http.Client
}

// Do performs the request. Requests without a context are rejected.
func (c *Client) Do(r *http.Request) (*http.Response, error) {
	if r.Context() == nil {
		return nil, errors.New("error: request must have a context")
	}
	return c.c.Do(r)
}

// CloseIdleConnections closes idle connections held by the transport.
func (c *Client) CloseIdleConnections() {
	c.c.CloseIdleConnections()
}

type injectTransport struct {
	rt http.RoundTripper
}

func (t injectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if id, ok := reqid.ContextGetReqID(r.Context()); ok {
		r.Header.Set(reqid.ReqIDHeaderName, id)
	}
	return t.rt.RoundTrip(r)
}
