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

// Package backing performs subrequests against the backing object store,
// where all auth state lives. Requests against the auth account go through
// a Client; provisioning calls against service accounts on other clusters
// go through External with the internal token.
package backing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/errtypes"
)

// Request is one subrequest against the backing store.
type Request struct {
	Method string
	// Path is the storage path, e.g. /v1/AUTH_.auth/act/usr.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the outcome of a subrequest, fully buffered.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs subrequests against the backing store.
type Client interface {
	Do(ctx context.Context, r *Request) (*Response, error)
}

// TokenSource provides a live internal token for calls that leave the
// pre-authorized path.
type TokenSource interface {
	// Token returns the current internal token, minting a new one when the
	// old one expired or force is set.
	Token(ctx context.Context, force bool) (string, error)
}

// NewRequest returns a request with an initialized header map.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: http.Header{}}
}

// WithBody sets the request body.
func (r *Request) WithBody(b []byte) *Request {
	r.Body = b
	return r
}

// WithHeader sets a header value.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(key, value)
	return r
}

// OK reports whether the response status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusErr maps a non-2xx status to a typed error, nil otherwise.
func StatusErr(res *Response, what string) error {
	switch {
	case res.OK():
		return nil
	case res.StatusCode == http.StatusNotFound:
		return errtypes.NotFound(what)
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return errtypes.PermissionDenied(what)
	case res.StatusCode == http.StatusConflict:
		return errtypes.Conflict(what)
	case res.StatusCode == http.StatusPreconditionFailed:
		return errtypes.PreconditionFailed(what)
	default:
		return errtypes.InternalError(fmt.Sprintf("%s: status %d", what, res.StatusCode))
	}
}

// ListEntry is one row of an account or container listing.
type ListEntry struct {
	Name         string `json:"name"`
	LastModified string `json:"last_modified"`
}

// ListAll pages through a listing until an empty page comes back, using the
// name of the last entry as the next marker. The returned header is the one
// of the last page, so callers can read container metadata alongside the
// listing.
func ListAll(ctx context.Context, c Client, path string) ([]ListEntry, http.Header, error) {
	var listing []ListEntry
	marker := ""
	for {
		q := url.Values{}
		q.Set("format", "json")
		q.Set("marker", marker)
		res, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: q})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "backing: listing %s", path)
		}
		if err := StatusErr(res, path); err != nil {
			return nil, nil, err
		}
		var page []ListEntry
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, nil, errors.Wrapf(err, "backing: decoding listing of %s", path)
		}
		if len(page) == 0 {
			return listing, res.Header, nil
		}
		listing = append(listing, page...)
		marker = page[len(page)-1].Name
	}
}

// Cluster is one storage cluster accounts can live on. The public URL is
// handed to clients in service documents; the private URL, when it differs,
// is what the auth system itself provisions accounts through.
type Cluster struct {
	Name       string
	PublicURL  string
	PrivateURL string
}

// ParseCluster parses the "<name>#<publicUrl>[#<privateUrl>]" cluster
// notation. Without a private URL the public one is used for both sides.
func ParseCluster(s string) (*Cluster, error) {
	parts := strings.SplitN(s, "#", 3)
	if len(parts) < 2 {
		return nil, errtypes.BadRequest("invalid cluster format: " + s)
	}
	c := &Cluster{Name: parts[0]}
	c.PublicURL = strings.TrimRight(parts[1], "/")
	if len(parts) == 3 {
		c.PrivateURL = strings.TrimRight(parts[2], "/")
	} else {
		c.PrivateURL = c.PublicURL
	}
	for _, u := range []string{c.PublicURL, c.PrivateURL} {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, errtypes.BadRequest("invalid cluster url: " + u)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, errtypes.BadRequest(fmt.Sprintf("cannot handle protocol scheme %s for url %s", parsed.Scheme, u))
		}
	}
	return c, nil
}
