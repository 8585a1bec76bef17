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

package backing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/httpclient"
)

// External performs provisioning calls against absolute cluster URLs, such
// as creating or deleting the storage account behind an auth account. Every
// call carries the internal token so a peer running the same auth layer
// accepts it.
type External struct {
	hc     *httpclient.Client
	tokens TokenSource
}

// NewExternal returns an External using the given token source. timeout
// bounds each call end to end.
func NewExternal(tokens TokenSource, timeout time.Duration) *External {
	return &External{
		hc:     httpclient.New(httpclient.Timeout(timeout)),
		tokens: tokens,
	}
}

// Do performs one call against rawURL and returns the buffered response.
// Network failures and token minting failures come back as errors; HTTP
// error statuses do not, callers decide what each status means.
func (e *External) Do(ctx context.Context, method, rawURL string, body []byte) (*Response, error) {
	tok, err := e.tokens.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, errors.Wrapf(err, "backing: building %s %s", method, rawURL)
	}
	req.Header.Set("X-Auth-Token", tok)
	if body == nil {
		req.ContentLength = 0
	}
	res, err := e.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "backing: calling %s %s", method, rawURL)
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "backing: reading response of %s %s", method, rawURL)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: buf}, nil
}
