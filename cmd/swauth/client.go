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

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultEndpoint  = "http://127.0.0.1:8080/auth/"
	defaultAdminUser = ".super_admin"
)

// adminFlags installs the connection flags shared by every command that
// talks to the auth server.
func adminFlags(cmd *command) (endpoint, user, key *string) {
	endpoint = cmd.String("A", "", "administrative URL of the auth server (default "+defaultEndpoint+")")
	user = cmd.String("U", "", "administrative user (default "+defaultAdminUser+")")
	key = cmd.String("K", "", "administrative key")
	return
}

// adminClient talks to the administrative API under the auth prefix.
type adminClient struct {
	endpoint string
	user     string
	key      string
	hc       *http.Client
}

// resolveAdmin fills endpoint, user and key from the flag values, the
// configuration file and the built-in defaults, in that order. The key has
// no default: without one the server refuses every administrative call
// anyway.
func resolveAdmin(endpoint, user, key string) (string, string, string, error) {
	if endpoint == "" && conf != nil {
		endpoint = conf.Endpoint
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if user == "" && conf != nil {
		user = conf.AdminUser
	}
	if user == "" {
		user = defaultAdminUser
	}
	if key == "" && conf != nil {
		key = conf.AdminKey
	}
	if key == "" {
		return "", "", "", errors.New("admin key required: pass -K or run \"swauth configure\"")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", "", errors.Errorf("invalid administrative url %q", endpoint)
	}
	return endpoint, user, key, nil
}

func newAdminClient(endpoint, user, key string) (*adminClient, error) {
	endpoint, user, key, err := resolveAdmin(endpoint, user, key)
	if err != nil {
		return nil, err
	}
	return &adminClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		user:     user,
		key:      key,
		hc:       &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// do performs one administrative request. The path is relative to the auth
// prefix, e.g. /v2/act.
func (c *adminClient) do(ctx context.Context, method, pth string, hdr http.Header, body []byte) (int, http.Header, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+pth, rd)
	if err != nil {
		return 0, nil, nil, err
	}
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("X-Auth-Admin-User", c.user)
	req.Header.Set("X-Auth-Admin-Key", c.key)
	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return res.StatusCode, res.Header, buf, nil
}

// statusErr turns a non-2xx administrative response into an error carrying
// the server's message.
func statusErr(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("%s: %s (%d)", op, msg, status)
}

// grantSource obtains the internal token by authenticating as the super
// admin against the token grant endpoint, which special-cases the super
// admin and answers with the internal token and the auth account's storage
// URL.
type grantSource struct {
	endpoint string
	key      string
	hc       *http.Client

	mu         sync.Mutex
	token      string
	storageURL string
}

func newGrantSource(endpoint, key string, hc *http.Client) *grantSource {
	return &grantSource{endpoint: strings.TrimRight(endpoint, "/"), key: key, hc: hc}
}

// Token returns the internal token, authenticating on first use and
// whenever force is set.
func (s *grantSource) Token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !force {
		return s.token, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/v1.0", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Auth-User", defaultAdminUser+":"+defaultAdminUser)
	req.Header.Set("X-Auth-Key", s.key)
	res, err := s.hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "could not reach the auth server")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return "", errors.Errorf("could not obtain the internal token: %s", res.Status)
	}
	s.token = res.Header.Get("X-Auth-Token")
	s.storageURL = res.Header.Get("X-Storage-Url")
	if s.token == "" || s.storageURL == "" {
		return "", errors.New("token grant answered without a token or storage url")
	}
	return s.token, nil
}

// StorageURL returns the auth account's storage URL learned from the grant.
func (s *grantSource) StorageURL(ctx context.Context) (string, error) {
	if _, err := s.Token(ctx, false); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageURL, nil
}
