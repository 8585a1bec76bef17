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

// Package proxy forwards storage traffic to the object store cluster. It
// stands in for the cluster's own request pipeline: before forwarding it
// looks up the container rules a request falls under, fills the shared
// authorization state and calls the deferred authorization hook installed
// by the auth middleware. It owns the root prefix, so every request no
// other service claims ends up here.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/openstack-archive/swauth/pkg/appctx"
	"github.com/openstack-archive/swauth/pkg/authz"
	"github.com/openstack-archive/swauth/pkg/backing"
	"github.com/openstack-archive/swauth/pkg/cache"
	cacheregistry "github.com/openstack-archive/swauth/pkg/cache/registry"
	"github.com/openstack-archive/swauth/pkg/errtypes"
	"github.com/openstack-archive/swauth/pkg/httpclient"
	"github.com/openstack-archive/swauth/pkg/metrics"
	"github.com/openstack-archive/swauth/pkg/shttp"
)

func init() {
	shttp.Register("proxy", New)
}

type driverConfig struct {
	Driver  string                            `mapstructure:"driver"`
	Drivers map[string]map[string]interface{} `mapstructure:"drivers"`
}

type config struct {
	// DefaultSwiftCluster names the cluster behind this service, in the
	// same "name#publicUrl[#privateUrl]" form the auth middleware takes.
	// The private URL is where requests are forwarded.
	DefaultSwiftCluster string `mapstructure:"default_swift_cluster"`
	// Upstream overrides the forwarding target derived from the cluster,
	// for deployments where the private URL is not reachable from here.
	Upstream string `mapstructure:"upstream"`
	// TrustHeader, when set, is stamped onto internal subrequests so the
	// cluster can tell them apart, and stripped from everything a client
	// sends. Leave empty when the private network is trusted as a whole.
	TrustHeader      string `mapstructure:"trust_header"`
	NodeTimeout      int    `mapstructure:"node_timeout"`
	ContainerRecheck int    `mapstructure:"container_recheck"`
	Realm            string `mapstructure:"realm"`

	Cache driverConfig `mapstructure:"cache"`
}

func (c *config) init() {
	if c.DefaultSwiftCluster == "" {
		c.DefaultSwiftCluster = "local#http://127.0.0.1:8080/v1"
	}
	if c.NodeTimeout == 0 {
		c.NodeTimeout = 10
	}
	if c.ContainerRecheck == 0 {
		c.ContainerRecheck = 60
	}
	if c.Realm == "" {
		c.Realm = "Swauth"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
}

type svc struct {
	conf    *config
	target  *url.URL
	forward *httputil.ReverseProxy
	hc      *httpclient.Client
	infos   cache.Cache
	recheck time.Duration
}

// New returns the storage passthrough service.
func New(m map[string]interface{}) (shttp.Service, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, errors.Wrap(err, "proxy: error decoding conf")
	}
	conf.init()

	cluster, err := backing.ParseCluster(conf.DefaultSwiftCluster)
	if err != nil {
		return nil, err
	}
	// Request paths carry the /v1 prefix already, so the forwarding target
	// is the cluster URL above the API version.
	base := strings.TrimSuffix(cluster.PrivateURL, "/v1")
	if conf.Upstream != "" {
		base = strings.TrimRight(conf.Upstream, "/")
	}
	target, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "proxy: parsing upstream url %s", base)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errtypes.ConfigurationError("proxy: upstream url has no scheme or host: " + base)
	}

	newCache, ok := cacheregistry.NewFuncs[conf.Cache.Driver]
	if !ok {
		return nil, fmt.Errorf("cache driver not found: %s", conf.Cache.Driver)
	}
	infos, err := newCache(conf.Cache.Drivers[conf.Cache.Driver])
	if err != nil {
		return nil, err
	}

	nodeTimeout := time.Duration(conf.NodeTimeout) * time.Second
	forward := httputil.NewSingleHostReverseProxy(target)
	forward.Transport = &http.Transport{ResponseHeaderTimeout: nodeTimeout}
	forward.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		appctx.GetLogger(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("proxy: upstream unreachable")
		w.WriteHeader(http.StatusBadGateway)
	}

	return &svc{
		conf:    conf,
		target:  target,
		forward: forward,
		hc:      httpclient.New(httpclient.Timeout(nodeTimeout)),
		infos:   infos,
		recheck: time.Duration(conf.ContainerRecheck) * time.Second,
	}, nil
}

func (s *svc) Prefix() string {
	return ""
}

func (s *svc) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

func (s *svc) Close() error {
	s.hc.CloseIdleConnections()
	if t, ok := s.forward.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (s *svc) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The trust header means something only on the private side; whatever
	// a client sent under that name is dropped.
	if s.conf.TrustHeader != "" {
		r.Header.Del(s.conf.TrustHeader)
	}

	r.Host = s.target.Host

	if authz.IsPreAuthorized(ctx) {
		if s.conf.TrustHeader != "" {
			r.Header.Set(s.conf.TrustHeader, "true")
		}
		s.forward.ServeHTTP(w, r)
		return
	}

	hook, hasHook := authz.ContextGetHook(ctx)
	if !hasHook {
		// no hook means another layer already settled authorization
		s.forward.ServeHTTP(w, r)
		return
	}

	_, account, container, obj, err := authz.SplitStoragePath(r.URL.Path)
	if err != nil || account == "" {
		// not a storage path, the cluster answers for it
		s.forward.ServeHTTP(w, r)
		return
	}

	state, hasState := authz.ContextGetState(ctx)

	// Container creates and updates carry ACL headers, which are validated
	// and normalized before authorization runs.
	if hasState && state.CleanACL != nil && container != "" && obj == "" &&
		(r.Method == http.MethodPut || r.Method == http.MethodPost) {
		for _, h := range []string{"X-Container-Read", "X-Container-Write"} {
			v := r.Header.Get(h)
			if v == "" {
				continue
			}
			cleaned, err := state.CleanACL(h, v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			r.Header.Set(h, cleaned)
		}
	}

	if hasState && container != "" {
		s.fillContainerState(r, state, account, container, obj)
	}

	if err := hook(r); err != nil {
		s.deny(w, r, err)
		return
	}
	metrics.AuthzDecisions.WithLabelValues("allowed").Inc()
	s.forward.ServeHTTP(w, r)
}

// fillContainerState loads the ACL and sync key applying to the request.
// Reads fall under the container read ACL; object writes fall under the
// write ACL and may authenticate by sync key. Container-level writes stay
// owner-only, so no ACL applies to them. A failed lookup leaves the state
// empty and the ownership checks decide alone.
func (s *svc) fillContainerState(r *http.Request, state *authz.State, account, container, obj string) {
	read := r.Method == http.MethodGet || r.Method == http.MethodHead
	if !read && obj == "" {
		return
	}
	info, err := s.containerInfo(r.Context(), account, container)
	if err != nil {
		appctx.GetLogger(r.Context()).Debug().Err(err).
			Str("account", account).Str("container", container).
			Msg("proxy: no container rules")
		return
	}
	if read {
		state.ACL = info.Read
	} else {
		state.ACL = info.Write
		state.SyncKey = info.SyncKey
	}
}

type containerInfo struct {
	Read    string `json:"read"`
	Write   string `json:"write"`
	SyncKey string `json:"sync_key"`
}

// containerInfo returns the container's ACLs and sync key, cached briefly
// so hot containers do not cost one extra round trip per request.
func (s *svc) containerInfo(ctx context.Context, account, container string) (*containerInfo, error) {
	key := "swauth_cont/" + account + "/" + container
	if s.recheck > 0 {
		if raw, ok, err := s.infos.Get(ctx, key); err == nil && ok {
			info := &containerInfo{}
			if err := json.Unmarshal([]byte(raw), info); err == nil {
				return info, nil
			}
		}
	}

	u := *s.target
	u.Path = path.Join(u.Path, "v1", account, container)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "proxy: building container lookup %s/%s", account, container)
	}
	if s.conf.TrustHeader != "" {
		req.Header.Set(s.conf.TrustHeader, "true")
	}
	res, err := s.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "proxy: container lookup %s/%s", account, container)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return nil, errtypes.NotFound(account + "/" + container)
	}

	info := &containerInfo{
		Read:    res.Header.Get("X-Container-Read"),
		Write:   res.Header.Get("X-Container-Write"),
		SyncKey: res.Header.Get("X-Container-Sync-Key"),
	}
	if s.recheck > 0 {
		if raw, err := json.Marshal(info); err == nil {
			_ = s.infos.Set(ctx, key, string(raw), s.recheck)
		}
	}
	return info, nil
}

// deny maps a hook denial onto the wire: anonymous callers get the
// challenge, authenticated ones a plain forbidden.
func (s *svc) deny(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusForbidden
	outcome := "denied"
	switch errors.Cause(err).(type) {
	case errtypes.UserRequired:
		w.Header().Set("WWW-Authenticate", `Swauth realm="`+s.conf.Realm+`"`)
		status = http.StatusUnauthorized
		outcome = "unauthorized"
	case errtypes.NotFound:
		status = http.StatusNotFound
	}
	metrics.AuthzDecisions.WithLabelValues(outcome).Inc()
	appctx.GetLogger(r.Context()).Debug().Err(err).
		Str("method", r.Method).Str("path", r.URL.Path).
		Msg("proxy: request denied")
	http.Error(w, http.StatusText(status), status)
}
