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

// Package shttp provides the HTTP server that hosts the auth system.
// Services own a URL prefix and register themselves at init time;
// middlewares wrap every request and are chained by priority. Requests
// whose first path segment matches no service prefix fall through to the
// service registered at the root, which is how storage traffic reaches
// the cluster proxy.
package shttp

import (
	"context"
	"net"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openstack-archive/swauth/internal/http/interceptors/appctx"
)

// Service is an HTTP service serving one URL prefix.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
}

// NewService is the function that HTTP services register at init time.
type NewService func(conf map[string]interface{}) (Service, error)

// Services is a map of service name and its new function.
var Services = map[string]NewService{}

// Register registers a new HTTP service with name and new function.
// Not safe for concurrent use. Safe for use from package init.
func Register(name string, newFunc NewService) {
	Services[name] = newFunc
}

// Middleware is a middleware http handler.
type Middleware func(h http.Handler) http.Handler

// NewMiddleware is the function that HTTP middlewares register at init
// time. It returns the middleware and the priority it wants in the chain;
// higher priorities run closer to the client.
type NewMiddleware func(conf map[string]interface{}) (Middleware, int, error)

// NewMiddlewares is a map containing all the registered new middleware
// functions.
var NewMiddlewares = map[string]NewMiddleware{}

// RegisterMiddleware registers a new HTTP middleware and its new function.
// Not safe for concurrent use. Safe for use from package init.
func RegisterMiddleware(name string, n NewMiddleware) {
	NewMiddlewares[name] = n
}

// middlewareTriple represents a middleware with the
// priority to be chained.
type middlewareTriple struct {
	Name       string
	Priority   int
	Middleware Middleware
}

type config struct {
	Network            string                            `mapstructure:"network"`
	Address            string                            `mapstructure:"address"`
	Services           map[string]map[string]interface{} `mapstructure:"services"`
	EnabledServices    []string                          `mapstructure:"enabled_services"`
	Middlewares        map[string]map[string]interface{} `mapstructure:"middlewares"`
	EnabledMiddlewares []string                          `mapstructure:"enabled_middlewares"`
}

// Server contains the server info.
type Server struct {
	httpServer  *http.Server
	conf        *config
	listener    net.Listener
	svcs        map[string]Service // map key is svc Prefix
	handlers    map[string]http.Handler
	middlewares []*middlewareTriple
	log         zerolog.Logger
}

// New returns a new server with the given config section decoded into its
// network address and per-service, per-middleware configuration.
func New(m interface{}, log zerolog.Logger) (*Server, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, errors.Wrap(err, "shttp: error decoding conf")
	}

	if conf.Network == "" {
		conf.Network = "tcp"
	}

	if conf.Address == "" {
		conf.Address = "0.0.0.0:8080"
	}

	s := &Server{
		httpServer: &http.Server{},
		conf:       conf,
		svcs:       map[string]Service{},
		handlers:   map[string]http.Handler{},
		log:        log,
	}
	return s, nil
}

// Start instantiates the enabled services and middlewares and serves on
// the given listener until Stop or GracefulStop is called.
func (s *Server) Start(ln net.Listener) error {
	if err := s.registerServices(); err != nil {
		return err
	}

	if err := s.registerMiddlewares(); err != nil {
		return err
	}

	s.httpServer.Handler = s.getHandler()
	s.listener = ln

	s.log.Info().Msgf("http server listening at %s://%s", s.conf.Network, s.conf.Address)
	err := s.httpServer.Serve(s.listener)
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the services and shuts the server down, cutting active
// connections short.
func (s *Server) Stop() error {
	s.closeServices()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GracefulStop closes the services and lets in-flight requests finish.
func (s *Server) GracefulStop() error {
	s.closeServices()
	return s.httpServer.Shutdown(context.Background())
}

// Network returns the network type.
func (s *Server) Network() string {
	return s.conf.Network
}

// Address returns the network address.
func (s *Server) Address() string {
	return s.conf.Address
}

// A service cannot abort the shutdown; failures to close are only logged.
func (s *Server) closeServices() {
	for _, svc := range s.svcs {
		if err := svc.Close(); err != nil {
			s.log.Error().Err(err).Msgf("error closing service %q", svc.Prefix())
		} else {
			s.log.Info().Msgf("service %q correctly closed", svc.Prefix())
		}
	}
}

func (s *Server) isEnabled(svcName string) bool {
	for _, key := range s.conf.EnabledServices {
		if key == svcName {
			return true
		}
	}
	return false
}

func (s *Server) isMiddlewareEnabled(name string) bool {
	for _, key := range s.conf.EnabledMiddlewares {
		if key == name {
			return true
		}
	}
	return false
}

func (s *Server) registerMiddlewares() error {
	middlewares := []*middlewareTriple{}
	for name, newFunc := range NewMiddlewares {
		if s.isMiddlewareEnabled(name) {
			m, prio, err := newFunc(s.conf.Middlewares[name])
			if err != nil {
				return errors.Wrap(err, "shttp: error creating middleware: "+name)
			}
			middlewares = append(middlewares, &middlewareTriple{
				Name:       name,
				Priority:   prio,
				Middleware: m,
			})
			s.log.Info().Msgf("http middleware enabled: %s", name)
		}
	}
	s.middlewares = middlewares
	return nil
}

func (s *Server) registerServices() error {
	for svcName, newFunc := range Services {
		if s.isEnabled(svcName) {
			svc, err := newFunc(s.conf.Services[svcName])
			if err != nil {
				return errors.Wrap(err, "shttp: error creating service: "+svcName)
			}
			s.handlers[svc.Prefix()] = svc.Handler()
			s.svcs[svc.Prefix()] = svc
			s.log.Info().Msgf("http service enabled: %s@/%s", svcName, svc.Prefix())
		}
	}
	return nil
}

func (s *Server) getHandler() http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := s.log
		head, tail := ShiftPath(r.URL.Path)
		if h, ok := s.handlers[head]; ok {
			r.URL.Path = tail
			log.Debug().Msgf("http routing: head=%s tail=%s svc=%s", head, tail, head)
			h.ServeHTTP(w, r)
			return
		}

		// when a service is registered at the root it catches everything
		// without a dedicated prefix, storage requests among it.
		if h, ok := s.handlers[""]; ok {
			r.URL.Path = "/" + head + strings.TrimSuffix(tail, "/")
			log.Debug().Msgf("http routing: url=%s svc=root", r.URL.Path)
			h.ServeHTTP(w, r)
			return
		}

		log.Debug().Msgf("http routing: url=%s svc=not-found", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	// sort middlewares by priority.
	sort.SliceStable(s.middlewares, func(i, j int) bool {
		return s.middlewares[i].Priority > s.middlewares[j].Priority
	})

	handler := http.Handler(h)

	for i := len(s.middlewares) - 1; i >= 0; i-- {
		triple := s.middlewares[i]
		s.log.Info().Msgf("chaining http middleware %s with priority %d", triple.Name, triple.Priority)
		handler = triple.Middleware(handler)
	}

	// the context middleware always runs first, it cannot be disabled.
	handler = appctx.New(s.log)(handler)

	return handler
}

// ShiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash
// and tail will always be a rooted path without trailing slash.
func ShiftPath(p string) (head, tail string) {
	if p == "" {
		return "", "/"
	}
	p = strings.TrimPrefix(path.Clean(p), "/")
	i := strings.Index(p, "/")
	if i < 0 {
		return p, "/"
	}
	return p[:i], p[i:]
}
