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

// Package metrics exposes every registered collector provider in the
// Prometheus text format. The domain counters and the HTTP handler metrics
// register themselves as providers; this service gathers them into one
// registry next to the usual runtime collectors.
package metrics

import (
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	promregistry "github.com/openstack-archive/swauth/pkg/prom/registry"
	"github.com/openstack-archive/swauth/pkg/shttp"
)

func init() {
	shttp.Register("metrics", New)
}

type config struct {
	Prefix string `mapstructure:"prefix"`
}

func (c *config) init() {
	if c.Prefix == "" {
		c.Prefix = "metrics"
	}
}

type svc struct {
	prefix string
	h      http.Handler
}

// New returns the metrics exposition service.
func New(m map[string]interface{}) (shttp.Service, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, errors.Wrap(err, "metrics: error decoding conf")
	}
	conf.init()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for name, newFunc := range promregistry.NewFuncs {
		cols, err := newFunc(m)
		if err != nil {
			return nil, errors.Wrapf(err, "metrics: error creating %s collectors", name)
		}
		for _, col := range cols {
			if err := registry.Register(col); err != nil {
				return nil, errors.Wrapf(err, "metrics: error registering %s collectors", name)
			}
		}
	}

	h := promhttp.InstrumentMetricHandler(registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &svc{prefix: conf.Prefix, h: h}, nil
}

func (s *svc) Prefix() string {
	return s.prefix
}

func (s *svc) Handler() http.Handler {
	return s.h
}

func (s *svc) Close() error {
	return nil
}
