// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Set is a named collection of metrics backed by its own prometheus registry.
type Set struct {
	mu         sync.Mutex
	registry   *prometheus.Registry
	collectors map[string]prometheus.Collector
}

var defaultSet = NewSet()

func NewSet() *Set {
	return &Set{
		registry:   prometheus.NewRegistry(),
		collectors: map[string]prometheus.Collector{},
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP exporter.
func (s *Set) Registry() *prometheus.Registry { return s.registry }

func (s *Set) GetOrCreateCounter(name string, help ...string) (prometheus.Counter, error) {
	c, err := s.getOrCreate(name, func(opts prometheus.Opts) prometheus.Collector {
		return prometheus.NewCounter(prometheus.CounterOpts(opts))
	}, help...)
	if err != nil {
		return nil, err
	}
	counter, ok := c.(prometheus.Counter)
	if !ok {
		return nil, fmt.Errorf("metric %q is already registered with another type", name)
	}
	return counter, nil
}

func (s *Set) GetOrCreateGauge(name string, help ...string) (prometheus.Gauge, error) {
	c, err := s.getOrCreate(name, func(opts prometheus.Opts) prometheus.Collector {
		return prometheus.NewGauge(prometheus.GaugeOpts(opts))
	}, help...)
	if err != nil {
		return nil, err
	}
	gauge, ok := c.(prometheus.Gauge)
	if !ok {
		return nil, fmt.Errorf("metric %q is already registered with another type", name)
	}
	return gauge, nil
}

func (s *Set) getOrCreate(name string, newCollector func(prometheus.Opts) prometheus.Collector, help ...string) (prometheus.Collector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collectors[name]; ok {
		return c, nil
	}
	metricName, labels, err := parseMetric(name)
	if err != nil {
		return nil, err
	}
	c := newCollector(prometheus.Opts{
		Name:        metricName,
		Help:        strings.Join(help, " "),
		ConstLabels: labels,
	})
	if err := s.registry.Register(c); err != nil {
		return nil, err
	}
	s.collectors[name] = c
	return c, nil
}

// parseMetric splits `foo{bar="baz",aaa="b"}` into its name and constant labels.
func parseMetric(s string) (string, prometheus.Labels, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, "}") {
		return "", nil, fmt.Errorf("metric %q: missing closing brace", s)
	}
	labels := prometheus.Labels{}
	body := s[open+1 : len(s)-1]
	if body == "" {
		return s[:open], labels, nil
	}
	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
			return "", nil, fmt.Errorf("metric %q: malformed label %q", s, pair)
		}
		labels[strings.TrimSpace(k)] = v[1 : len(v)-1]
	}
	return s[:open], labels, nil
}
