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

	"github.com/prometheus/client_golang/prometheus"
)

// GetOrCreateCounter returns registered counter with the given name
// or creates new counter if the registry doesn't contain counter with
// the given name.
//
// name must be valid Prometheus-compatible metric with possible labels.
// For instance,
//
//   - foo
//   - foo{bar="baz"}
//   - foo{bar="baz",aaa="b"}
//
// The returned counter is safe to use from concurrent goroutines.
func GetOrCreateCounter(name string, help ...string) Counter {
	c, err := defaultSet.GetOrCreateCounter(name, help...)
	if err != nil {
		panic(fmt.Errorf("could not get or create new counter: %w", err))
	}

	return &counter{c}
}

// GetOrCreateGauge returns registered gauge with the given name
// or creates new gauge if the registry doesn't contain gauge with
// the given name.
//
// name must be valid Prometheus-compatible metric with possible labels.
//
// The returned gauge is safe to use from concurrent goroutines.
func GetOrCreateGauge(name string, help ...string) Gauge {
	g, err := defaultSet.GetOrCreateGauge(name, help...)
	if err != nil {
		panic(fmt.Errorf("could not get or create new gauge: %w", err))
	}

	return &gauge{g}
}

// DefaultRegistry is the registry behind the package-level constructors.
func DefaultRegistry() *prometheus.Registry { return defaultSet.Registry() }
