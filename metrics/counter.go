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
	dto "github.com/prometheus/client_model/go"
)

// ValueGetter reads back the current value of a collector, mostly for logs and tests.
type ValueGetter interface {
	GetValue() float64
	// GetValueUint64 truncates the value, negative values read as 0.
	GetValueUint64() uint64
}

type Counter interface {
	prometheus.Counter
	ValueGetter
	// AddInt and AddUint64 go through float64, values above 2^53 lose precision.
	AddInt(v int)
	AddUint64(v uint64)
}

type counter struct {
	prometheus.Counter
}

func (c *counter) GetValue() float64 {
	return readValue(c.Counter, func(m *dto.Metric) float64 { return m.GetCounter().GetValue() })
}

func (c *counter) GetValueUint64() uint64 { return toUint64(c.GetValue()) }

func (c *counter) AddInt(v int) { c.Add(float64(v)) }

func (c *counter) AddUint64(v uint64) { c.Add(float64(v)) }

// readValue writes m into a dto.Metric and picks the value out of it.
// A metric that fails to write is a programming error.
func readValue(m prometheus.Metric, pick func(*dto.Metric) float64) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		panic(fmt.Errorf("metrics: can't read %s: %w", m.Desc(), err))
	}
	return pick(&out)
}

func toUint64(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(v)
}
