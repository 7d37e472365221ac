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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	name, labels, err := parseMetric(`txpool_moves{dir="up",pool="pending"}`)
	require.NoError(t, err)
	require.Equal(t, "txpool_moves", name)
	require.Equal(t, "up", labels["dir"])
	require.Equal(t, "pending", labels["pool"])

	name, labels, err = parseMetric("txpool_pending")
	require.NoError(t, err)
	require.Equal(t, "txpool_pending", name)
	require.Nil(t, labels)

	_, _, err = parseMetric(`txpool_moves{dir="up"`)
	require.Error(t, err)
	_, _, err = parseMetric(`txpool_moves{dir=up}`)
	require.Error(t, err)
}

func TestSetGetOrCreate(t *testing.T) {
	s := NewSet()
	c1, err := s.GetOrCreateCounter(`test_counter{a="b"}`)
	require.NoError(t, err)
	c2, err := s.GetOrCreateCounter(`test_counter{a="b"}`)
	require.NoError(t, err)
	require.Same(t, c1, c2)

	_, err = s.GetOrCreateGauge(`test_counter{a="b"}`)
	require.Error(t, err)

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
}

func TestCounterGauge(t *testing.T) {
	c := GetOrCreateCounter("test_default_counter")
	c.Inc()
	c.AddInt(2)
	c.AddUint64(3)
	require.Equal(t, uint64(6), c.GetValueUint64())
	require.Same(t, c.(*counter).Counter, GetOrCreateCounter("test_default_counter").(*counter).Counter)

	g := GetOrCreateGauge("test_default_gauge")
	g.SetInt(5)
	require.Equal(t, float64(5), g.GetValue())
	g.SetUint64(2)
	require.Equal(t, uint64(2), g.GetValueUint64())
}

func TestValueGetter(t *testing.T) {
	s := NewSet()
	c, err := s.GetOrCreateCounter("test_getter_counter")
	require.NoError(t, err)
	g, err := s.GetOrCreateGauge("test_getter_gauge")
	require.NoError(t, err)

	for _, vg := range []ValueGetter{c, g} {
		require.Zero(t, vg.GetValue())
		require.Zero(t, vg.GetValueUint64())
	}

	c.AddUint64(1 << 40)
	require.Equal(t, uint64(1<<40), c.GetValueUint64())

	g.SetInt(-3)
	require.Equal(t, float64(-3), g.GetValue())
	require.Zero(t, g.GetValueUint64())
	g.Add(0.5)
	require.Equal(t, uint64(0), g.GetValueUint64())
	g.SetUint64(7)
	g.Add(0.9)
	require.Equal(t, uint64(7), g.GetValueUint64())
}
