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

package txpool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSubPools = []SubPoolType{QueuedSubPool, BaseFeeSubPool, PendingSubPool}

func allMarkers() []SubPoolMarker {
	markers := make([]SubPoolMarker, 0, 64)
	for v := 0; v <= 0b111111; v++ {
		markers = append(markers, SubPoolMarker(v))
	}
	return markers
}

func TestSubPoolClassify(t *testing.T) {
	tests := []struct {
		name   string
		marker SubPoolMarker
		want   SubPoolType
	}{
		{"all", 0b111111, PendingSubPool},
		{"block fee", 0b111110, PendingSubPool},
		{"local bypass", 0b111101, PendingSubPool},
		{"base bits only", 0b111100, BaseFeeSubPool},
		{"protocol floor only", 0b100000, BaseFeeSubPool},
		{"no balance", 0b110110, BaseFeeSubPool},
		{"nonce gap", 0b101111, BaseFeeSubPool},
		{"too much gas", 0b111011, BaseFeeSubPool},
		{"below protocol floor", 0b011111, QueuedSubPool},
		{"empty", 0, QueuedSubPool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.marker.SubPool())
			require.Equal(t, tt.want, Classify(tt.marker))
		})
	}
}

func TestSubPoolClassifyMatchesConditions(t *testing.T) {
	for _, m := range allMarkers() {
		c := ConditionsOf(m)
		baseSet := c.EnoughFeeCapProtocol && c.NoNonceGaps && c.EnoughBalance && c.NotTooMuchGas

		var want SubPoolType
		switch {
		case !c.EnoughFeeCapProtocol:
			want = QueuedSubPool
		case baseSet && (c.EnoughFeeCapBlock || c.IsLocal):
			want = PendingSubPool
		default:
			want = BaseFeeSubPool
		}
		require.Equal(t, want, m.SubPool(), "marker %s", m)
		require.Equal(t, want == PendingSubPool, m.SubPool().IsPending(), "marker %s", m)
	}
}

func TestSubPoolProtocolFloorVeto(t *testing.T) {
	for _, m := range allMarkers() {
		if m.Has(EnoughFeeCapProtocol) {
			continue
		}
		require.Equal(t, QueuedSubPool, m.SubPool(), "marker %s", m)
	}
	for _, m := range allMarkers() {
		require.Equal(t, QueuedSubPool, m.Without(EnoughFeeCapProtocol).SubPool(), "marker %s", m)
	}
}

func TestSubPoolMonotonic(t *testing.T) {
	bits := []SubPoolMarker{EnoughFeeCapProtocol, NoNonceGaps, EnoughBalance, NotTooMuchGas, EnoughFeeCapBlock, IsLocal}
	for _, m := range allMarkers() {
		for _, bit := range bits {
			require.GreaterOrEqual(t, m.With(bit).SubPool().Rank(), m.SubPool().Rank(), "marker %s bit %s", m, bit)
		}
		if m.SubPool() == PendingSubPool {
			for _, bit := range bits {
				require.Equal(t, PendingSubPool, m.With(bit).SubPool())
			}
		}
	}
}

func TestSubPoolClassifyInvalid(t *testing.T) {
	require.Panics(t, func() { SubPoolMarker(0b1000000).SubPool() })
	require.Panics(t, func() { Classify(0xff) })
}

func TestSubPoolTypeRank(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(0, QueuedSubPool.Rank())
	assert.Equal(1, BaseFeeSubPool.Rank())
	assert.Equal(2, PendingSubPool.Rank())
	assert.Equal(-1, SubPoolType(0).Rank())
	assert.Equal(-1, SubPoolType(42).Rank())

	assert.True(PendingSubPool.IsPromoted(QueuedSubPool))
	assert.True(PendingSubPool.IsPromoted(BaseFeeSubPool))
	assert.True(BaseFeeSubPool.IsPromoted(QueuedSubPool))
	assert.False(QueuedSubPool.IsPromoted(PendingSubPool))
	assert.False(PendingSubPool.IsPromoted(PendingSubPool))
}

func TestCompare(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(Promoted, Compare(QueuedSubPool, PendingSubPool))
	assert.Equal(Promoted, Compare(BaseFeeSubPool, PendingSubPool))
	assert.Equal(Promoted, Compare(QueuedSubPool, BaseFeeSubPool))
	assert.Equal(Demoted, Compare(PendingSubPool, BaseFeeSubPool))
	assert.Equal(Demoted, Compare(PendingSubPool, QueuedSubPool))
	assert.Equal(Demoted, Compare(BaseFeeSubPool, QueuedSubPool))

	for _, a := range allSubPools {
		assert.Equal(Unchanged, Compare(a, a))
		for _, b := range allSubPools {
			if a == b {
				continue
			}
			switch Compare(a, b) {
			case Promoted:
				assert.Equal(Demoted, Compare(b, a))
			case Demoted:
				assert.Equal(Promoted, Compare(b, a))
			default:
				t.Fatalf("%s -> %s must not be unchanged", a, b)
			}
		}
	}
}

func TestSubPoolTypeString(t *testing.T) {
	for _, sp := range allSubPools {
		parsed, err := ParseSubPoolType(sp.String())
		require.NoError(t, err)
		require.Equal(t, sp, parsed)
	}
	_, err := ParseSubPoolType("Mined")
	require.Error(t, err)
	require.Equal(t, "Unknown:7", SubPoolType(7).String())
	require.Equal(t, "promoted", Promoted.String())
}

func TestSubPoolIndex(t *testing.T) {
	assert, logger := assert.New(t), log.New()
	sub := NewSubPool(PendingSubPool)
	newTxn := func(marker SubPoolMarker, tip, nonce uint64) *metaTxn {
		mt := newMetaTxn(&TxnSlot{Nonce: nonce, Tip: *uint256.NewInt(tip)}, false, false)
		mt.subPool = marker
		return mt
	}
	a := newTxn(0b111110, 1, 1)
	b := newTxn(0b111111, 1, 2)
	c := newTxn(0b111110, 5, 3)
	d := newTxn(0b111110, 5, 0)
	for _, mt := range []*metaTxn{a, b, c, d} {
		sub.Add(mt, "test", logger)
		assert.Equal(PendingSubPool, mt.currentSubPool)
	}
	assert.Equal(4, sub.Len())
	assert.Equal(b, sub.Best())
	assert.Equal(a, sub.Worst())

	// demoting the best one in place
	b.subPool = 0b111100
	sub.Updated(b)
	assert.Equal(d, sub.Best())
	assert.Equal(b, sub.Worst())

	sub.Remove(d, "test", logger)
	assert.Equal(SubPoolType(0), d.currentSubPool)
	assert.Equal(c, sub.Best())

	assert.Equal(b, sub.PopWorst())
	assert.Equal(c, sub.PopBest())
	assert.Equal(a, sub.PopBest())
	assert.Zero(sub.Len())
	assert.Nil(sub.Best())
	assert.Nil(sub.Worst())
}
