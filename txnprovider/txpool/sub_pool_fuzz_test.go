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
)

// go test -trimpath -v -fuzz=FuzzTwoQueue -fuzztime=10s ./txnprovider/txpool

func FuzzTwoQueue(f *testing.F) {
	f.Add([]uint8{0b111000, 0b100101, 0b000111})
	f.Add([]uint8{0b110101, 0b111110, 0b111101, 0b110001})
	f.Fuzz(func(t *testing.T, in []uint8) {
		t.Parallel()
		for i := range in {
			if in[i] > uint8(AllMarkerBits) {
				t.Skip()
			}
		}
		assert, logger := assert.New(t), log.New()
		{
			sub := NewSubPool(PendingSubPool)
			for _, i := range in {
				sub.Add(&metaTxn{subPool: SubPoolMarker(i), Txn: &TxnSlot{Nonce: 1, Value: *uint256.NewInt(1)}}, "fuzz", logger)
			}
			assert.Equal(len(in), sub.best.Len())
			assert.Equal(len(in), sub.worst.Len())
			assert.Equal(len(in), sub.Len())

			var prevBest *uint8
			i := sub.Len()
			for sub.Len() > 0 {
				best := uint8(sub.Best().subPool)
				assert.Equal(best, uint8(sub.PopBest().subPool))
				if prevBest != nil {
					assert.LessOrEqual(best, *prevBest)
				}
				prevBest = &best
				i--
			}
			assert.Zero(i)
			assert.Zero(sub.Len())
			assert.Zero(sub.best.Len())
			assert.Zero(sub.worst.Len())
		}

		{
			sub := NewSubPool(PendingSubPool)
			for _, i := range in {
				sub.Add(&metaTxn{subPool: SubPoolMarker(i), Txn: &TxnSlot{Nonce: 1, Value: *uint256.NewInt(1)}}, "fuzz", logger)
			}
			var prev *uint8
			i := sub.Len()
			for sub.Len() > 0 {
				worst := uint8(sub.Worst().subPool)
				assert.Equal(worst, uint8(sub.PopWorst().subPool))
				if prev != nil {
					assert.GreaterOrEqual(worst, *prev)
				}
				prev = &worst
				i--
			}
			assert.Zero(i)
			assert.Zero(sub.Len())
			assert.Zero(sub.best.Len())
			assert.Zero(sub.worst.Len())
		}
	})
}

func FuzzClassify(f *testing.F) {
	f.Add(uint8(0b111101))
	f.Add(uint8(0b011111))
	f.Fuzz(func(t *testing.T, v uint8) {
		m, err := NewSubPoolMarker(v)
		if err != nil {
			assert.Panics(t, func() { Classify(SubPoolMarker(v)) })
			return
		}
		sp := Classify(m)
		assert.NotEqual(t, -1, sp.Rank())
		assert.Equal(t, !m.Has(EnoughFeeCapProtocol), sp == QueuedSubPool)
		assert.Equal(t, m.Has(BaseFeePoolBits) && m.Any(EnoughFeeCapBlock|IsLocal), sp == PendingSubPool)
	})
}
