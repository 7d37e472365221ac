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
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"
	"github.com/holiman/uint256"
)

// sender keeps the account state of a sender together with its pooled transactions sorted by nonce.
type sender struct {
	addr    common.Address
	state   SenderState
	byNonce *btree.BTreeG[*metaTxn]
}

func sortByNonceLess(a, b *metaTxn) bool { return a.Txn.Nonce < b.Txn.Nonce }

func newSender(addr common.Address, state SenderState) *sender {
	return &sender{addr: addr, state: state, byNonce: btree.NewG[*metaTxn](32, sortByNonceLess)}
}

func (s *sender) get(nonce uint64) (*metaTxn, bool) {
	return s.byNonce.Get(&metaTxn{Txn: &TxnSlot{Nonce: nonce}})
}

func (s *sender) ascending() []*metaTxn {
	txns := make([]*metaTxn, 0, s.byNonce.Len())
	s.byNonce.Ascend(func(mt *metaTxn) bool {
		txns = append(txns, mt)
		return true
	})
	return txns
}

// below returns the transactions with nonce lower than the given one, in ascending order.
func (s *sender) below(nonce uint64) []*metaTxn {
	var txns []*metaTxn
	s.byNonce.AscendLessThan(&metaTxn{Txn: &TxnSlot{Nonce: nonce}}, func(mt *metaTxn) bool {
		txns = append(txns, mt)
		return true
	})
	return txns
}

// onSenderStateChange recomputes from scratch the markers of one sender's transactions.
// txns must be sorted by nonce and must not contain nonces below the state nonce.
// The result is index-aligned with txns. Only the IsLocal bit survives from the previous marker.
func onSenderStateChange(state SenderState, txns []*metaTxn, env blockEnv) []SubPoolMarker {
	markers := make([]SubPoolMarker, len(txns))
	noGapsNonce := state.Nonce
	cumulativeRequiredBalance := uint256.NewInt(0)
	balanceOverflow := false
	for i, mt := range txns {
		txn := mt.Txn
		marker := mt.subPool & IsLocal

		// 1. Minimum fee requirement. Set to 1 if feeCap of the transaction is no less than in-protocol
		// parameter of minimal base fee.
		if txn.FeeCap.CmpUint64(env.minFeeCap) >= 0 {
			marker |= EnoughFeeCapProtocol
		}

		// 2. Absence of nonce gaps. The first gap stops the run: later nonces never get the bit.
		if txn.Nonce == noGapsNonce {
			marker |= NoNonceGaps
			noGapsNonce++
		}

		// 3. Sufficient balance for this transaction and all pooled ones with lower nonces.
		if !balanceOverflow {
			needBalance, overflow := txn.MaxCost()
			if !overflow {
				_, overflow = cumulativeRequiredBalance.AddOverflow(cumulativeRequiredBalance, needBalance)
			}
			balanceOverflow = overflow
		}
		if !balanceOverflow && state.Balance.Cmp(cumulativeRequiredBalance) >= 0 {
			marker |= EnoughBalance
		}

		// 4. Not too much gas for the current block.
		if txn.Gas <= env.blockGasLimit {
			marker |= NotTooMuchGas
		}

		// 5. Dynamic fee requirement of the pending block.
		if txn.FeeCap.CmpUint64(env.pendingBaseFee) >= 0 {
			marker |= EnoughFeeCapBlock
		}

		markers[i] = marker
	}
	return markers
}
