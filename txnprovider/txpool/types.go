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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TxnSlot contains the part of a transaction that the pool needs to place it into a sub-pool.
// Signature and intrinsic gas are expected to be validated before a slot reaches the pool.
type TxnSlot struct {
	IDHash common.Hash    // Hash of the transaction
	Sender common.Address // Recovered sender
	Nonce  uint64         // Nonce of the transaction
	Gas    uint64         // Gas limit of the transaction
	FeeCap uint256.Int    // Maximum fee that transaction burns and gives to the miner/block proposer
	Tip    uint256.Int    // Maximum tip that transaction is giving to miner/block proposer
	Value  uint256.Int    // Value transferred by the transaction
}

// MaxCost returns feeCap x gasLimit + value, the most this transaction can take from the sender balance.
func (t *TxnSlot) MaxCost() (cost *uint256.Int, overflow bool) {
	cost = uint256.NewInt(t.Gas)
	if _, overflow = cost.MulOverflow(cost, &t.FeeCap); overflow {
		return cost, true
	}
	_, overflow = cost.AddOverflow(cost, &t.Value)
	return cost, overflow
}

func (t *TxnSlot) String() string {
	return fmt.Sprintf("idHash=%x sender=%x nonce=%d gas=%d feeCap=%s tip=%s value=%s",
		t.IDHash, t.Sender, t.Nonce, t.Gas, t.FeeCap.Dec(), t.Tip.Dec(), t.Value.Dec())
}

// SenderState is the on-chain account state of a sender: next nonce and balance.
type SenderState struct {
	Nonce   uint64
	Balance uint256.Int
}

// metaTxn holds transaction and some metadata
type metaTxn struct {
	Txn            *TxnSlot
	subPool        SubPoolMarker
	currentSubPool SubPoolType
	bestIndex      int
	worstIndex     int
	traced         bool
}

func newMetaTxn(slot *TxnSlot, isLocal bool, traced bool) *metaTxn {
	mt := &metaTxn{Txn: slot, worstIndex: -1, bestIndex: -1, traced: traced}
	if isLocal {
		mt.subPool = IsLocal
	}
	return mt
}

func (mt *metaTxn) isLocal() bool { return mt.subPool.Has(IsLocal) }

// blockEnv is the chain state every marker is computed against.
type blockEnv struct {
	minFeeCap      uint64 // in-protocol minimal fee cap, fixed by the chain config
	pendingBaseFee uint64
	blockGasLimit  uint64
}
