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
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemStateReader serves sender state from memory. Unknown senders have zero nonce and balance.
type MemStateReader struct {
	mu       sync.RWMutex
	accounts map[common.Address]SenderState
}

func NewMemStateReader() *MemStateReader {
	return &MemStateReader{accounts: map[common.Address]SenderState{}}
}

func (r *MemStateReader) Set(addr common.Address, state SenderState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[addr] = state
}

func (r *MemStateReader) ReadSender(ctx context.Context, addr common.Address) (SenderState, error) {
	if err := ctx.Err(); err != nil {
		return SenderState{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[addr], nil
}
