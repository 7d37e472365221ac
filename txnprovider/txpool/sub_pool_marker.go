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
	"errors"
	"fmt"
	"strings"
)

// SubPoolMarker is an ordered bitset of six bits that's used to sort transactions into sub-pools. Bits meaning:
// 1. Minimum fee requirement. Set to 1 if feeCap of the transaction is no less than in-protocol parameter of minimal base fee. Set to 0 if feeCap is less than minimum base fee, which means this transaction will never be included into this particular chain.
// 2. Absence of nonce gaps. Set to 1 for transactions whose nonce is N, state nonce for the sender is M, and there are transactions for all nonces between M and N from the same sender. Set to 0 is the transaction's nonce is divided from the state nonce by one or more nonce gaps.
// 3. Sufficient balance for gas. Set to 1 if the balance of sender's account in the state is B, nonce of the sender in the state is M, nonce of the transaction is N, and the sum of feeCap x gasLimit + transferred_value of all transactions from this sender with nonces M ... N is no more than B. Set to 0 otherwise. In other words, this bit is set if there is currently a guarantee that the transaction and all its required prior transactions will be able to pay for gas.
// 4. Not too much gas: Set to 1 if the transaction doesn't use more gas than the current block gas limit.
// 5. Dynamic fee requirement. Set to 1 if feeCap of the transaction is no less than baseFee of the currently pending block. Set to 0 otherwise.
// 6. Local transaction. Set to 1 if transaction is local.
//
// The integer value of the marker is load-bearing: SubPool classifies by comparing it against
// BaseFeePoolBits and QueuedPoolBits, so the bit positions must not be reordered.
type SubPoolMarker uint8

const (
	EnoughFeeCapProtocol SubPoolMarker = 0b100000
	NoNonceGaps          SubPoolMarker = 0b010000
	EnoughBalance        SubPoolMarker = 0b001000
	NotTooMuchGas        SubPoolMarker = 0b000100
	EnoughFeeCapBlock    SubPoolMarker = 0b000010
	IsLocal              SubPoolMarker = 0b000001

	BaseFeePoolBits = EnoughFeeCapProtocol | NoNonceGaps | EnoughBalance | NotTooMuchGas
	QueuedPoolBits  = EnoughFeeCapProtocol
	AllMarkerBits   = BaseFeePoolBits | EnoughFeeCapBlock | IsLocal
)

var ErrInvalidMarker = errors.New("invalid sub-pool marker")

var markerBitNames = [...]struct {
	bit  SubPoolMarker
	name string
}{
	{EnoughFeeCapProtocol, "EnoughFeeCapProtocol"},
	{NoNonceGaps, "NoNonceGaps"},
	{EnoughBalance, "EnoughBalance"},
	{NotTooMuchGas, "NotTooMuchGas"},
	{EnoughFeeCapBlock, "EnoughFeeCapBlock"},
	{IsLocal, "IsLocal"},
}

// NewSubPoolMarker builds a marker from its integer form and rejects bits outside the six defined ones.
func NewSubPoolMarker(v uint8) (SubPoolMarker, error) {
	m := SubPoolMarker(v)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %08b has bits outside %06b", ErrInvalidMarker, v, uint8(AllMarkerBits))
	}
	return m, nil
}

func MustSubPoolMarker(v uint8) SubPoolMarker {
	m, err := NewSubPoolMarker(v)
	if err != nil {
		panic(err)
	}
	return m
}

func (m SubPoolMarker) Valid() bool { return m&^AllMarkerBits == 0 }

func (m SubPoolMarker) Union(other SubPoolMarker) SubPoolMarker     { return m | other }
func (m SubPoolMarker) Intersect(other SubPoolMarker) SubPoolMarker { return m & other }
func (m SubPoolMarker) With(bits SubPoolMarker) SubPoolMarker       { return m | bits }
func (m SubPoolMarker) Without(bits SubPoolMarker) SubPoolMarker    { return m &^ bits }
func (m SubPoolMarker) Uint8() uint8                                { return uint8(m) }

// Has reports whether all the given bits are set.
func (m SubPoolMarker) Has(bits SubPoolMarker) bool { return m&bits == bits }

// Any reports whether at least one of the given bits is set.
func (m SubPoolMarker) Any(bits SubPoolMarker) bool { return m&bits != 0 }

func (m SubPoolMarker) String() string {
	var names []string
	for _, b := range markerBitNames {
		if m.Has(b.bit) {
			names = append(names, b.name)
		}
	}
	if rest := m &^ AllMarkerBits; rest != 0 {
		names = append(names, fmt.Sprintf("Unknown:%08b", uint8(rest)))
	}
	return fmt.Sprintf("%06b(%s)", uint8(m), strings.Join(names, "|"))
}

// Conditions is the record form of a SubPoolMarker: one named boolean per bit.
type Conditions struct {
	EnoughFeeCapProtocol bool
	NoNonceGaps          bool
	EnoughBalance        bool
	NotTooMuchGas        bool
	EnoughFeeCapBlock    bool
	IsLocal              bool
}

func (c Conditions) Marker() SubPoolMarker {
	var m SubPoolMarker
	if c.EnoughFeeCapProtocol {
		m |= EnoughFeeCapProtocol
	}
	if c.NoNonceGaps {
		m |= NoNonceGaps
	}
	if c.EnoughBalance {
		m |= EnoughBalance
	}
	if c.NotTooMuchGas {
		m |= NotTooMuchGas
	}
	if c.EnoughFeeCapBlock {
		m |= EnoughFeeCapBlock
	}
	if c.IsLocal {
		m |= IsLocal
	}
	return m
}

func ConditionsOf(m SubPoolMarker) Conditions {
	return Conditions{
		EnoughFeeCapProtocol: m.Has(EnoughFeeCapProtocol),
		NoNonceGaps:          m.Has(NoNonceGaps),
		EnoughBalance:        m.Has(EnoughBalance),
		NotTooMuchGas:        m.Has(NotTooMuchGas),
		EnoughFeeCapBlock:    m.Has(EnoughFeeCapBlock),
		IsLocal:              m.Has(IsLocal),
	}
}
