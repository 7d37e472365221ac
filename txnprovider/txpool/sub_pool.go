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
	"container/heap"
	"fmt"

	"github.com/ledgerwatch/log/v3"
)

type SubPoolType uint8

const PendingSubPool SubPoolType = 1
const BaseFeeSubPool SubPoolType = 2
const QueuedSubPool SubPoolType = 3

func (sp SubPoolType) String() string {
	switch sp {
	case PendingSubPool:
		return "Pending"
	case BaseFeeSubPool:
		return "BaseFee"
	case QueuedSubPool:
		return "Queued"
	}
	return fmt.Sprintf("Unknown:%d", sp)
}

// subPoolRank orders sub-pools by how close their transactions are to execution.
// It is independent of the SubPoolType values.
var subPoolRank = map[SubPoolType]int{
	QueuedSubPool:  0,
	BaseFeeSubPool: 1,
	PendingSubPool: 2,
}

// Rank returns the execution priority of the sub-pool, -1 for unknown values.
func (sp SubPoolType) Rank() int {
	r, ok := subPoolRank[sp]
	if !ok {
		return -1
	}
	return r
}

func (sp SubPoolType) IsPending() bool { return sp == PendingSubPool }

// IsPromoted reports whether moving from the given sub-pool into sp is a promotion.
func (sp SubPoolType) IsPromoted(from SubPoolType) bool { return sp.Rank() > from.Rank() }

func ParseSubPoolType(s string) (SubPoolType, error) {
	for _, sp := range []SubPoolType{PendingSubPool, BaseFeeSubPool, QueuedSubPool} {
		if sp.String() == s {
			return sp, nil
		}
	}
	return 0, fmt.Errorf("unknown sub-pool: %q", s)
}

type Move uint8

const (
	Unchanged Move = iota
	Promoted
	Demoted
)

func (m Move) String() string {
	switch m {
	case Unchanged:
		return "unchanged"
	case Promoted:
		return "promoted"
	case Demoted:
		return "demoted"
	}
	return fmt.Sprintf("Unknown:%d", uint8(m))
}

func Compare(from, to SubPoolType) Move {
	switch {
	case to.IsPromoted(from):
		return Promoted
	case from.IsPromoted(to):
		return Demoted
	}
	return Unchanged
}

// SubPool derives the sub-pool from the marker value:
//   - above BaseFeePoolBits: all four base bits plus block fee cap or local, Pending
//   - below QueuedPoolBits: protocol fee cap is not met, Queued
//   - anything else: BaseFee
//
// Local transactions skip the block fee cap requirement: 0b111101 is Pending.
func (m SubPoolMarker) SubPool() SubPoolType {
	if !m.Valid() {
		panic(fmt.Sprintf("txpool: can't classify invalid sub-pool marker %08b", uint8(m)))
	}
	if m > BaseFeePoolBits {
		return PendingSubPool
	}
	if m < QueuedPoolBits {
		return QueuedSubPool
	}
	return BaseFeeSubPool
}

func Classify(m SubPoolMarker) SubPoolType { return m.SubPool() }

// SubPool indexes the transactions of one sub-pool by a best and a worst heap.
type SubPool struct {
	best  *BestQueue
	worst *WorstQueue
	t     SubPoolType
}

func NewSubPool(t SubPoolType) *SubPool {
	return &SubPool{t: t, best: &BestQueue{}, worst: &WorstQueue{}}
}

func (p *SubPool) Type() SubPoolType { return p.t }

func (p *SubPool) Best() *metaTxn {
	if len(p.best.ms) == 0 {
		return nil
	}
	return p.best.ms[0]
}

func (p *SubPool) Worst() *metaTxn {
	if len(p.worst.ms) == 0 {
		return nil
	}
	return p.worst.ms[0]
}

func (p *SubPool) PopBest() *metaTxn { //nolint
	i := heap.Pop(p.best).(*metaTxn)
	heap.Remove(p.worst, i.worstIndex)
	i.currentSubPool = 0
	return i
}

func (p *SubPool) PopWorst() *metaTxn { //nolint
	i := heap.Pop(p.worst).(*metaTxn)
	heap.Remove(p.best, i.bestIndex)
	i.currentSubPool = 0
	return i
}

func (p *SubPool) Len() int {
	return p.best.Len()
}

func (p *SubPool) Add(i *metaTxn, reason string, logger log.Logger) {
	if i.traced {
		logger.Info(fmt.Sprintf("TX TRACING: added to subpool %s", p.t), "idHash", i.Txn.IDHash, "sender", i.Txn.Sender, "nonce", i.Txn.Nonce, "marker", i.subPool, "reason", reason)
	}
	i.currentSubPool = p.t
	heap.Push(p.best, i)
	heap.Push(p.worst, i)
}

func (p *SubPool) Remove(i *metaTxn, reason string, logger log.Logger) {
	if i.traced {
		logger.Info(fmt.Sprintf("TX TRACING: removed from subpool %s", p.t), "idHash", i.Txn.IDHash, "sender", i.Txn.Sender, "nonce", i.Txn.Nonce, "marker", i.subPool, "reason", reason)
	}
	heap.Remove(p.best, i.bestIndex)
	heap.Remove(p.worst, i.worstIndex)
	i.currentSubPool = 0
}

// Updated restores heap order after the marker of a member changed without changing its sub-pool.
func (p *SubPool) Updated(i *metaTxn) {
	heap.Fix(p.best, i.bestIndex)
	heap.Fix(p.worst, i.worstIndex)
}

// better orders by marker, then by the higher tip, then by the lower nonce.
func (mt *metaTxn) better(than *metaTxn) bool {
	if mt.subPool != than.subPool {
		return mt.subPool > than.subPool
	}
	if c := mt.Txn.Tip.Cmp(&than.Txn.Tip); c != 0 {
		return c > 0
	}
	return mt.Txn.Nonce < than.Txn.Nonce
}

type BestQueue struct {
	ms []*metaTxn
}

func (p *BestQueue) Len() int           { return len(p.ms) }
func (p *BestQueue) Less(i, j int) bool { return p.ms[i].better(p.ms[j]) }
func (p *BestQueue) Swap(i, j int) {
	p.ms[i], p.ms[j] = p.ms[j], p.ms[i]
	p.ms[i].bestIndex = i
	p.ms[j].bestIndex = j
}
func (p *BestQueue) Push(x any) {
	n := len(p.ms)
	item := x.(*metaTxn)
	item.bestIndex = n
	p.ms = append(p.ms, item)
}
func (p *BestQueue) Pop() any {
	old := p.ms
	n := len(old)
	item := old[n-1]
	old[n-1] = nil      // avoid memory leak
	item.bestIndex = -1 // for safety
	p.ms = old[0 : n-1]
	return item
}

type WorstQueue struct {
	ms []*metaTxn
}

func (p *WorstQueue) Len() int           { return len(p.ms) }
func (p *WorstQueue) Less(i, j int) bool { return p.ms[j].better(p.ms[i]) }
func (p *WorstQueue) Swap(i, j int) {
	p.ms[i], p.ms[j] = p.ms[j], p.ms[i]
	p.ms[i].worstIndex = i
	p.ms[j].worstIndex = j
}
func (p *WorstQueue) Push(x any) {
	n := len(p.ms)
	item := x.(*metaTxn)
	item.worstIndex = n
	p.ms = append(p.ms, item)
}
func (p *WorstQueue) Pop() any {
	old := p.ms
	n := len(old)
	item := old[n-1]
	old[n-1] = nil       // avoid memory leak
	item.worstIndex = -1 // for safety
	p.ms = old[0 : n-1]
	return item
}
