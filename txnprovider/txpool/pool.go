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
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/subpool/metrics"
	"github.com/erigontech/subpool/txnprovider/txpool/txpoolcfg"
)

var (
	pendingSubCounter = metrics.GetOrCreateGauge(`txpool_pending`)
	queuedSubCounter  = metrics.GetOrCreateGauge(`txpool_queued`)
	basefeeSubCounter = metrics.GetOrCreateGauge(`txpool_basefee`)
	promotionsCounter = metrics.GetOrCreateCounter(`txpool_promotions`)
	demotionsCounter  = metrics.GetOrCreateCounter(`txpool_demotions`)
	discardsCounter   = metrics.GetOrCreateCounter(`txpool_discards`)
)

var (
	ErrPoolNotStarted = errors.New("txpool not started: no block seen yet")
	ErrNilStateReader = errors.New("txpool: nil state reader")
)

// StateReader gives access to the latest account state of senders the pool doesn't know yet.
//
//go:generate mockgen -typed=true -source=./pool.go -destination=./state_reader_mock.go -package=txpool StateReader
type StateReader interface {
	ReadSender(ctx context.Context, addr common.Address) (SenderState, error)
}

// BlockUpdate is everything the pool learns from a new canonical block.
type BlockUpdate struct {
	BlockNum       uint64
	PendingBaseFee uint64
	BlockGasLimit  uint64 // 0 keeps the previous limit
	StateChanges   map[common.Address]SenderState
	MinedTxns      []*TxnSlot
	UnwoundTxns    []*TxnSlot // transactions of blocks that are no longer canonical
}

type EventKind uint8

const (
	TxnAdded EventKind = iota + 1
	TxnMoved
	TxnDiscarded
)

func (k EventKind) String() string {
	switch k {
	case TxnAdded:
		return "added"
	case TxnMoved:
		return "moved"
	case TxnDiscarded:
		return "discarded"
	}
	return fmt.Sprintf("Unknown:%d", uint8(k))
}

// MoveEvent describes a change of sub-pool membership of one transaction.
// From is 0 for added transactions, To is 0 for discarded ones.
type MoveEvent struct {
	Kind      EventKind
	IDHash    common.Hash
	Sender    common.Address
	Nonce     uint64
	From      SubPoolType
	To        SubPoolType
	OldMarker SubPoolMarker
	NewMarker SubPoolMarker
	Move      Move
	Reason    txpoolcfg.DiscardReason
}

type MoveBatch struct {
	BlockNum uint64
	Events   []MoveEvent
}

// TxPool keeps the sub-pool membership of every pooled transaction in line with the chain state.
// Markers are recomputed per sender, senders in parallel, and the resulting moves are applied
// to the sub-pool indexes under the pool lock.
type TxPool struct {
	cfg         txpoolcfg.Config
	logger      log.Logger
	stateReader StateReader
	newMoves    chan MoveBatch

	started atomic.Bool

	lock                     sync.Mutex
	env                      blockEnv
	blockNum                 uint64
	stateVersion             uint64 // bumped by every applied block
	byHash                   map[common.Hash]*metaTxn
	senders                  map[common.Address]*sender
	pending, baseFee, queued *SubPool
	tracedSenders            mapset.Set[common.Address]

	// track isLocal flag of already mined transactions. used at unwind.
	localsHistory *lru.Cache[common.Hash, struct{}]
	// account state of senders that have no transactions in the pool
	accounts *lru.Cache[common.Address, SenderState]
}

func New(cfg txpoolcfg.Config, stateReader StateReader, newMoves chan MoveBatch, logger log.Logger) (*TxPool, error) {
	if stateReader == nil {
		return nil, ErrNilStateReader
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracedSenders, err := cfg.TracedSenderSet()
	if err != nil {
		return nil, err
	}
	localsHistory, err := lru.New[common.Hash, struct{}](cfg.LocalsHistorySize)
	if err != nil {
		return nil, err
	}
	accounts, err := lru.New[common.Address, SenderState](cfg.SendersCacheSize)
	if err != nil {
		return nil, err
	}
	return &TxPool{
		cfg:         cfg,
		logger:      logger,
		stateReader: stateReader,
		newMoves:    newMoves,
		env: blockEnv{
			minFeeCap:      cfg.MinFeeCap,
			pendingBaseFee: cfg.MinFeeCap,
			blockGasLimit:  cfg.BlockGasLimit,
		},
		byHash:        map[common.Hash]*metaTxn{},
		senders:       map[common.Address]*sender{},
		pending:       NewSubPool(PendingSubPool),
		baseFee:       NewSubPool(BaseFeeSubPool),
		queued:        NewSubPool(QueuedSubPool),
		tracedSenders: tracedSenders,
		localsHistory: localsHistory,
		accounts:      accounts,
	}, nil
}

func (p *TxPool) Started() bool { return p.started.Load() }

func (p *TxPool) AddLocalTxns(ctx context.Context, txns []*TxnSlot) ([]txpoolcfg.DiscardReason, error) {
	return p.addTxns(ctx, txns, true)
}

func (p *TxPool) AddRemoteTxns(ctx context.Context, txns []*TxnSlot) ([]txpoolcfg.DiscardReason, error) {
	return p.addTxns(ctx, txns, false)
}

func (p *TxPool) addTxns(ctx context.Context, txns []*TxnSlot, isLocal bool) ([]txpoolcfg.DiscardReason, error) {
	if !p.Started() {
		return nil, ErrPoolNotStarted
	}
	t := time.Now()
	states, err := p.lockWithSenders(ctx, txns, nil)
	if err != nil {
		return nil, err
	}
	defer p.lock.Unlock()

	reasons := make([]txpoolcfg.DiscardReason, len(txns))
	changed := map[common.Address]*sender{}
	var events []MoveEvent
	for i, txn := range txns {
		reasons[i], events = p.addLocked(txn, isLocal, states, changed, events)
	}
	events = p.recomputeLocked(sortedSenders(changed), events)
	p.dropEmptySendersLocked(changed)
	p.updateGaugesLocked()
	p.publish(p.blockNum, events)

	p.logger.Debug("[txpool] on new txns", "local", isLocal, "amount", len(txns), "events", len(events), "in", time.Since(t))
	return reasons, nil
}

// OnNewBlock applies the state of a new block: base fee and gas limit, sender state changes,
// mined transactions and transactions returned to the pool by an unwind. Senders touched by the
// block are recomputed, all senders are recomputed if base fee or gas limit changed.
func (p *TxPool) OnNewBlock(ctx context.Context, update BlockUpdate) error {
	t := time.Now()
	states, err := p.lockWithSenders(ctx, update.UnwoundTxns, update.StateChanges)
	if err != nil {
		return err
	}
	defer p.lock.Unlock()
	for addr, state := range update.StateChanges {
		states[addr] = state
	}

	p.stateVersion++
	envChanged := p.setEnvLocked(update.PendingBaseFee, update.BlockGasLimit)
	p.blockNum = update.BlockNum
	p.started.Store(true)

	changed := map[common.Address]*sender{}
	var events []MoveEvent
	for addr, state := range update.StateChanges {
		if s, ok := p.senders[addr]; ok {
			s.state = state
			changed[addr] = s
			continue
		}
		if p.accounts.Contains(addr) {
			p.accounts.Add(addr, state)
		}
	}

	events = p.removeMinedLocked(update.MinedTxns, changed, events)
	for _, s := range sortedSenders(changed) {
		for _, mt := range s.below(s.state.Nonce) {
			events = p.discardLocked(mt, txpoolcfg.NonceTooLow, events)
		}
	}

	// When a block that was deemed "the best" of its height, is no longer deemed "the best", the
	// transactions contained in it, are now viable for inclusion in other blocks, and therefore should
	// be returned into the transaction pool. Local ones get their IsLocal bit back from localsHistory.
	for _, txn := range update.UnwoundTxns {
		_, events = p.addLocked(txn, false, states, changed, events)
	}

	toRecompute := changed
	if envChanged {
		toRecompute = p.senders
	}
	events = p.recomputeLocked(sortedSenders(toRecompute), events)
	p.dropEmptySendersLocked(changed)
	p.updateGaugesLocked()
	p.publish(update.BlockNum, events)

	p.logger.Debug("[txpool] on new block", "block", update.BlockNum, "pendingBaseFee", p.env.pendingBaseFee,
		"blockGasLimit", p.env.blockGasLimit, "senders", len(toRecompute), "events", len(events), "in", time.Since(t))
	return nil
}

// OnBaseFeeChange handles a pending base fee update that is not tied to a new block.
func (p *TxPool) OnBaseFeeChange(ctx context.Context, pendingBaseFee uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Started() {
		return ErrPoolNotStarted
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.setEnvLocked(pendingBaseFee, 0) {
		return nil
	}
	events := p.recomputeLocked(sortedSenders(p.senders), nil)
	p.updateGaugesLocked()
	p.publish(p.blockNum, events)
	return nil
}

func (p *TxPool) SubPoolOf(idHash common.Hash) (SubPoolType, SubPoolMarker, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	mt, ok := p.byHash[idHash]
	if !ok {
		return 0, 0, false
	}
	return mt.currentSubPool, mt.subPool, true
}

func (p *TxPool) CountContent() (pending, baseFee, queued int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pending.Len(), p.baseFee.Len(), p.queued.Len()
}

// BestWorst returns the heads of the best and the worst heap of a sub-pool, ok is false when it is empty.
func (p *TxPool) BestWorst(t SubPoolType) (best, worst *TxnSlot, ok bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if t.Rank() < 0 {
		return nil, nil, false
	}
	sp := p.subPool(t)
	if sp.Len() == 0 {
		return nil, nil, false
	}
	return sp.Best().Txn, sp.Worst().Txn, true
}

// SenderTxns returns the pooled transactions of a sender sorted by nonce.
func (p *TxPool) SenderTxns(addr common.Address) []*TxnSlot {
	p.lock.Lock()
	defer p.lock.Unlock()
	s, ok := p.senders[addr]
	if !ok {
		return nil
	}
	var txns []*TxnSlot
	for _, mt := range s.ascending() {
		txns = append(txns, mt.Txn)
	}
	return txns
}

func (p *TxPool) LogStats() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.logger.Info("[txpool] stat",
		"block", p.blockNum,
		"pending", p.pending.Len(),
		"baseFee", p.baseFee.Len(),
		"queued", p.queued.Len(),
		"senders", len(p.senders),
		"pendingBaseFee", p.env.pendingBaseFee,
		"blockGasLimit", p.env.blockGasLimit,
		"promotions", promotionsCounter.GetValueUint64(),
		"demotions", demotionsCounter.GetValueUint64(),
	)
}

// setEnvLocked returns whether the environment the markers depend on has changed.
func (p *TxPool) setEnvLocked(pendingBaseFee, blockGasLimit uint64) bool {
	env := p.env
	if pendingBaseFee < p.cfg.MinFeeCap {
		pendingBaseFee = p.cfg.MinFeeCap
	}
	env.pendingBaseFee = pendingBaseFee
	if blockGasLimit > 0 {
		env.blockGasLimit = blockGasLimit
	}
	changed := env != p.env
	p.env = env
	return changed
}

// lockWithSenders reads the state of the unknown senders of txns and returns with the pool lock held.
// The read happens without the lock, so it is repeated when a block was applied in the meantime.
func (p *TxPool) lockWithSenders(ctx context.Context, txns []*TxnSlot, known map[common.Address]SenderState) (map[common.Address]SenderState, error) {
	for {
		states, version, err := p.loadSenders(ctx, txns, known)
		if err != nil {
			return nil, err
		}
		p.lock.Lock()
		if version == p.stateVersion {
			return states, nil
		}
		p.lock.Unlock()
		p.logger.Trace("[txpool] sender state changed while reading, retrying", "senders", len(states))
	}
}

func (p *TxPool) loadSenders(ctx context.Context, txns []*TxnSlot, known map[common.Address]SenderState) (map[common.Address]SenderState, uint64, error) {
	toLoad := map[common.Address]struct{}{}
	p.lock.Lock()
	version := p.stateVersion
	for _, txn := range txns {
		if txn.Sender == (common.Address{}) {
			continue
		}
		if _, ok := p.senders[txn.Sender]; ok {
			continue
		}
		if _, ok := known[txn.Sender]; ok {
			continue
		}
		toLoad[txn.Sender] = struct{}{}
	}
	p.lock.Unlock()

	states := make(map[common.Address]SenderState, len(toLoad))
	for addr := range toLoad {
		if state, ok := p.accounts.Get(addr); ok {
			states[addr] = state
			continue
		}
		state, err := p.stateReader.ReadSender(ctx, addr)
		if err != nil {
			return nil, 0, fmt.Errorf("read sender %x: %w", addr, err)
		}
		states[addr] = state
	}
	return states, version, nil
}

func (p *TxPool) senderLocked(addr common.Address, states map[common.Address]SenderState) *sender {
	if s, ok := p.senders[addr]; ok {
		return s
	}
	state, ok := states[addr]
	if !ok {
		state, _ = p.accounts.Get(addr)
	}
	s := newSender(addr, state)
	p.senders[addr] = s
	p.accounts.Remove(addr)
	return s
}

func (p *TxPool) addLocked(txn *TxnSlot, isLocal bool, states map[common.Address]SenderState, changed map[common.Address]*sender, events []MoveEvent) (txpoolcfg.DiscardReason, []MoveEvent) {
	if txn.Sender == (common.Address{}) {
		return txpoolcfg.InvalidSender, events
	}
	if _, ok := p.byHash[txn.IDHash]; ok {
		return txpoolcfg.AlreadyKnown, events
	}
	s := p.senderLocked(txn.Sender, states)
	changed[s.addr] = s
	if txn.Nonce < s.state.Nonce {
		return txpoolcfg.NonceTooLow, events
	}

	if _, ok := p.localsHistory.Get(txn.IDHash); ok {
		isLocal = true
	}
	mt := newMetaTxn(txn, isLocal, p.tracedSenders.Contains(txn.Sender))
	if found, ok := s.get(txn.Nonce); ok {
		if !replacementAllowed(found.Txn, txn, p.cfg.PriceBump) {
			return txpoolcfg.ReplaceUnderpriced, events
		}
		events = p.discardLocked(found, txpoolcfg.ReplacedByHigherTip, events)
	}
	s.byNonce.ReplaceOrInsert(mt)
	p.byHash[txn.IDHash] = mt
	return txpoolcfg.Success, events
}

// removeMinedLocked - apply new highest block (or batch of blocks)
//
// Every transaction of a sender with nonce up to the highest mined one leaves the pool: the mined
// ones as Mined, the rest as NonceTooLow since their nonce is taken now.
func (p *TxPool) removeMinedLocked(minedTxns []*TxnSlot, changed map[common.Address]*sender, events []MoveEvent) []MoveEvent {
	noncesToRemove := map[common.Address]uint64{}
	mined := make(map[common.Hash]struct{}, len(minedTxns))
	for _, txn := range minedTxns {
		mined[txn.IDHash] = struct{}{}
		nonce, ok := noncesToRemove[txn.Sender]
		if !ok || txn.Nonce > nonce {
			noncesToRemove[txn.Sender] = txn.Nonce
		}
	}

	for _, addr := range sortedAddrs(noncesToRemove) {
		s, ok := p.senders[addr]
		if !ok {
			continue
		}
		nonce := noncesToRemove[addr]
		if s.state.Nonce <= nonce {
			s.state.Nonce = nonce + 1
		}
		changed[addr] = s
		for _, mt := range s.below(nonce + 1) {
			reason := txpoolcfg.NonceTooLow
			if _, ok := mined[mt.Txn.IDHash]; ok {
				reason = txpoolcfg.Mined
			}
			events = p.discardLocked(mt, reason, events)
		}
	}
	return events
}

func (p *TxPool) discardLocked(mt *metaTxn, reason txpoolcfg.DiscardReason, events []MoveEvent) []MoveEvent {
	from := mt.currentSubPool
	if from != 0 {
		p.subPool(from).Remove(mt, reason.String(), p.logger)
	}
	delete(p.byHash, mt.Txn.IDHash)
	if s, ok := p.senders[mt.Txn.Sender]; ok {
		s.byNonce.Delete(mt)
	}
	if mt.isLocal() {
		p.localsHistory.Add(mt.Txn.IDHash, struct{}{})
	}
	discardsCounter.Inc()
	return append(events, MoveEvent{
		Kind:      TxnDiscarded,
		IDHash:    mt.Txn.IDHash,
		Sender:    mt.Txn.Sender,
		Nonce:     mt.Txn.Nonce,
		From:      from,
		OldMarker: mt.subPool,
		Reason:    reason,
	})
}

// recomputeLocked folds every given sender in parallel, then applies the new markers in
// (sender, nonce) order so the produced events don't depend on scheduling.
func (p *TxPool) recomputeLocked(senders []*sender, events []MoveEvent) []MoveEvent {
	env := p.env
	txns := make([][]*metaTxn, len(senders))
	markers := make([][]SubPoolMarker, len(senders))
	for i, s := range senders {
		txns[i] = s.ascending()
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.RecomputeWorkers)
	for i := range senders {
		g.Go(func() error {
			markers[i] = onSenderStateChange(senders[i].state, txns[i], env)
			return nil
		})
	}
	_ = g.Wait() // the fold can't fail

	for i := range senders {
		for j, mt := range txns[i] {
			events = p.applyMarkerLocked(mt, markers[i][j], events)
		}
	}
	return events
}

func (p *TxPool) applyMarkerLocked(mt *metaTxn, marker SubPoolMarker, events []MoveEvent) []MoveEvent {
	oldMarker, from := mt.subPool, mt.currentSubPool
	mt.subPool = marker
	to := marker.SubPool()
	if from == to {
		if oldMarker != marker {
			p.subPool(to).Updated(mt)
		}
		return events
	}

	ev := MoveEvent{
		IDHash:    mt.Txn.IDHash,
		Sender:    mt.Txn.Sender,
		Nonce:     mt.Txn.Nonce,
		From:      from,
		To:        to,
		NewMarker: marker,
	}
	reason := "new"
	if from == 0 {
		ev.Kind = TxnAdded
	} else {
		ev.Kind = TxnMoved
		ev.OldMarker = oldMarker
		ev.Move = Compare(from, to)
		reason = ev.Move.String()
		p.subPool(from).Remove(mt, reason, p.logger)
		switch ev.Move {
		case Promoted:
			promotionsCounter.Inc()
		case Demoted:
			demotionsCounter.Inc()
		}
	}
	p.subPool(to).Add(mt, reason, p.logger)
	return append(events, ev)
}

func (p *TxPool) subPool(t SubPoolType) *SubPool {
	switch t {
	case PendingSubPool:
		return p.pending
	case BaseFeeSubPool:
		return p.baseFee
	case QueuedSubPool:
		return p.queued
	}
	panic(fmt.Sprintf("txpool: unknown sub-pool %d", t))
}

func (p *TxPool) dropEmptySendersLocked(senders map[common.Address]*sender) {
	for addr, s := range senders {
		if s.byNonce.Len() > 0 {
			continue
		}
		delete(p.senders, addr)
		p.accounts.Add(addr, s.state)
	}
}

func (p *TxPool) updateGaugesLocked() {
	pendingSubCounter.SetInt(p.pending.Len())
	basefeeSubCounter.SetInt(p.baseFee.Len())
	queuedSubCounter.SetInt(p.queued.Len())
}

// publish doesn't block: a slow subscriber misses batches rather than stalling the pool.
func (p *TxPool) publish(blockNum uint64, events []MoveEvent) {
	if p.newMoves == nil || len(events) == 0 {
		return
	}
	select {
	case p.newMoves <- MoveBatch{BlockNum: blockNum, Events: events}:
	default:
		p.logger.Warn("[txpool] move batch dropped, subscriber is too slow", "block", blockNum, "events", len(events))
	}
}

// replacementAllowed requires both fee cap and tip to grow by at least priceBump percent.
func replacementAllowed(prev, next *TxnSlot, priceBump uint64) bool {
	return bumped(&prev.FeeCap, &next.FeeCap, priceBump) && bumped(&prev.Tip, &next.Tip, priceBump)
}

func bumped(prev, next *uint256.Int, priceBump uint64) bool {
	if next.Cmp(prev) <= 0 {
		return false
	}
	threshold, overflow := new(uint256.Int).MulOverflow(prev, uint256.NewInt(100+priceBump))
	if overflow {
		return false
	}
	threshold.Div(threshold, uint256.NewInt(100))
	return next.Cmp(threshold) >= 0
}

func sortedSenders(m map[common.Address]*sender) []*sender {
	senders := make([]*sender, 0, len(m))
	for _, s := range m {
		senders = append(senders, s)
	}
	slices.SortFunc(senders, func(a, b *sender) int { return bytes.Compare(a.addr[:], b.addr[:]) })
	return senders
}

func sortedAddrs[V any](m map[common.Address]V) []common.Address {
	addrs := make([]common.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	return addrs
}
