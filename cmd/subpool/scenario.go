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

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/ledgerwatch/log/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/subpool/txnprovider/txpool"
	"github.com/erigontech/subpool/txnprovider/txpool/txpoolcfg"
)

var (
	ScenarioFlag = cli.StringFlag{
		Name:     "scenario",
		Usage:    "Path to the TOML scenario to replay",
		Required: true,
	}
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML txpool config, defaults are used when empty",
	}
)

var simulateCommand = cli.Command{
	Name:  "simulate",
	Usage: "Replay accounts, transactions and blocks of a scenario through the txpool and print every sub-pool move",
	Flags: []cli.Flag{
		&ScenarioFlag,
		&ConfigFlag,
	},
	Action: func(cliCtx *cli.Context) error {
		logger := setupLogger(cliCtx)
		cfg := txpoolcfg.DefaultConfig
		if path := cliCtx.String(ConfigFlag.Name); path != "" {
			var err error
			if cfg, err = txpoolcfg.LoadConfig(path); err != nil {
				return err
			}
		}
		sc, err := loadScenario(cliCtx.String(ScenarioFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to load scenario: %w", err)
		}
		return simulate(cliCtx.Context, cfg, sc, cliCtx.App.Writer, logger)
	},
}

var errBadScenario = errors.New("bad scenario")

type scenario struct {
	Accounts []scenarioAccount `toml:"accounts"`
	Txns     []scenarioTxn     `toml:"txns"`
	Blocks   []scenarioBlock   `toml:"blocks"`
}

type scenarioAccount struct {
	Address string `toml:"address"`
	Nonce   uint64 `toml:"nonce"`
	Balance string `toml:"balance"` // decimal
}

type scenarioTxn struct {
	Hash       string `toml:"hash"`
	Sender     string `toml:"sender"`
	Nonce      uint64 `toml:"nonce"`
	Gas        uint64 `toml:"gas"`
	FeeCap     string `toml:"fee_cap"`
	Tip        string `toml:"tip"`
	Value      string `toml:"value"`
	Local      bool   `toml:"local"`
	AfterBlock uint64 `toml:"after_block"` // submitted once this block is applied
}

type scenarioBlock struct {
	Number         uint64            `toml:"number"`
	PendingBaseFee uint64            `toml:"pending_base_fee"`
	BlockGasLimit  uint64            `toml:"block_gas_limit"`
	State          []scenarioAccount `toml:"state"`
	Mined          []string          `toml:"mined"`   // hashes of scenario txns
	Unwound        []string          `toml:"unwound"` // hashes of scenario txns
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*scenario, error) {
	var sc scenario
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadScenario, err)
	}
	if len(sc.Blocks) == 0 {
		return nil, fmt.Errorf("%w: at least one block is required to start the pool", errBadScenario)
	}
	blocks := make(map[uint64]struct{}, len(sc.Blocks))
	for _, block := range sc.Blocks {
		blocks[block.Number] = struct{}{}
	}
	seen := make(map[common.Hash]struct{}, len(sc.Txns))
	for _, txn := range sc.Txns {
		if txn.Hash == "" {
			return nil, fmt.Errorf("%w: txn of %s with nonce %d has no hash", errBadScenario, txn.Sender, txn.Nonce)
		}
		h := common.HexToHash(txn.Hash)
		if _, ok := seen[h]; ok {
			return nil, fmt.Errorf("%w: duplicate txn hash %s", errBadScenario, txn.Hash)
		}
		seen[h] = struct{}{}
		if _, ok := blocks[txn.AfterBlock]; !ok {
			return nil, fmt.Errorf("%w: txn %s is submitted after block %d which the scenario doesn't have", errBadScenario, txn.Hash, txn.AfterBlock)
		}
	}
	return &sc, nil
}

func parseU256(field, s string) (uint256.Int, error) {
	var v uint256.Int
	if s == "" {
		return v, nil
	}
	if err := v.SetFromDecimal(s); err != nil {
		return v, fmt.Errorf("%w: %s %q: %w", errBadScenario, field, s, err)
	}
	return v, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", errBadScenario, s)
	}
	return common.HexToAddress(s), nil
}

func (a scenarioAccount) parse() (common.Address, txpool.SenderState, error) {
	addr, err := parseAddress(a.Address)
	if err != nil {
		return addr, txpool.SenderState{}, err
	}
	balance, err := parseU256("balance", a.Balance)
	if err != nil {
		return addr, txpool.SenderState{}, err
	}
	return addr, txpool.SenderState{Nonce: a.Nonce, Balance: balance}, nil
}

func (t scenarioTxn) slot() (*txpool.TxnSlot, error) {
	sender, err := parseAddress(t.Sender)
	if err != nil {
		return nil, err
	}
	slot := &txpool.TxnSlot{IDHash: common.HexToHash(t.Hash), Sender: sender, Nonce: t.Nonce, Gas: t.Gas}
	if slot.FeeCap, err = parseU256("fee_cap", t.FeeCap); err != nil {
		return nil, err
	}
	if slot.Tip, err = parseU256("tip", t.Tip); err != nil {
		return nil, err
	}
	if slot.Value, err = parseU256("value", t.Value); err != nil {
		return nil, err
	}
	return slot, nil
}

func simulate(ctx context.Context, cfg txpoolcfg.Config, sc *scenario, w io.Writer, logger log.Logger) error {
	reader := txpool.NewMemStateReader()
	for _, acc := range sc.Accounts {
		addr, state, err := acc.parse()
		if err != nil {
			return err
		}
		reader.Set(addr, state)
	}

	slots := make(map[common.Hash]*txpool.TxnSlot, len(sc.Txns))
	for _, txn := range sc.Txns {
		slot, err := txn.slot()
		if err != nil {
			return err
		}
		slots[slot.IDHash] = slot
	}
	lookup := func(hashes []string) ([]*txpool.TxnSlot, error) {
		res := make([]*txpool.TxnSlot, 0, len(hashes))
		for _, h := range hashes {
			slot, ok := slots[common.HexToHash(h)]
			if !ok {
				return nil, fmt.Errorf("%w: unknown txn %s", errBadScenario, h)
			}
			res = append(res, slot)
		}
		return res, nil
	}

	newMoves := make(chan txpool.MoveBatch, 1024)
	pool, err := txpool.New(cfg, reader, newMoves, logger)
	if err != nil {
		return err
	}

	for _, block := range sc.Blocks {
		update := txpool.BlockUpdate{
			BlockNum:       block.Number,
			PendingBaseFee: block.PendingBaseFee,
			BlockGasLimit:  block.BlockGasLimit,
			StateChanges:   map[common.Address]txpool.SenderState{},
		}
		for _, acc := range block.State {
			addr, state, err := acc.parse()
			if err != nil {
				return err
			}
			update.StateChanges[addr] = state
			reader.Set(addr, state)
		}
		if update.MinedTxns, err = lookup(block.Mined); err != nil {
			return err
		}
		if update.UnwoundTxns, err = lookup(block.Unwound); err != nil {
			return err
		}
		if err := pool.OnNewBlock(ctx, update); err != nil {
			return err
		}
		if err := printMoves(w, fmt.Sprintf("block %d", block.Number), newMoves); err != nil {
			return err
		}

		var local, remote []*txpool.TxnSlot
		for _, txn := range sc.Txns {
			if txn.AfterBlock != block.Number {
				continue
			}
			slot := slots[common.HexToHash(txn.Hash)]
			if txn.Local {
				local = append(local, slot)
			} else {
				remote = append(remote, slot)
			}
		}
		if err := addTxns(ctx, w, pool.AddLocalTxns, local, logger); err != nil {
			return err
		}
		if err := addTxns(ctx, w, pool.AddRemoteTxns, remote, logger); err != nil {
			return err
		}
		if err := printMoves(w, fmt.Sprintf("txns after block %d", block.Number), newMoves); err != nil {
			return err
		}
	}

	pool.LogStats()
	for _, sp := range []txpool.SubPoolType{txpool.PendingSubPool, txpool.BaseFeeSubPool, txpool.QueuedSubPool} {
		best, worst, ok := pool.BestWorst(sp)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s best=%s worst=%s\n", sp, best.IDHash.TerminalString(), worst.IDHash.TerminalString()); err != nil {
			return err
		}
	}
	pending, baseFee, queued := pool.CountContent()
	_, err = fmt.Fprintf(w, "pending=%d baseFee=%d queued=%d\n", pending, baseFee, queued)
	return err
}

type addFunc func(context.Context, []*txpool.TxnSlot) ([]txpoolcfg.DiscardReason, error)

func addTxns(ctx context.Context, w io.Writer, add addFunc, slots []*txpool.TxnSlot, logger log.Logger) error {
	if len(slots) == 0 {
		return nil
	}
	reasons, err := add(ctx, slots)
	if err != nil {
		return err
	}
	for i, reason := range reasons {
		if reason == txpoolcfg.Success {
			continue
		}
		logger.Warn("[subpool] txn rejected", "hash", slots[i].IDHash, "reason", reason)
		if _, err := fmt.Fprintf(w, "rejected %x: %s\n", slots[i].IDHash, reason); err != nil {
			return err
		}
	}
	return nil
}

func printMoves(w io.Writer, title string, newMoves chan txpool.MoveBatch) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"event", "hash", "sender", "nonce", "from", "to", "move", "marker", "reason"})
	rows := 0
	for len(newMoves) > 0 {
		batch := <-newMoves
		for _, ev := range batch.Events {
			marker, reason := ev.NewMarker, ""
			if ev.Kind == txpool.TxnDiscarded {
				marker, reason = ev.OldMarker, ev.Reason.String()
			}
			tw.AppendRow(table.Row{ev.Kind, ev.IDHash.TerminalString(), ev.Sender.Hex(), ev.Nonce, poolName(ev.From), poolName(ev.To), ev.Move, marker, reason})
			rows++
		}
	}
	if rows == 0 {
		return nil
	}
	tw.Render()
	return nil
}

func poolName(sp txpool.SubPoolType) string {
	if sp == 0 {
		return "-"
	}
	return sp.String()
}
