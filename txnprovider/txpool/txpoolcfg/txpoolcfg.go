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

package txpoolcfg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	// MinFeeCap is the in-protocol minimal fee cap of the chain. Transactions below it are never
	// eligible for inclusion.
	MinFeeCap uint64 `toml:"min_fee_cap"`
	// BlockGasLimit is used until the first block reports its own gas limit.
	BlockGasLimit uint64 `toml:"block_gas_limit"`
	// PriceBump is the minimum percentage by which fee cap and tip must grow to replace a
	// transaction with the same sender and nonce.
	PriceBump         uint64   `toml:"price_bump"`
	RecomputeWorkers  int      `toml:"recompute_workers"`
	LocalsHistorySize int      `toml:"locals_history_size"`
	SendersCacheSize  int      `toml:"senders_cache_size"`
	TracedSenders     []string `toml:"traced_senders"` // List of senders for which transaction will be traced
}

var DefaultConfig = Config{
	MinFeeCap:         1,
	BlockGasLimit:     30_000_000,
	PriceBump:         10, // Price bump percentage to replace an already existing transaction
	RecomputeWorkers:  runtime.NumCPU(),
	LocalsHistorySize: 1024,
	SendersCacheSize:  16 * 1024,
}

var (
	ErrInvalidConfig = errors.New("invalid txpool config")
)

func (c Config) Validate() error {
	if c.RecomputeWorkers < 1 {
		return fmt.Errorf("%w: recompute_workers must be positive, got %d", ErrInvalidConfig, c.RecomputeWorkers)
	}
	if c.LocalsHistorySize < 1 {
		return fmt.Errorf("%w: locals_history_size must be positive, got %d", ErrInvalidConfig, c.LocalsHistorySize)
	}
	if c.SendersCacheSize < 1 {
		return fmt.Errorf("%w: senders_cache_size must be positive, got %d", ErrInvalidConfig, c.SendersCacheSize)
	}
	if _, err := c.TracedSenderSet(); err != nil {
		return err
	}
	return nil
}

func (c Config) TracedSenderSet() (mapset.Set[common.Address], error) {
	set := mapset.NewThreadUnsafeSet[common.Address]()
	for _, s := range c.TracedSenders {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: traced sender %q is not an address", ErrInvalidConfig, s)
		}
		set.Add(common.HexToAddress(s))
	}
	return set, nil
}

// LoadConfig reads a TOML file on top of DefaultConfig. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

type DiscardReason uint8

const (
	NotSet              DiscardReason = 0 // analog of "nil-value", means it will be set in future
	Success             DiscardReason = 1
	AlreadyKnown        DiscardReason = 2
	Mined               DiscardReason = 3
	ReplacedByHigherTip DiscardReason = 4
	ReplaceUnderpriced  DiscardReason = 6 // if a transaction is attempted to be replaced with a different one without the required price bump.
	InvalidSender       DiscardReason = 9
	NonceTooLow         DiscardReason = 18
)

func (r DiscardReason) String() string {
	switch r {
	case NotSet:
		return "not set"
	case Success:
		return "success"
	case AlreadyKnown:
		return "already known"
	case Mined:
		return "mined"
	case ReplacedByHigherTip:
		return "replaced by transaction with higher tip"
	case ReplaceUnderpriced:
		return "replacement transaction underpriced"
	case InvalidSender:
		return "invalid sender"
	case NonceTooLow:
		return "nonce too low"
	default:
		panic(fmt.Sprintf("discard reason: %d", r))
	}
}
