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
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txpool.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
min_fee_cap = 7
price_bump = 25
recompute_workers = 3
traced_senders = ["0x000000000000000000000000000000000000000a"]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint64(7), cfg.MinFeeCap)
	require.Equal(t, uint64(25), cfg.PriceBump)
	require.Equal(t, 3, cfg.RecomputeWorkers)
	// untouched keys keep their defaults
	require.Equal(t, DefaultConfig.BlockGasLimit, cfg.BlockGasLimit)
	require.Equal(t, DefaultConfig.SendersCacheSize, cfg.SendersCacheSize)

	traced, err := cfg.TracedSenderSet()
	require.NoError(t, err)
	require.True(t, traced.Contains(common.HexToAddress("0xa")))
	require.Equal(t, 1, traced.Cardinality())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `min_fee_kap = 7`))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(writeConfig(t, `recompute_workers = 0`))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(writeConfig(t, `traced_senders = ["alice"]`))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig.Validate())
}

func TestDiscardReasonString(t *testing.T) {
	require.Equal(t, "nonce too low", NonceTooLow.String())
	require.Equal(t, "replacement transaction underpriced", ReplaceUnderpriced.String())
	require.Panics(t, func() { _ = DiscardReason(200).String() })
}
