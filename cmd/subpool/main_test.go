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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/subpool/txnprovider/txpool"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	err := app.Run(append([]string{"subpool", "--verbosity", "0"}, args...))
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := runApp(t, "classify", "--marker", "0b111101")
	require.NoError(t, err)
	require.Equal(t, "111101(EnoughFeeCapProtocol|NoNonceGaps|EnoughBalance|NotTooMuchGas|IsLocal) Pending\n", out)

	out, err = runApp(t, "classify", "--fee-cap-protocol", "--no-nonce-gaps")
	require.NoError(t, err)
	require.Equal(t, "110000(EnoughFeeCapProtocol|NoNonceGaps) BaseFee\n", out)

	out, err = runApp(t, "classify", "--marker", "31")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, " Queued\n"))

	_, err = runApp(t, "classify", "--marker", "0x40")
	require.ErrorIs(t, err, txpool.ErrInvalidMarker)
}

func TestCompareCommand(t *testing.T) {
	out, err := runApp(t, "compare", "--from", "Queued", "--to", "Pending")
	require.NoError(t, err)
	require.Equal(t, "promoted\n", out)

	out, err = runApp(t, "compare", "--from", "Pending", "--to", "BaseFee")
	require.NoError(t, err)
	require.Equal(t, "demoted\n", out)

	_, err = runApp(t, "compare", "--from", "Pending", "--to", "Mined")
	require.Error(t, err)
}

func TestTableCommand(t *testing.T) {
	out, err := runApp(t, "table", "--pool", "Pending")
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(out, "Pending"))

	out, err = runApp(t, "table")
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(out, "Pending"))
	require.Equal(t, 32, strings.Count(out, "Queued"))
	require.Equal(t, 29, strings.Count(out, "BaseFee"))
}

func TestSimulateCommand(t *testing.T) {
	out, err := runApp(t, "simulate", "--scenario", "testdata/balance_promotion.toml")
	require.NoError(t, err)
	require.Contains(t, out, "promoted")
	require.Contains(t, out, "mined")
	require.Contains(t, out, "Pending best=000000..000002 worst=000000..000004\n")
	require.True(t, strings.HasSuffix(out, "pending=3 baseFee=0 queued=0\n"), out)
}

func TestParseScenario(t *testing.T) {
	_, err := parseScenario([]byte(`[[accounts]]
address = "0x000000000000000000000000000000000000000a"
`))
	require.ErrorIs(t, err, errBadScenario)

	_, err = parseScenario([]byte(`[[blocks]]
number = 1
gas_price = 3
`))
	require.ErrorIs(t, err, errBadScenario)

	_, err = parseScenario([]byte(`[[txns]]
hash = "0x01"
after_block = 1
[[txns]]
hash = "0x0001"
after_block = 1
[[blocks]]
number = 1
`))
	require.ErrorIs(t, err, errBadScenario)
	require.ErrorContains(t, err, "duplicate")

	// after_block defaults to 0, which is not a block of the scenario
	_, err = parseScenario([]byte(`[[txns]]
hash = "0x01"
[[blocks]]
number = 1
`))
	require.ErrorIs(t, err, errBadScenario)
	require.ErrorContains(t, err, "after block 0")

	_, err = parseScenario([]byte(`[[txns]]
hash = "0x01"
after_block = 3
[[blocks]]
number = 1
[[blocks]]
number = 2
`))
	require.ErrorIs(t, err, errBadScenario)

	sc, err := parseScenario([]byte(`[[txns]]
hash = "0x01"
after_block = 1
[[blocks]]
number = 1
pending_base_fee = 7
`))
	require.NoError(t, err)
	require.Equal(t, uint64(7), sc.Blocks[0].PendingBaseFee)
	require.Equal(t, uint64(1), sc.Txns[0].AfterBlock)
}
