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
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/subpool/txnprovider/txpool"
)

var (
	SubPoolFilterFlag = cli.StringFlag{
		Name:  "pool",
		Usage: "Only show markers classified into this sub-pool: Pending, BaseFee or Queued",
	}
	MarkerFlag = cli.StringFlag{
		Name:  "marker",
		Usage: "Marker as an integer, accepts 0b, 0o and 0x prefixes. Overrides the condition flags",
	}
	FeeCapProtocolFlag = cli.BoolFlag{Name: "fee-cap-protocol", Usage: "Fee cap meets the protocol minimum"}
	NoNonceGapsFlag    = cli.BoolFlag{Name: "no-nonce-gaps", Usage: "No nonce gap before the transaction"}
	EnoughBalanceFlag  = cli.BoolFlag{Name: "enough-balance", Usage: "Balance covers this and all lower nonce transactions"}
	NotTooMuchGasFlag  = cli.BoolFlag{Name: "not-too-much-gas", Usage: "Gas limit fits into the block gas limit"}
	FeeCapBlockFlag    = cli.BoolFlag{Name: "fee-cap-block", Usage: "Fee cap meets the pending block base fee"}
	LocalFlag          = cli.BoolFlag{Name: "local", Usage: "Transaction was submitted locally"}
	FromFlag           = cli.StringFlag{Name: "from", Usage: "Sub-pool before the change", Required: true}
	ToFlag             = cli.StringFlag{Name: "to", Usage: "Sub-pool after the change", Required: true}
)

var tableCommand = cli.Command{
	Name:  "table",
	Usage: "Print every marker together with its sub-pool",
	Flags: []cli.Flag{
		&SubPoolFilterFlag,
	},
	Action: func(cliCtx *cli.Context) error {
		var filter txpool.SubPoolType
		if s := cliCtx.String(SubPoolFilterFlag.Name); s != "" {
			sp, err := txpool.ParseSubPoolType(s)
			if err != nil {
				return err
			}
			filter = sp
		}
		return printMarkerTable(cliCtx.App.Writer, filter)
	},
}

var classifyCommand = cli.Command{
	Name:  "classify",
	Usage: "Classify a marker into its sub-pool",
	Flags: []cli.Flag{
		&MarkerFlag,
		&FeeCapProtocolFlag,
		&NoNonceGapsFlag,
		&EnoughBalanceFlag,
		&NotTooMuchGasFlag,
		&FeeCapBlockFlag,
		&LocalFlag,
	},
	Action: func(cliCtx *cli.Context) error {
		marker, err := markerFromFlags(cliCtx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cliCtx.App.Writer, "%s %s\n", marker, txpool.Classify(marker))
		return err
	},
}

var compareCommand = cli.Command{
	Name:  "compare",
	Usage: "Tell whether a move between two sub-pools is a promotion or a demotion",
	Flags: []cli.Flag{
		&FromFlag,
		&ToFlag,
	},
	Action: func(cliCtx *cli.Context) error {
		from, err := txpool.ParseSubPoolType(cliCtx.String(FromFlag.Name))
		if err != nil {
			return err
		}
		to, err := txpool.ParseSubPoolType(cliCtx.String(ToFlag.Name))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cliCtx.App.Writer, txpool.Compare(from, to))
		return err
	},
}

func markerFromFlags(cliCtx *cli.Context) (txpool.SubPoolMarker, error) {
	if s := cliCtx.String(MarkerFlag.Name); s != "" {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return 0, fmt.Errorf("bad marker %q: %w", s, err)
		}
		return txpool.NewSubPoolMarker(uint8(v))
	}
	return txpool.Conditions{
		EnoughFeeCapProtocol: cliCtx.Bool(FeeCapProtocolFlag.Name),
		NoNonceGaps:          cliCtx.Bool(NoNonceGapsFlag.Name),
		EnoughBalance:        cliCtx.Bool(EnoughBalanceFlag.Name),
		NotTooMuchGas:        cliCtx.Bool(NotTooMuchGasFlag.Name),
		EnoughFeeCapBlock:    cliCtx.Bool(FeeCapBlockFlag.Name),
		IsLocal:              cliCtx.Bool(LocalFlag.Name),
	}.Marker(), nil
}

func printMarkerTable(w io.Writer, filter txpool.SubPoolType) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"value", "marker", "sub-pool"})
	rows := 0
	for v := uint8(0); v <= uint8(txpool.AllMarkerBits); v++ {
		marker, err := txpool.NewSubPoolMarker(v)
		if err != nil {
			return err
		}
		sp := marker.SubPool()
		if filter != 0 && sp != filter {
			continue
		}
		tw.AppendRow(table.Row{v, marker, sp})
		rows++
	}
	tw.AppendFooter(table.Row{"", "total", rows})
	tw.Render()
	return nil
}
