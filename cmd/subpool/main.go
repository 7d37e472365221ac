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
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"
)

var VerbosityFlag = cli.IntFlag{
	Name:  "verbosity",
	Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
	Value: int(log.LvlInfo),
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "subpool"
	app.Usage = "inspect and replay txpool sub-pool classification"
	app.UsageText = app.Name + ` [command] [flags]`
	app.Flags = []cli.Flag{
		&VerbosityFlag,
	}
	app.Commands = []*cli.Command{
		&tableCommand,
		&classifyCommand,
		&compareCommand,
		&simulateCommand,
	}
	return app
}

func setupLogger(cliCtx *cli.Context) log.Logger {
	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(log.Lvl(cliCtx.Int(VerbosityFlag.Name)), log.StderrHandler))
	return logger
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
