// Copyright 2024 The reposit Authors
// This file is part of the reposit library.
//
// The reposit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The reposit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the reposit library. If not, see <http://www.gnu.org/licenses/>.

// snaprepo is a small operator CLI for inspecting and exercising a
// repository from a terminal: list committed snapshots, run one
// verification round trip, or delete a snapshot by name.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/blobsnap/reposit/blobstore/localfs"
	"github.com/blobsnap/reposit/repository"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to the repository's TOML configuration file",
		Value: "snaprepo.toml",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "snaprepo"
	app.Usage = "inspect and exercise a blob-store-backed snapshot repository"
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []cli.Command{
		listCommand,
		verifyCommand,
		deleteCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openRepository(ctx *cli.Context) (*repository.Repository, error) {
	cfg, err := repository.LoadConfig(ctx.GlobalString(configFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	backend, err := localfs.New(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("opening backend: %w", err)
	}
	repo := repository.New(cfg, backend, nil)
	if err := repo.Start(); err != nil {
		return nil, err
	}
	return repo, nil
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list every committed snapshot",
	Action: func(ctx *cli.Context) error {
		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		if repo.ReadOnly() {
			color.Yellow("repository is read-only")
		}

		ids, err := repo.Snapshots()
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "UUID"})
		for _, id := range ids {
			table.Append([]string{id.Name, id.UUID})
		}
		table.Render()
		return nil
	},
}

var verifyCommand = cli.Command{
	Name:  "verify",
	Usage: "run one verification round trip and report its latency",
	Action: func(ctx *cli.Context) error {
		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		start := time.Now()
		token, err := repo.StartVerification()
		if err != nil {
			return err
		}
		if token == "" {
			color.Yellow("repository is read-only; nothing to verify")
			return nil
		}
		if err := repo.EndVerification(token); err != nil {
			return err
		}
		color.Green("verification round trip ok in %s", time.Since(start))
		return nil
	},
}

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "delete a snapshot by name",
	ArgsUsage: "NAME",
	Action: func(ctx *cli.Context) error {
		name := ctx.Args().First()
		if name == "" {
			return cli.NewExitError("delete requires a snapshot name", 1)
		}
		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		ids, err := repo.Resolve([]string{name})
		if err != nil {
			return err
		}
		if err := repo.Delete(ids[0]); err != nil {
			return err
		}
		color.Green("deleted %s (%s)", ids[0].Name, ids[0].UUID)
		return nil
	},
}
