// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the warrant CLI command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
	"github.com/bureau-foundation/warrant/lib/keystore"
)

// Root returns the top-level warrant command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "warrant",
		Summary: "Chain-of-trust provisioning and credential management",
		Description: "warrant provisions and maintains the chain of trust for the\n" +
			"message transport: operator and account keys, per-role signing\n" +
			"keys, guard identities, and the shared trust anchors hosts are\n" +
			"bootstrapped from.",
		Subcommands: []*cli.Command{
			provisionCommand(),
			keysCommand(),
			resolverCommand(),
			escrowCommand(),
			auditCommand(),
			storeCommand(),
		},
	}
}

// storeFlags registers the credential store location flags shared by
// most commands.
func storeFlags(flagSet *pflag.FlagSet, sharedDir, localDir *string) {
	flagSet.StringVar(sharedDir, "shared", envOr("WARRANT_SHARED_DIR", "/var/lib/warrant/shared"),
		"shared credential area (distributable anchors)")
	flagSet.StringVar(localDir, "local", envOr("WARRANT_LOCAL_DIR", "/var/lib/warrant/local"),
		"local credential area (seeds; never leaves this node)")
}

func openStore(sharedDir, localDir string) (*keystore.Store, error) {
	store, err := keystore.New(sharedDir, localDir)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	return store, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// storeCommand lists what the shared area holds.
func storeCommand() *cli.Command {
	var sharedDir, localDir string
	return &cli.Command{
		Name:    "store",
		Summary: "Inspect the credential store",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "List shared trust anchors",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
					storeFlags(flagSet, &sharedDir, &localDir)
					return flagSet
				},
				Run: func(args []string) error {
					store, err := openStore(sharedDir, localDir)
					if err != nil {
						return err
					}
					names, err := store.ListShared()
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Println(name)
					}
					return nil
				},
			},
		},
	}
}
