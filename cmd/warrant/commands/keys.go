// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/nats-io/nkeys"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Summary: "Signing key maintenance and integrity checks",
		Subcommands: []*cli.Command{
			keysCheckCommand(),
			keysExtractCommand(),
			keysRevokeCommand(),
		},
	}
}

// keysCheckCommand sweeps the shared area for leaked private material.
func keysCheckCommand() *cli.Command {
	var sharedDir, localDir string
	return &cli.Command{
		Name:    "check",
		Summary: "Verify the shared area holds no private key material",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			return flagSet
		},
		Run: func(args []string) error {
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}
			if err := store.VerifyIntegrity(); err != nil {
				fmt.Fprintf(os.Stderr, "integrity check failed: %v\n", err)
				return &cli.ExitError{Code: 1}
			}
			fmt.Println("shared area clean")
			return nil
		},
	}
}

// keysExtractCommand prints a signing key seed by public key. For
// moving a role's issuing capability to another node; the output is a
// raw seed and must be handled accordingly.
func keysExtractCommand() *cli.Command {
	var sharedDir, localDir, accountKey, signingKey string
	return &cli.Command{
		Name:    "extract",
		Summary: "Print a signing key seed by public key",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("extract", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&accountKey, "account", "", "account public key (required)")
			flagSet.StringVar(&signingKey, "key", "", "signing key public key (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if accountKey == "" || signingKey == "" {
				return fmt.Errorf("--account and --key are required")
			}
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}
			seed, err := store.ExtractSigningKey(accountKey, signingKey)
			if err != nil {
				return err
			}
			defer seed.Close()
			os.Stdout.Write(seed.Bytes())
			fmt.Println()
			return nil
		},
	}
}

// keysRevokeCommand removes a role's signing key seed. The decision
// service fails closed for the role immediately; re-provisioning mints
// a replacement key.
func keysRevokeCommand() *cli.Command {
	var sharedDir, localDir, operator, account, role string
	return &cli.Command{
		Name:    "revoke",
		Summary: "Remove a role's signing key seed",
		Examples: []cli.Example{
			{
				Description: "Revoke the workload role's issuing key",
				Command:     "warrant keys revoke --operator bureau --account WORKLOAD --role workload",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&operator, "operator", "", "operator name (required)")
			flagSet.StringVar(&account, "account", "", "account name (required)")
			flagSet.StringVar(&role, "role", "", "role name (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if operator == "" || account == "" || role == "" {
				return fmt.Errorf("--operator, --account, and --role are required")
			}
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}

			// Resolve the public key from the role-named seed so both
			// local layouts are removed together.
			seed, err := store.SigningKeySeed(operator, account, role)
			if err != nil {
				return err
			}
			keyPair, err := nkeys.FromSeed(seed.Bytes())
			seed.Close()
			if err != nil {
				return fmt.Errorf("parsing seed for %s/%s: %w", account, role, err)
			}
			publicKey, err := keyPair.PublicKey()
			if err != nil {
				return err
			}

			if err := store.RemoveSigningKey(operator, account, role, publicKey); err != nil {
				return err
			}
			fmt.Printf("revoked %s/%s/%s (%s)\n", operator, account, role, publicKey)
			fmt.Println("rerun provisioning to mint a replacement key")
			return nil
		},
	}
}
