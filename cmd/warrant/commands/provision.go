// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
	"github.com/bureau-foundation/warrant/lib/chain"
)

func provisionCommand() *cli.Command {
	var sharedDir, localDir, specPath string
	return &cli.Command{
		Name:    "provision",
		Summary: "Build or verify the chain of trust from a spec",
		Description: "Provision reads a JSONC spec and builds every artifact it\n" +
			"declares: operator and account keys, per-role signing keys, guard\n" +
			"identities, and the shared trust anchors. Reruns verify existing\n" +
			"artifacts and only write what the spec added.",
		Examples: []cli.Example{
			{
				Description: "Provision a deployment from a reviewed spec",
				Command:     "warrant provision --spec deploy/trust.jsonc --shared /var/lib/warrant/shared --local /var/lib/warrant/local",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("provision", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&specPath, "spec", "", "JSONC provisioning spec (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if specPath == "" {
				return fmt.Errorf("--spec is required")
			}
			spec, err := chain.ParseSpecFile(specPath)
			if err != nil {
				return err
			}
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "provision", "operator", spec.Operator)
			result, err := chain.NewBuilder(store, logger).Provision(context.Background(), spec)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, outcome := range result.Outcomes {
				fmt.Fprintf(writer, "%s\t%s\n", outcome.Status, outcome.Artifact)
			}
			writer.Flush()

			// The integrity sweep is cheap and the run just wrote to
			// the shared area: verify before reporting success.
			if err := store.VerifyIntegrity(); err != nil {
				return err
			}
			fmt.Printf("operator %s (%s): %d accounts\n",
				result.Operator.Name, result.Operator.PublicKey, len(result.Accounts))
			return nil
		},
	}
}
