// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
	"github.com/bureau-foundation/warrant/lib/resolver"
)

func resolverCommand() *cli.Command {
	return &cli.Command{
		Name:    "resolver",
		Summary: "Synthesize the transport's account resolver configuration",
		Subcommands: []*cli.Command{
			resolverSynthCommand(),
		},
	}
}

func resolverSynthCommand() *cli.Command {
	var sharedDir, localDir, outputPath string
	return &cli.Command{
		Name:    "synth",
		Summary: "Render the resolver preload table from the shared anchors",
		Description: "Synth reads the operator and account anchors and renders the\n" +
			"memory-resolver configuration. The output is deterministic; with\n" +
			"--output the file is only rewritten when its fingerprint changed.",
		Examples: []cli.Example{
			{
				Description: "Regenerate the transport config after provisioning",
				Command:     "warrant resolver synth --output /etc/transport/resolver.conf",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("synth", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&outputPath, "output", "", "write to file instead of stdout")
			return flagSet
		},
		Run: func(args []string) error {
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}
			table, err := resolver.Synthesize(store)
			if err != nil {
				return err
			}
			rendered := table.Render()

			if outputPath == "" {
				os.Stdout.Write(rendered)
				return nil
			}
			changed, err := resolver.WriteFile(outputPath, rendered)
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("%s updated (%s)\n", outputPath, resolver.Fingerprint(rendered)[:16])
			} else {
				fmt.Printf("%s unchanged\n", outputPath)
			}
			return nil
		},
	}
}
