// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
	"github.com/bureau-foundation/warrant/lib/escrow"
	"github.com/bureau-foundation/warrant/lib/secret"
)

func escrowCommand() *cli.Command {
	return &cli.Command{
		Name:    "escrow",
		Summary: "Seal and recover root seed material",
		Subcommands: []*cli.Command{
			escrowKeygenCommand(),
			escrowSealCommand(),
			escrowUnsealCommand(),
		},
	}
}

func escrowKeygenCommand() *cli.Command {
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an escrow keypair",
		Description: "Keygen prints a fresh age keypair. Record the recipient in the\n" +
			"provisioning spec; store the identity offline — it is shown once\n" +
			"and never written to the key store.",
		Run: func(args []string) error {
			keypair, err := escrow.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()
			fmt.Printf("recipient: %s\n", keypair.Recipient)
			fmt.Printf("identity:  %s\n", keypair.Identity.String())
			fmt.Fprintln(os.Stderr, "store the identity offline; it will not be shown again")
			return nil
		},
	}
}

func escrowSealCommand() *cli.Command {
	var sharedDir, localDir, name, output, recipient string
	var purge bool
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal a local seed to an escrow recipient",
		Examples: []cli.Example{
			{
				Description: "Seal the operator root seed and remove the plaintext",
				Command:     "warrant escrow seal --name bureau/operator.nk --recipient age1... --purge",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&name, "name", "", "local artifact to seal (required)")
			flagSet.StringVar(&output, "output", "", "sealed artifact name (default: <name>.age)")
			flagSet.StringVar(&recipient, "recipient", "", "age recipient (required)")
			flagSet.BoolVar(&purge, "purge", false, "remove the plaintext after sealing")
			return flagSet
		},
		Run: func(args []string) error {
			if name == "" || recipient == "" {
				return fmt.Errorf("--name and --recipient are required")
			}
			if err := escrow.ParseRecipient(recipient); err != nil {
				return err
			}
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}

			plaintext, err := store.GetLocal(name)
			if err != nil {
				return err
			}
			ciphertext, err := escrow.Seal(plaintext.Bytes(), []string{recipient})
			plaintext.Close()
			if err != nil {
				return err
			}

			sealedName := output
			if sealedName == "" {
				sealedName = name + ".age"
			}
			if err := store.PutLocal(sealedName, []byte(ciphertext)); err != nil {
				return err
			}
			fmt.Printf("sealed %s -> %s\n", name, sealedName)

			if purge {
				if err := store.RemoveLocal(name); err != nil {
					return err
				}
				fmt.Printf("removed plaintext %s\n", name)
			}
			return nil
		},
	}
}

func escrowUnsealCommand() *cli.Command {
	var sharedDir, localDir, name, identityFile string
	var passphrase bool
	return &cli.Command{
		Name:    "unseal",
		Summary: "Recover a sealed seed",
		Description: "Unseal decrypts a sealed artifact and writes the plaintext seed\n" +
			"back to its local name (the sealed name minus the .age suffix).",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unseal", pflag.ContinueOnError)
			storeFlags(flagSet, &sharedDir, &localDir)
			flagSet.StringVar(&name, "name", "", "sealed artifact to recover (required)")
			flagSet.StringVar(&identityFile, "identity-file", "", "file holding the age identity")
			flagSet.BoolVar(&passphrase, "passphrase", false, "prompt for a passphrase instead of an identity")
			return flagSet
		},
		Run: func(args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if (identityFile == "") == !passphrase {
				return fmt.Errorf("exactly one of --identity-file or --passphrase is required")
			}
			store, err := openStore(sharedDir, localDir)
			if err != nil {
				return err
			}
			sealed, err := store.GetLocal(name)
			if err != nil {
				return err
			}
			defer sealed.Close()

			var plaintext *secret.Buffer
			if passphrase {
				pass, err := promptPassphrase()
				if err != nil {
					return err
				}
				defer pass.Close()
				plaintext, err = escrow.UnsealWithPassphrase(sealed.String(), pass)
				if err != nil {
					return err
				}
			} else {
				identity, err := secret.ReadFile(identityFile)
				if err != nil {
					return fmt.Errorf("reading identity: %w", err)
				}
				defer identity.Close()
				plaintext, err = escrow.Unseal(sealed.String(), identity)
				if err != nil {
					return err
				}
			}
			defer plaintext.Close()

			recoveredName, found := strings.CutSuffix(name, ".age")
			if !found || recoveredName == "" {
				return fmt.Errorf("sealed artifact %q does not end in .age", name)
			}
			if err := store.PutLocal(recoveredName, plaintext.Bytes()); err != nil {
				return err
			}
			fmt.Printf("recovered %s\n", recoveredName)
			return nil
		},
	}
}

func promptPassphrase() (*secret.Buffer, error) {
	fmt.Fprint(os.Stderr, "passphrase: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return secret.NewFromBytes(raw)
}
