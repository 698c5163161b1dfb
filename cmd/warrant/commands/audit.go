// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/cmd/warrant/cli"
	"github.com/bureau-foundation/warrant/lib/auditlog"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "Inspect the authorization decision log",
		Subcommands: []*cli.Command{
			auditListCommand(),
		},
	}
}

func auditListCommand() *cli.Command {
	var logPath string
	var rejectedOnly bool
	return &cli.Command{
		Name:    "list",
		Summary: "List recorded authorization decisions",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&logPath, "file", envOr("WARRANT_AUDIT_LOG", "/var/log/warrant/decisions.log"),
				"audit log file")
			flagSet.BoolVar(&rejectedOnly, "rejected", false, "only show rejections")
			return flagSet
		},
		Run: func(args []string) error {
			records, err := auditlog.ReadFile(logPath)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "TIME\tCLIENT\tACCOUNT/ROLE\tTAG\tOUTCOME")
			for _, record := range records {
				if rejectedOnly && record.Allowed {
					continue
				}
				outcome := "granted " + record.TokenID
				if !record.Allowed {
					outcome = "rejected: " + record.Reason
				}
				fmt.Fprintf(writer, "%s\t%s\t%s/%s\t%s\t%s\n",
					time.Unix(record.Time, 0).UTC().Format(time.RFC3339),
					record.ClientKey, record.Account, record.Role, record.Tag, outcome)
			}
			return writer.Flush()
		},
	}
}
