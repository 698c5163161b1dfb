// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// warrant-auth-service is the authorization decision daemon: it
// connects to the message transport with the relay credentials,
// subscribes to the callout subject, and answers connection requests
// with short-lived signed grants (or generic rejections).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warrant/lib/auditlog"
	"github.com/bureau-foundation/warrant/lib/callout"
	"github.com/bureau-foundation/warrant/lib/chain"
	"github.com/bureau-foundation/warrant/lib/keystore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warrant-auth-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "/etc/warrant/auth-service.yaml", "configuration file")
	pflag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("starting",
		"transport", config.TransportURL,
		"operator", config.Operator,
		"auth_account", config.AuthAccount)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := keystore.New(config.SharedDir, config.LocalDir)
	if err != nil {
		return err
	}

	var audit *auditlog.Writer
	if config.AuditLog != "" {
		audit, err = auditlog.OpenWriter(config.AuditLog)
		if err != nil {
			return err
		}
		defer audit.Close()
	} else {
		logger.Warn("audit log disabled")
	}

	authorizer, err := callout.New(callout.Config{
		Store:           store,
		Operator:        config.Operator,
		AuthAccount:     config.AuthAccount,
		ResponseRole:    config.ResponseRole,
		TokenTTL:        time.Duration(config.TokenTTL),
		DecisionTimeout: time.Duration(config.DecisionTimeout),
		Log:             logger,
		Audit:           audit,
	})
	if err != nil {
		return err
	}

	credsPath := filepath.Join(config.LocalDir, chain.RelayCredsName(config.Operator, config.AuthAccount))
	conn, err := callout.Connect(config.TransportURL, credsPath)
	if err != nil {
		return err
	}
	defer conn.Drain()

	if refresh := time.Duration(config.ViewRefresh); refresh > 0 {
		go refreshView(ctx, authorizer, refresh, logger)
	}

	return authorizer.Run(ctx, conn)
}

// refreshView periodically reloads the trust view so provisioning
// changes (new roles, delisted keys) take effect without a restart.
func refreshView(ctx context.Context, authorizer *callout.Authorizer, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authorizer.Reload(); err != nil {
				logger.Error("trust view reload failed", "error", err)
			}
		}
	}
}
