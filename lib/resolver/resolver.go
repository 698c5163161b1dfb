// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver synthesizes the transport's account resolver
// configuration from the shared trust anchors: the operator token, the
// system account, and a preload table of every account token keyed by
// public key. The output is deterministic — same anchors, same bytes —
// so configuration management can diff it, and WriteFile only touches
// the target when the content fingerprint actually changed.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nats-io/jwt/v2"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/warrant/lib/chain"
	"github.com/bureau-foundation/warrant/lib/keystore"
)

// Table is the synthesized resolver input.
type Table struct {
	// OperatorJWT is the encoded operator trust anchor.
	OperatorJWT string

	// SystemAccount is the system account's public key, read from the
	// operator token.
	SystemAccount string

	// Accounts maps account public key to encoded token.
	Accounts map[string]string
}

// Synthesize builds the table from the store's shared anchors. Account
// tokens are verified against the operator before inclusion: the
// resolver table must never launder an anchor the chain does not
// vouch for.
func Synthesize(store *keystore.Store) (*Table, error) {
	operatorData, err := store.GetShared(chain.OperatorJWTName())
	if err != nil {
		return nil, err
	}
	operator, err := jwt.DecodeOperatorClaims(string(operatorData))
	if err != nil {
		return nil, fmt.Errorf("resolver: decoding operator anchor: %w", err)
	}

	table := &Table{
		OperatorJWT:   string(operatorData),
		SystemAccount: operator.SystemAccount,
		Accounts:      make(map[string]string),
	}

	names, err := store.ListShared()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		base, ok := strings.CutPrefix(name, "accounts/")
		if !ok || !strings.HasSuffix(base, ".jwt") {
			continue
		}
		data, err := store.GetShared(name)
		if err != nil {
			return nil, err
		}
		account, err := jwt.DecodeAccountClaims(string(data))
		if err != nil {
			return nil, fmt.Errorf("resolver: decoding account anchor %s: %w", name, err)
		}
		if !operator.DidSign(account) {
			return nil, fmt.Errorf("resolver: account anchor %s issued outside the operator key set", name)
		}
		table.Accounts[account.Subject] = string(data)
	}

	return table, nil
}

// Render emits the resolver configuration. Accounts are ordered by
// public key so the output is byte-identical for identical anchors.
func (t *Table) Render() []byte {
	keys := make([]string, 0, len(t.Accounts))
	for key := range t.Accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString("# Synthesized account resolver configuration. Do not edit:\n")
	builder.WriteString("# regenerate from the credential store after provisioning changes.\n")
	builder.WriteString("operator: " + t.OperatorJWT + "\n")
	if t.SystemAccount != "" {
		builder.WriteString("system_account: " + t.SystemAccount + "\n")
	}
	builder.WriteString("resolver: MEMORY\n")
	builder.WriteString("resolver_preload: {\n")
	for _, key := range keys {
		builder.WriteString("  " + key + ": " + t.Accounts[key] + ",\n")
	}
	builder.WriteString("}\n")
	return []byte(builder.String())
}

// Fingerprint returns the hex BLAKE3 digest of rendered content.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// WriteFile writes the rendered table to path, reporting whether the
// file changed. An existing file with the same fingerprint is left
// untouched so the transport's config watcher sees no spurious reload.
func WriteFile(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && Fingerprint(existing) == Fingerprint(data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("resolver: reading %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("resolver: creating %s: %w", dir, err)
	}
	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return false, fmt.Errorf("resolver: creating temp file: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if err := temp.Chmod(0o644); err != nil {
		temp.Close()
		return false, fmt.Errorf("resolver: chmod %s: %w", tempPath, err)
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return false, fmt.Errorf("resolver: writing %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return false, fmt.Errorf("resolver: closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return false, fmt.Errorf("resolver: renaming into place: %w", err)
	}
	return true, nil
}
