// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Private-material markers.
//
// The signing pattern matches nkeys seeds for every key class that can
// sign tokens or decrypt traffic: Operator, Account, cluster, server,
// and curve seeds. These must never appear in the shared area under
// any circumstances.
//
// User seeds are a separate pattern: guard credential files (the
// deny-all sentinel, the bootstrap admin bundle) legitimately embed a
// user seed and are distributed through the shared area by design —
// the identities are either permission-less or short-lived. User seeds
// are still rejected from ordinary shared artifacts.
//
// 40 characters of base32 is well under the real 56-character payload
// but comfortably above anything in legitimate public artifacts. The
// leading guard ensures the match starts at a token boundary — public
// keys are themselves long base32 runs and would otherwise produce
// false positives when an interior "S" lines up with a class byte.
var (
	signingSeedPattern = regexp.MustCompile(`(^|[^A-Z2-7])S[OACNX][A-Z2-7]{40,}`)
	userSeedPattern    = regexp.MustCompile(`(^|[^A-Z2-7])SU[A-Z2-7]{40,}`)

	textMarkers = []string{
		"AGE-SECRET-KEY-1",
		"PRIVATE KEY-----",
	}
)

// ScanPrivateMaterial checks artifact bytes for anything that looks
// like private key material: nkeys seeds of any class, age identities,
// or PEM private key blocks. Returns ErrIntegrityViolation naming the
// marker class (never the matched bytes) when found.
func ScanPrivateMaterial(data []byte) error {
	if err := ScanSigningMaterial(data); err != nil {
		return err
	}
	if userSeedPattern.Match(data) {
		return fmt.Errorf("%w: found user seed", ErrIntegrityViolation)
	}
	return nil
}

// ScanSigningMaterial is ScanPrivateMaterial minus the user-seed
// check. Guard credential files are screened with this variant: they
// carry a user seed on purpose, but an operator or account seed inside
// one is still a fatal leak.
func ScanSigningMaterial(data []byte) error {
	content := string(data)
	for _, marker := range textMarkers {
		if strings.Contains(content, marker) {
			return fmt.Errorf("%w: found %q marker", ErrIntegrityViolation, marker)
		}
	}
	if signingSeedPattern.MatchString(content) {
		return fmt.Errorf("%w: found signing seed", ErrIntegrityViolation)
	}
	return nil
}

// credsFileSuffix marks guard credential bundles in the shared area.
const credsFileSuffix = ".creds"

// VerifyIntegrity sweeps every artifact under the shared root and
// fails on the first one containing private material. Credential
// bundles (*.creds) are permitted to carry a user seed; nothing in the
// shared root may carry signing material. Run after provisioning and
// from diagnostics — the shared root is copied to every host, so a
// single leaked seed here compromises the chain.
func (s *Store) VerifyIntegrity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filepath.WalkDir(s.sharedDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
		}
		scan := ScanPrivateMaterial
		if strings.HasSuffix(entry.Name(), credsFileSuffix) {
			scan = ScanSigningMaterial
		}
		if err := scan(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
}
