// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"fmt"

	"github.com/nats-io/nkeys"
)

// Operator is the root identity of the trust domain. Exactly one
// operator exists per deployment; every account token chains back to
// it. The operator's seed is created once and escrowed — if it is
// lost, the entire chain must be rebuilt.
type Operator struct {
	// Name is the operator's identifier (e.g., "bureau").
	Name string

	// PublicKey is the operator's root public key ("O..." prefix).
	PublicKey string

	// SigningKeys are the public keys of the operator's signing keys.
	// All subordinate account tokens are countersigned by one of
	// these, never by the root key directly, so a compromised signing
	// key can be rotated without rebuilding the chain.
	SigningKeys []string

	// SystemAccount is the public key of the designated system
	// account.
	SystemAccount string
}

// Account is a namespace of subjects with its own signing keys and
// resource quotas.
type Account struct {
	// Name identifies the account (e.g., "ADMIN", "AUTH", "WORKLOAD").
	Name string

	// PublicKey is the account's root public key ("A..." prefix).
	PublicKey string

	// SigningKeys are the account's subordinate signing keys, one per
	// role. Removing an entry revokes the key: user tokens it issued
	// stop verifying against the account.
	SigningKeys []SigningKey

	// Limits are the account's stream-storage quotas.
	Limits StreamLimits

	// Exports are subjects this account makes visible to others.
	Exports []Share

	// Imports are subjects this account pulls in from others.
	Imports []Share
}

// SigningKey is a subordinate key pair scoped under an account. It
// signs user tokens on the account's behalf so the account root seed
// never has to be online.
type SigningKey struct {
	// PublicKey is the signing key's public key ("A..." prefix; a
	// signing key is an account-class key pair).
	PublicKey string

	// Account is the name of the owning account.
	Account string

	// Role names the permission template attached to this key. Every
	// user token issued by this key carries the role's resolved
	// permissions.
	Role string
}

// StreamLimits are the persistent-stream quotas enabled on an account.
// Zero values leave the corresponding resource disabled.
type StreamLimits struct {
	// MemoryStorage is the maximum bytes of memory-backed stream
	// storage. -1 is unlimited.
	MemoryStorage int64

	// DiskStorage is the maximum bytes of disk-backed stream storage.
	// -1 is unlimited.
	DiskStorage int64

	// Streams is the maximum number of streams. -1 is unlimited.
	Streams int64

	// Consumers is the maximum number of consumers. -1 is unlimited.
	Consumers int64
}

// Share declares a cross-account subject relation: an export makes
// Subject visible under the exporting account, an import binds a
// remote account's exported Subject into the importing account's
// namespace.
type Share struct {
	// Name is a human-readable label for the relation.
	Name string

	// Subject is the shared subject pattern.
	Subject string

	// Account is the counterpart account name. For exports this is
	// empty (public export) or the intended importer; for imports it
	// is the exporting account.
	Account string
}

// SigningKeyForRole returns the account's signing key for the named
// role, or false if the role has no valid signing key (e.g., it was
// revoked).
func (a *Account) SigningKeyForRole(role string) (SigningKey, bool) {
	for _, key := range a.SigningKeys {
		if key.Role == role {
			return key, true
		}
	}
	return SigningKey{}, false
}

// HasSigningKey reports whether the public key is still listed as a
// valid signing key under the account. Grant verification traces every
// issued token back through this check.
func (a *Account) HasSigningKey(publicKey string) bool {
	for _, key := range a.SigningKeys {
		if key.PublicKey == publicKey {
			return true
		}
	}
	return false
}

// ValidateOperatorKey checks that s is a well-formed operator public
// key.
func ValidateOperatorKey(s string) error {
	if !nkeys.IsValidPublicOperatorKey(s) {
		return fmt.Errorf("trust: %q is not an operator public key", s)
	}
	return nil
}

// ValidateAccountKey checks that s is a well-formed account public
// key. Account signing keys are account-class keys, so this covers
// both.
func ValidateAccountKey(s string) error {
	if !nkeys.IsValidPublicAccountKey(s) {
		return fmt.Errorf("trust: %q is not an account public key", s)
	}
	return nil
}

// ValidateUserKey checks that s is a well-formed user public key.
func ValidateUserKey(s string) error {
	if !nkeys.IsValidPublicUserKey(s) {
		return fmt.Errorf("trust: %q is not a user public key", s)
	}
	return nil
}
