// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain provisions the chain of trust: operator root and
// signing keys, accounts with one scoped signing key per role, the
// guard identities the transport needs (deny-all sentinel,
// authorization relay, bootstrap administrator), and the shared trust
// anchors the external message transport is configured from.
//
// Provisioning is driven by a declarative JSONC spec and is idempotent:
// a rerun over a complete store verifies every artifact and writes
// nothing. Artifacts that contradict the spec or each other fail the
// run with ErrInconsistentState rather than being silently repaired;
// anchors whose local seeds have gone missing fail with
// ErrMissingPrerequisite.
package chain
