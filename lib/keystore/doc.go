// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore is the credential store: the at-rest representation
// and access control for everything the chain of trust produces.
//
// Two disjoint areas with opposite distribution rules:
//
//   - shared: operator and account tokens, guard user credentials.
//     World-readable, copied to every host. Every write is screened
//     so that no private key material can land here.
//   - local: operator, account, and signing-key seeds. Owner-only,
//     never distributed. Seeds are read into mmap-locked buffers
//     (lib/secret) and stored twice: named by role for the builder
//     and decision service, and sharded by public-key prefix for
//     reverse lookups.
//
// The directory-as-database layout is an implementation detail behind
// the Store API; callers never construct seed paths themselves.
// Writes serialize behind a single mutex, reads run concurrently —
// the decision service's hot path is read-only.
package keystore
