// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust defines the chain-of-trust data model: operator,
// accounts, scoped signing keys, roles, and typed permission
// templates. The types here are pure data — no I/O, no key material.
// Seeds live in lib/keystore; token construction lives in lib/chain;
// per-connection decisions live in lib/callout.
//
// The role/template model is the heart of the scoping discipline.
// Templates are parsed into typed fragments at spec load time, so a
// host tag substituted at issuance time can only occupy a single
// subject token — it can never smuggle in separators or wildcards and
// widen a pre-approved pattern.
package trust
