// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subject implements the message-bus subject syntax used by
// warrant role templates and issued grants: dot-separated tokens with
// the "*" single-token wildcard and the ">" terminal full wildcard.
//
// Three operations cover all callers: Validate/ValidatePattern for
// syntax checks at spec-load and issuance time, Match for grant
// evaluation in tests and diagnostics, and Overlaps for proving that
// patterns resolved for different host tags can never collide.
package subject
