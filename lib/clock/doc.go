// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. The authorization
// decision service stamps token expiries and audit records through a
// Clock so that tests can verify expiry and timeout behavior without
// real sleeps.
package clock
