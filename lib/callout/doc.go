// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package callout implements the authorization decision service. A
// connecting host presents a request token naming its public key, the
// account/role it wants, and its host tag; the service validates the
// request's signer against the trusted-requester anchor, resolves the
// role from the account's signed record, substitutes the tag into the
// role's permission templates, and answers with a short-lived grant
// signed by the role's signing key.
//
// The service holds no policy of its own: roles are declared at
// provisioning time and read back from the verified trust anchors.
// Rejections are classified internally (untrusted caller, no matching
// role, key revoked, timeout, malformed request) and audited with full
// detail, but the rejected party only ever receives a generic
// authorization violation.
package callout
