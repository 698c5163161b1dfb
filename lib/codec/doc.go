// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding and decoding for
// warrant wire and storage formats, primarily the authorization
// decision audit log. It wraps fxamacker/cbor configured for Core
// Deterministic Encoding so identical records always produce identical
// bytes.
package codec
