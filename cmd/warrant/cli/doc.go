// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the warrant CLI: a small
// pflag-based command tree with structured help, typo suggestions, and
// exit-code plumbing.
package cli
