// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditlog records every authorization decision to an
// append-only file of deterministic CBOR records. The log is the
// operator's forensic trail: which host key asked for which role,
// when, and what happened — including the rejection detail that is
// deliberately withheld from the rejected party.
package auditlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bureau-foundation/warrant/lib/codec"
)

// Record is one authorization decision. Fields use integer CBOR keys
// for compact framing; the stream is a plain concatenation of records,
// appended under a lock and readable with a stock CBOR decoder.
type Record struct {
	// Time is a Unix timestamp (seconds) of the decision.
	Time int64 `cbor:"1,keyasint"`

	// ClientKey is the connecting identity's declared public key.
	ClientKey string `cbor:"2,keyasint"`

	// Tag is the client-declared host tag, if any.
	Tag string `cbor:"3,keyasint,omitempty"`

	// Account is the account class the decision resolved against.
	Account string `cbor:"4,keyasint,omitempty"`

	// Role is the role template used (or requested, on rejection).
	Role string `cbor:"5,keyasint,omitempty"`

	// Allowed is true when a grant was signed.
	Allowed bool `cbor:"6,keyasint"`

	// Reason is the rejection reason string. Empty when Allowed.
	Reason string `cbor:"7,keyasint,omitempty"`

	// TokenID is the signed token's ID (jti). Empty on rejection.
	TokenID string `cbor:"8,keyasint,omitempty"`
}

// Writer appends records to an audit log file. Safe for concurrent
// use; each Append is a single atomic write of one encoded record.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWriter opens (creating if necessary) the audit log for
// appending. The file is owner-only: audit records contain rejection
// reasons and key identifiers that must not leak to hosts.
func OpenWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening %s: %w", path, err)
	}
	return &Writer{file: file}, nil
}

// Append encodes and writes one record.
func (w *Writer) Append(record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("auditlog: encoding record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("auditlog: appending record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadFile decodes every record in an audit log file.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening %s: %w", path, err)
	}
	defer file.Close()

	decoder := codec.NewDecoder(file)
	var records []Record
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("auditlog: decoding record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
}
