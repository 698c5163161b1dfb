// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_ValidSize(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64) failed: %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("expected length 64, got %d", buffer.Len())
	}

	// Memory should be zero-initialized by mmap.
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("expected zero at index %d, got %d", index, value)
		}
	}
}

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) succeeded, expected error", size)
		}
	}
}

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("SAAHXYZSEEDMATERIALFORTESTING")
	original := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != original {
		t.Errorf("expected %q, got %q", original, got)
	}

	// The caller's slice must not retain the seed.
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source not zeroed at index %d: %d", index, value)
		}
	}
}

func TestNewFromBytesEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	buffer, err := NewFromBytes([]byte("seed"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestAccessAfterClosePanics(t *testing.T) {
	buffer, err := NewFromBytes([]byte("seed"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic reading a closed buffer")
		}
	}()
	buffer.Bytes()
}

func TestReadFileTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.nk")
	if err := os.WriteFile(path, []byte("  SOSEEDVALUE\n\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	buffer, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "SOSEEDVALUE" {
		t.Errorf("ReadFile = %q, want %q", got, "SOSEEDVALUE")
	}
}

func TestReadFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.nk")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for whitespace-only file")
	}
}
