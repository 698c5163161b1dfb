// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditlog

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	writer, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	records := []Record{
		{Time: 1700000000, ClientKey: "UCLIENT1", Tag: "host-42", Account: "WORKLOAD", Role: "workload", Allowed: true, TokenID: "tok1"},
		{Time: 1700000001, ClientKey: "UCLIENT2", Tag: "host-99", Allowed: false, Reason: "no matching role"},
	}
	for _, record := range records {
		if err := writer.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	readBack, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(readBack) != len(records) {
		t.Fatalf("read %d records, want %d", len(readBack), len(records))
	}
	for i := range records {
		if readBack[i] != records[i] {
			t.Errorf("record %d = %+v, want %+v", i, readBack[i], records[i])
		}
	}
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	writer, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	const writers = 8
	const perWriter = 25
	var group sync.WaitGroup
	for w := 0; w < writers; w++ {
		group.Add(1)
		go func(w int) {
			defer group.Done()
			for i := 0; i < perWriter; i++ {
				record := Record{
					Time:      int64(w*perWriter + i),
					ClientKey: "UCONCURRENT",
					Allowed:   i%2 == 0,
				}
				if err := writer.Append(record); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}(w)
	}
	group.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != writers*perWriter {
		t.Errorf("read %d records, want %d", len(records), writers*perWriter)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent.log")); err == nil {
		t.Error("ReadFile on missing file should error")
	}
}
