// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleDecision mirrors the shape of an audit log record: json tags,
// a mix of strings, bools, and integers.
type sampleDecision struct {
	Time      int64  `json:"time"`
	ClientKey string `json:"client_key"`
	Account   string `json:"account,omitempty"`
	Allowed   bool   `json:"allowed"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleDecision{
		Time:      1756500000,
		ClientKey: "UDXU4RCSJNZOIQHZNWXHXORDPRTGNJAHAHFRGZNEEJCPQTT2M7NLCNF4",
		Account:   "WORKLOAD",
		Allowed:   true,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleDecision
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	// Map iteration order varies between runs; deterministic encoding
	// must erase that variation. The audit log depends on identical
	// records producing identical bytes.
	record := map[string]any{
		"account": "WORKLOAD",
		"role":    "workload",
		"tag":     "host-42",
		"allowed": true,
	}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Marshal(record)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs between runs:\n%x\n%x", first, again)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A newer writer may add fields; older readers must not choke.
	extended := map[string]any{
		"time":       int64(1756500000),
		"client_key": "U...",
		"allowed":    false,
		"new_field":  "from the future",
	}
	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDecision
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Time != 1756500000 || decoded.Allowed {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	records := []sampleDecision{
		{Time: 1, ClientKey: "UAAA", Allowed: true},
		{Time: 2, ClientKey: "UBBB", Allowed: false},
		{Time: 3, ClientKey: "UCCC", Allowed: true},
	}
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range records {
		var got sampleDecision
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if got != want {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}
}
