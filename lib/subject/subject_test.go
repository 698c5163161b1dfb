// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subject

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"WORKLOAD.host-42.result",
		"ADMIN.command",
		"a",
		"a.b.c.d.e",
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", s, err)
		}
	}

	invalid := []struct {
		subject string
		wantErr error
	}{
		{"", ErrEmpty},
		{"a..b", ErrEmptyToken},
		{".a", ErrEmptyToken},
		{"a.", ErrEmptyToken},
		{"a.*.b", ErrInvalidToken},
		{"a.>", ErrInvalidToken},
		{"a b.c", ErrInvalidToken},
		{"a.b*c", ErrInvalidToken},
	}
	for _, tt := range invalid {
		err := Validate(tt.subject)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Validate(%q) = %v, want %v", tt.subject, err, tt.wantErr)
		}
	}
}

func TestValidatePattern(t *testing.T) {
	valid := []string{
		"WORKLOAD.*.result",
		"WORKLOAD.host-42.>",
		">",
		"*",
		"*.*.>",
	}
	for _, s := range valid {
		if err := ValidatePattern(s); err != nil {
			t.Errorf("ValidatePattern(%q) = %v, want nil", s, err)
		}
	}

	invalid := []struct {
		pattern string
		wantErr error
	}{
		{"", ErrEmpty},
		{"a.>.b", ErrWildcardInMid},
		{">.a", ErrWildcardInMid},
		{"a..>", ErrEmptyToken},
		{"a.b>", ErrInvalidToken},
	}
	for _, tt := range invalid {
		err := ValidatePattern(tt.pattern)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidatePattern(%q) = %v, want %v", tt.pattern, err, tt.wantErr)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"WORKLOAD.host-42.result", "WORKLOAD.host-42.result", true},
		{"WORKLOAD.host-42.result", "WORKLOAD.host-43.result", false},
		{"WORKLOAD.*.result", "WORKLOAD.host-42.result", true},
		{"WORKLOAD.*.result", "WORKLOAD.host-42.extra.result", false},
		{"WORKLOAD.host-42.>", "WORKLOAD.host-42.work.item", true},
		{"WORKLOAD.host-42.>", "WORKLOAD.host-42", false}, // '>' needs >= 1 token
		{"WORKLOAD.host-42.>", "WORKLOAD.host-43.work", false},
		{">", "anything.at.all", true},
		{"*", "one", true},
		{"*", "one.two", false},
		{"a.b", "a.b.c", false},
		{"a.b.c", "a.b", false},
		// Malformed inputs never match.
		{"a.>.b", "a.x.b", false},
		{"a.b", "a..b", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"ADMIN.>", "WORKLOAD.host-42.>"}
	if !MatchAny(patterns, "ADMIN.command.restart") {
		t.Error("expected ADMIN.command.restart to match")
	}
	if MatchAny(patterns, "WORKLOAD.host-43.work") {
		t.Error("host-43 must not match host-42 patterns")
	}
	if MatchAny(nil, "anything") {
		t.Error("empty pattern list must deny")
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"WORKLOAD.host-42.>", "WORKLOAD.host-42.>", true},
		{"WORKLOAD.host-42.>", "WORKLOAD.host-43.>", false},
		{"WORKLOAD.*.result", "WORKLOAD.host-42.result", true},
		{"WORKLOAD.>", "WORKLOAD.host-42.result", true},
		{"ADMIN.>", "WORKLOAD.>", false},
		{"a.b", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"*.b", "a.*", true},
		{">", "anything", true},
	}
	for _, tt := range tests {
		if got := Overlaps(tt.a, tt.b); got != tt.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		// Overlap is symmetric.
		if got := Overlaps(tt.b, tt.a); got != tt.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}
