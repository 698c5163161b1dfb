// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"strings"
	"testing"
)

func TestParseSpecJSONC(t *testing.T) {
	data := []byte(`{
		// The deployment's trust root.
		"operator": "bureau",
		"system_account": "SYS",
		"auth_account": "AUTH",
		"admin_account": "ADMIN",
		"accounts": [
			{"name": "SYS"},
			{"name": "AUTH"},
			{
				"name": "ADMIN",
				"roles": [
					{"name": "admin", "publish": ["ADMIN.>"], "subscribe": ["ADMIN.>", "_INBOX.>"]},
				],
			},
			{
				"name": "WORKLOAD",
				"limits": {"MemoryStorage": -1, "DiskStorage": 1073741824, "Streams": 10, "Consumers": 100},
				"roles": [
					{"name": "workload", "publish": ["WORKLOAD.{tag}.>"], "subscribe": ["WORKLOAD.{tag}.>"]},
				],
			},
		],
	}`)

	spec, err := ParseSpec(data)
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.Operator != "bureau" {
		t.Errorf("Operator = %q, want bureau", spec.Operator)
	}
	if len(spec.Accounts) != 4 {
		t.Fatalf("len(Accounts) = %d, want 4", len(spec.Accounts))
	}
	workload := spec.Account("WORKLOAD")
	if workload == nil {
		t.Fatal("Account(WORKLOAD) = nil")
	}
	if workload.Limits.DiskStorage != 1073741824 {
		t.Errorf("DiskStorage = %d", workload.Limits.DiskStorage)
	}
}

func TestSpecValidateRejects(t *testing.T) {
	base := func() *Spec {
		return &Spec{
			Operator:      "bureau",
			SystemAccount: "SYS",
			AuthAccount:   "AUTH",
			AdminAccount:  "ADMIN",
			Accounts: []AccountSpec{
				{Name: "SYS"}, {Name: "AUTH"}, {Name: "ADMIN"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{
			name:    "missing operator",
			mutate:  func(s *Spec) { s.Operator = "" },
			wantErr: "operator name is required",
		},
		{
			name:    "duplicate account",
			mutate:  func(s *Spec) { s.Accounts = append(s.Accounts, AccountSpec{Name: "SYS"}) },
			wantErr: "duplicate account",
		},
		{
			name:    "undeclared system account",
			mutate:  func(s *Spec) { s.SystemAccount = "NOPE" },
			wantErr: "not a declared account",
		},
		{
			name:    "missing auth account",
			mutate:  func(s *Spec) { s.AuthAccount = "" },
			wantErr: "auth_account is required",
		},
		{
			name: "mixed tagged and static role",
			mutate: func(s *Spec) {
				s.Accounts[2].Roles = []RoleSpec{{
					Name:      "mixed",
					Publish:   []string{"ADMIN.{tag}.>"},
					Subscribe: []string{"ADMIN.broadcast"},
				}}
			},
			wantErr: "mixes tagged and static",
		},
		{
			name: "bad template placeholder",
			mutate: func(s *Spec) {
				s.Accounts[2].Roles = []RoleSpec{{Name: "bad", Publish: []string{"ADMIN.{host}.>"}}}
			},
			wantErr: "unknown placeholder",
		},
		{
			name: "duplicate role",
			mutate: func(s *Spec) {
				s.Accounts[2].Roles = []RoleSpec{
					{Name: "admin", Publish: []string{"ADMIN.>"}},
					{Name: "admin", Publish: []string{"ADMIN.other.>"}},
				}
			},
			wantErr: "duplicate role",
		},
		{
			name: "import from undeclared account",
			mutate: func(s *Spec) {
				s.Accounts[2].Imports = []ShareSpec{{Name: "x", Subject: "metrics.>", Account: "GHOST"}}
			},
			wantErr: "undeclared account",
		},
		{
			name: "import without source account",
			mutate: func(s *Spec) {
				s.Accounts[2].Imports = []ShareSpec{{Name: "x", Subject: "metrics.>"}}
			},
			wantErr: "no source account",
		},
		{
			name: "bad share subject",
			mutate: func(s *Spec) {
				s.Accounts[2].Exports = []ShareSpec{{Name: "x", Subject: "metrics.>.trailing"}}
			},
			wantErr: "share",
		},
		{
			name:    "bad escrow recipient",
			mutate:  func(s *Spec) { s.EscrowRecipient = "not-an-age-key" },
			wantErr: "escrow_recipient",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec := base()
			test.mutate(spec)
			err := spec.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestSpecValidateAccepts(t *testing.T) {
	spec := &Spec{
		Operator:      "bureau",
		SystemAccount: "SYS",
		AuthAccount:   "AUTH",
		AdminAccount:  "ADMIN",
		Accounts: []AccountSpec{
			{Name: "SYS"},
			{Name: "AUTH"},
			{
				Name:    "ADMIN",
				Roles:   []RoleSpec{{Name: "admin", Publish: []string{"ADMIN.>"}, Subscribe: []string{"ADMIN.>", "_INBOX.>"}}},
				Imports: []ShareSpec{{Name: "metrics", Subject: "metrics.>", Account: "WORKLOAD"}},
			},
			{
				Name:    "WORKLOAD",
				Roles:   []RoleSpec{{Name: "workload", Publish: []string{"WORKLOAD.{tag}.>"}, Subscribe: []string{"WORKLOAD.{tag}.>"}}},
				Exports: []ShareSpec{{Name: "metrics", Subject: "metrics.>"}},
			},
		},
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
