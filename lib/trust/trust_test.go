// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"testing"

	"github.com/nats-io/nkeys"
)

func TestAccountSigningKeyLookup(t *testing.T) {
	account := Account{
		Name:      "WORKLOAD",
		PublicKey: "A_WORKLOAD",
		SigningKeys: []SigningKey{
			{PublicKey: "A_SK_WORK", Account: "WORKLOAD", Role: "workload"},
			{PublicKey: "A_SK_METRICS", Account: "WORKLOAD", Role: "metrics"},
		},
	}

	key, ok := account.SigningKeyForRole("workload")
	if !ok || key.PublicKey != "A_SK_WORK" {
		t.Errorf("SigningKeyForRole(workload) = %v, %v", key, ok)
	}
	if _, ok := account.SigningKeyForRole("admin"); ok {
		t.Error("unknown role should not resolve")
	}

	if !account.HasSigningKey("A_SK_METRICS") {
		t.Error("HasSigningKey should find listed key")
	}
	if account.HasSigningKey("A_SK_REVOKED") {
		t.Error("HasSigningKey must not find unlisted key")
	}
}

func TestKeyClassValidation(t *testing.T) {
	operator, err := nkeys.CreateOperator()
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	operatorPub, _ := operator.PublicKey()

	account, err := nkeys.CreateAccount()
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	accountPub, _ := account.PublicKey()

	user, err := nkeys.CreateUser()
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	userPub, _ := user.PublicKey()

	if err := ValidateOperatorKey(operatorPub); err != nil {
		t.Errorf("ValidateOperatorKey: %v", err)
	}
	if err := ValidateAccountKey(accountPub); err != nil {
		t.Errorf("ValidateAccountKey: %v", err)
	}
	if err := ValidateUserKey(userPub); err != nil {
		t.Errorf("ValidateUserKey: %v", err)
	}

	// Cross-class keys are rejected.
	if err := ValidateOperatorKey(accountPub); err == nil {
		t.Error("account key accepted as operator key")
	}
	if err := ValidateAccountKey(userPub); err == nil {
		t.Error("user key accepted as account key")
	}
	if err := ValidateUserKey(operatorPub); err == nil {
		t.Error("operator key accepted as user key")
	}
}
