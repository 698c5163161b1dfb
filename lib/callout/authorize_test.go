// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callout

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"

	"github.com/bureau-foundation/warrant/lib/auditlog"
	"github.com/bureau-foundation/warrant/lib/chain"
	"github.com/bureau-foundation/warrant/lib/clock"
	"github.com/bureau-foundation/warrant/lib/keystore"
	"github.com/bureau-foundation/warrant/lib/subject"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// fixture provisions a full chain and assembles an Authorizer over it.
type fixture struct {
	store      *keystore.Store
	authorizer *Authorizer
	result     *chain.Result
	requestKP  nkeys.KeyPair
	requestPub string
	clk        *clock.Fake
	auditPath  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := keystore.New(filepath.Join(root, "shared"), filepath.Join(root, "local"))
	if err != nil {
		t.Fatalf("keystore.New: %v", err)
	}

	spec := &chain.Spec{
		Operator:      "bureau",
		SystemAccount: "SYS",
		AuthAccount:   "AUTH",
		AdminAccount:  "ADMIN",
		Accounts: []chain.AccountSpec{
			{Name: "SYS"},
			{
				Name:  "AUTH",
				Roles: []chain.RoleSpec{{Name: "callout", Publish: []string{"AUTH.internal.>"}, Subscribe: []string{"AUTH.internal.>"}}},
			},
			{
				Name:  "ADMIN",
				Roles: []chain.RoleSpec{{Name: "admin", Publish: []string{"ADMIN.>"}, Subscribe: []string{"ADMIN.>", "_INBOX.>"}}},
			},
			{
				Name:  "WORKLOAD",
				Roles: []chain.RoleSpec{{Name: "workload", Publish: []string{"WORKLOAD.{tag}.>"}, Subscribe: []string{"WORKLOAD.{tag}.>"}}},
			},
		},
	}

	log := slog.New(slog.DiscardHandler)
	result, err := chain.NewBuilder(store, log).Provision(context.Background(), spec)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	seedBuffer, err := store.GetLocal(chain.RelayRequestSeedName("bureau", "AUTH"))
	if err != nil {
		t.Fatalf("request seed: %v", err)
	}
	defer seedBuffer.Close()
	requestKP, err := nkeys.FromSeed(seedBuffer.Bytes())
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	requestPub, err := requestKP.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	auditPath := filepath.Join(root, "decisions.log")
	audit, err := auditlog.OpenWriter(auditPath)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	t.Cleanup(func() { audit.Close() })

	clk := clock.NewFake(time.Unix(1700000000, 0))
	authorizer, err := New(Config{
		Store:           store,
		Operator:        "bureau",
		AuthAccount:     "AUTH",
		TokenTTL:        90 * time.Second,
		DecisionTimeout: 2 * time.Second,
		Clock:           clk,
		Log:             log,
		Audit:           audit,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{
		store:      store,
		authorizer: authorizer,
		result:     result,
		requestKP:  requestKP,
		requestPub: requestPub,
		clk:        clk,
		auditPath:  auditPath,
	}
}

// request signs a callout request for a fresh client user key.
func (f *fixture) request(t *testing.T, signer nkeys.KeyPair, username, tag string) (string, string) {
	t.Helper()
	clientKP, err := nkeys.CreatePair(nkeys.PrefixByteUser)
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	clientPub, err := clientKP.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	claims := jwt.NewAuthorizationRequestClaims(clientPub)
	claims.UserNkey = clientPub
	claims.Server = jwt.ServerID{Name: "relay", ID: f.requestPub}
	claims.ConnectOptions.Username = username
	claims.ConnectOptions.Name = tag

	token, err := claims.Encode(signer)
	if err != nil {
		t.Fatalf("Encode request: %v", err)
	}
	return token, clientPub
}

func TestGrantIsScopedToTag(t *testing.T) {
	f := newFixture(t)
	token, clientPub := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")

	decision := f.authorizer.Decide(context.Background(), token)
	if !decision.Allowed {
		t.Fatalf("rejected: %s (%s)", decision.Reason, decision.Detail)
	}

	grant, err := jwt.DecodeUserClaims(decision.UserJWT)
	if err != nil {
		t.Fatalf("DecodeUserClaims: %v", err)
	}
	if grant.Subject != clientPub {
		t.Errorf("grant subject = %s, want %s", grant.Subject, clientPub)
	}

	workload := findAccount(t, f.result, "WORKLOAD")
	if grant.IssuerAccount != workload.PublicKey {
		t.Errorf("grant issuer account = %s, want %s", grant.IssuerAccount, workload.PublicKey)
	}
	if len(workload.SigningKeys) != 1 || grant.Issuer != workload.SigningKeys[0].PublicKey {
		t.Errorf("grant issued by %s, want the workload signing key", grant.Issuer)
	}

	wantPattern := "WORKLOAD.host-42.>"
	if len(grant.Permissions.Pub.Allow) != 1 || grant.Permissions.Pub.Allow[0] != wantPattern {
		t.Errorf("publish allow = %v, want [%s]", grant.Permissions.Pub.Allow, wantPattern)
	}
	if len(grant.Permissions.Sub.Allow) != 1 || grant.Permissions.Sub.Allow[0] != wantPattern {
		t.Errorf("subscribe allow = %v, want [%s]", grant.Permissions.Sub.Allow, wantPattern)
	}

	// The grant covers exactly this host's subtree and nothing else.
	if !subject.Match(wantPattern, "WORKLOAD.host-42.status") {
		t.Error("grant does not cover the host's own subjects")
	}
	if subject.Match(wantPattern, "WORKLOAD.host-43.status") {
		t.Error("grant covers another host's subjects")
	}

	wantExpiry := f.clk.Now().Add(90 * time.Second).Unix()
	if grant.Expires != wantExpiry {
		t.Errorf("expiry = %d, want %d", grant.Expires, wantExpiry)
	}
	if decision.TokenID == "" {
		t.Error("decision has no token ID")
	}
}

func TestTagsNeverCross(t *testing.T) {
	f := newFixture(t)

	tokenA, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")
	tokenB, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-43")

	decisionA := f.authorizer.Decide(context.Background(), tokenA)
	decisionB := f.authorizer.Decide(context.Background(), tokenB)
	if !decisionA.Allowed || !decisionB.Allowed {
		t.Fatal("both grants should be issued")
	}

	grantA, err := jwt.DecodeUserClaims(decisionA.UserJWT)
	if err != nil {
		t.Fatalf("DecodeUserClaims: %v", err)
	}
	grantB, err := jwt.DecodeUserClaims(decisionB.UserJWT)
	if err != nil {
		t.Fatalf("DecodeUserClaims: %v", err)
	}
	for _, patternA := range append(grantA.Permissions.Pub.Allow, grantA.Permissions.Sub.Allow...) {
		for _, patternB := range append(grantB.Permissions.Pub.Allow, grantB.Permissions.Sub.Allow...) {
			if subject.Overlaps(patternA, patternB) {
				t.Errorf("grants overlap: %q and %q", patternA, patternB)
			}
		}
	}
}

func TestUntrustedCallerIsRejected(t *testing.T) {
	f := newFixture(t)

	imposter, err := nkeys.CreatePair(nkeys.PrefixByteServer)
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	token, _ := f.request(t, imposter, "WORKLOAD/workload", "host-42")

	before, err := f.store.ListShared()
	if err != nil {
		t.Fatalf("ListShared: %v", err)
	}

	decision := f.authorizer.Decide(context.Background(), token)
	if decision.Allowed {
		t.Fatal("imposter request was granted")
	}
	if decision.Reason != ReasonUntrustedCaller {
		t.Errorf("reason = %s, want %s", decision.Reason, ReasonUntrustedCaller)
	}

	// The rejected party sees only the generic message.
	response, err := f.authorizer.EncodeResponse(decision)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	responseClaims, err := jwt.DecodeAuthorizationResponseClaims(response)
	if err != nil {
		t.Fatalf("DecodeAuthorizationResponseClaims: %v", err)
	}
	if responseClaims.Error != "authorization violation" {
		t.Errorf("response error = %q, want generic message", responseClaims.Error)
	}
	if responseClaims.Jwt != "" {
		t.Error("rejection response carries a grant")
	}

	// An untrusted request leaves the store untouched.
	after, err := f.store.ListShared()
	if err != nil {
		t.Fatalf("ListShared: %v", err)
	}
	if len(before) != len(after) {
		t.Errorf("shared area changed: %d -> %d artifacts", len(before), len(after))
	}
}

func TestNoMatchingRole(t *testing.T) {
	f := newFixture(t)

	for _, username := range []string{"WORKLOAD/ghost", "GHOST/workload", "AUTH/workload"} {
		token, _ := f.request(t, f.requestKP, username, "host-42")
		decision := f.authorizer.Decide(context.Background(), token)
		if decision.Allowed {
			t.Errorf("%s: request was granted", username)
			continue
		}
		if decision.Reason != ReasonNoMatchingRole {
			t.Errorf("%s: reason = %s, want %s", username, decision.Reason, ReasonNoMatchingRole)
		}
	}
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t)

	decision := f.authorizer.Decide(context.Background(), "not a token")
	if decision.Reason != ReasonMalformedRequest {
		t.Errorf("garbage: reason = %s, want %s", decision.Reason, ReasonMalformedRequest)
	}
	if decision.ClientKey != "" {
		t.Error("garbage request resolved a client key")
	}

	// A tag with a separator could widen the resolved pattern; it must
	// never reach signing.
	token, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host.42")
	decision = f.authorizer.Decide(context.Background(), token)
	if decision.Allowed {
		t.Fatal("separator tag was granted")
	}
	if decision.Reason != ReasonMalformedRequest {
		t.Errorf("separator tag: reason = %s, want %s", decision.Reason, ReasonMalformedRequest)
	}

	token, _ = f.request(t, f.requestKP, "no-slash", "host-42")
	decision = f.authorizer.Decide(context.Background(), token)
	if decision.Reason != ReasonMalformedRequest {
		t.Errorf("bad username: reason = %s, want %s", decision.Reason, ReasonMalformedRequest)
	}
}

func TestRevokedKeyFailsClosed(t *testing.T) {
	f := newFixture(t)

	workload := findAccount(t, f.result, "WORKLOAD")
	if err := f.store.RemoveSigningKey("bureau", "WORKLOAD", "workload", workload.SigningKeys[0].PublicKey); err != nil {
		t.Fatalf("RemoveSigningKey: %v", err)
	}

	token, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")
	decision := f.authorizer.Decide(context.Background(), token)
	if decision.Allowed {
		t.Fatal("revoked key still granted")
	}
	if decision.Reason != ReasonKeyRevoked {
		t.Errorf("reason = %s, want %s", decision.Reason, ReasonKeyRevoked)
	}
}

func TestCanceledContextIsTimeout(t *testing.T) {
	f := newFixture(t)
	token, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decision := f.authorizer.Decide(ctx, token)
	if decision.Allowed {
		t.Fatal("canceled decision was granted")
	}
	if decision.Reason != ReasonTimeout {
		t.Errorf("reason = %s, want %s", decision.Reason, ReasonTimeout)
	}
}

func TestDecisionDeadlineFailsClosed(t *testing.T) {
	f := newFixture(t)

	workload := findAccount(t, f.result, "WORKLOAD")
	unblock := blockSigningKey(t, f.store, workload.SigningKeys[0].PublicKey)
	defer unblock()

	token, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")
	done := make(chan Decision, 1)
	go func() { done <- f.authorizer.Decide(context.Background(), token) }()

	// Wait for the decision's deadline timer to arm, then push the fake
	// clock past it while the signing phase is still stuck.
	waitFor(t, "deadline timer", func() bool { return f.clk.Waiters() > 0 })
	f.clk.Advance(3 * time.Second)

	decision := <-done
	if decision.Allowed {
		t.Fatal("expired decision was granted")
	}
	if decision.Reason != ReasonTimeout {
		t.Errorf("reason = %s, want %s", decision.Reason, ReasonTimeout)
	}
}

func TestDecisionsAreAudited(t *testing.T) {
	f := newFixture(t)

	granted, _ := f.request(t, f.requestKP, "WORKLOAD/workload", "host-42")
	f.authorizer.Decide(context.Background(), granted)
	rejectedToken, _ := f.request(t, f.requestKP, "WORKLOAD/ghost", "host-42")
	f.authorizer.Decide(context.Background(), rejectedToken)

	records, err := auditlog.ReadFile(f.auditPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("audit records = %d, want 2", len(records))
	}
	if !records[0].Allowed || records[0].TokenID == "" {
		t.Errorf("first record = %+v, want allowed with token ID", records[0])
	}
	if records[1].Allowed || records[1].Reason == "" {
		t.Errorf("second record = %+v, want rejection with reason", records[1])
	}
}

func TestReloadPicksUpNewRoles(t *testing.T) {
	f := newFixture(t)

	token, _ := f.request(t, f.requestKP, "WORKLOAD/telemetry", "host-42")
	decision := f.authorizer.Decide(context.Background(), token)
	if decision.Reason != ReasonNoMatchingRole {
		t.Fatalf("reason = %s, want %s", decision.Reason, ReasonNoMatchingRole)
	}

	// Re-provision with an added role, then reload the view.
	spec := &chain.Spec{
		Operator:      "bureau",
		SystemAccount: "SYS",
		AuthAccount:   "AUTH",
		AdminAccount:  "ADMIN",
		Accounts: []chain.AccountSpec{
			{Name: "SYS"},
			{
				Name:  "AUTH",
				Roles: []chain.RoleSpec{{Name: "callout", Publish: []string{"AUTH.internal.>"}, Subscribe: []string{"AUTH.internal.>"}}},
			},
			{
				Name:  "ADMIN",
				Roles: []chain.RoleSpec{{Name: "admin", Publish: []string{"ADMIN.>"}, Subscribe: []string{"ADMIN.>", "_INBOX.>"}}},
			},
			{
				Name: "WORKLOAD",
				Roles: []chain.RoleSpec{
					{Name: "workload", Publish: []string{"WORKLOAD.{tag}.>"}, Subscribe: []string{"WORKLOAD.{tag}.>"}},
					{Name: "telemetry", Publish: []string{"metrics.{tag}.>"}, Subscribe: []string{"metrics.{tag}.control"}},
				},
			},
		},
	}
	if _, err := chain.NewBuilder(f.store, slog.New(slog.DiscardHandler)).Provision(context.Background(), spec); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := f.authorizer.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	token, _ = f.request(t, f.requestKP, "WORKLOAD/telemetry", "host-42")
	decision = f.authorizer.Decide(context.Background(), token)
	if !decision.Allowed {
		t.Fatalf("telemetry rejected after reload: %s (%s)", decision.Reason, decision.Detail)
	}
}

func findAccount(t *testing.T, result *chain.Result, name string) *trust.Account {
	t.Helper()
	for i := range result.Accounts {
		if result.Accounts[i].Name == name {
			return &result.Accounts[i]
		}
	}
	t.Fatalf("account %s not in result", name)
	return nil
}
