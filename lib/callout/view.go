// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"

	"github.com/bureau-foundation/warrant/lib/chain"
	"github.com/bureau-foundation/warrant/lib/keystore"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// View is a verified snapshot of the shared trust anchors: the operator
// token, every account token chained to it, and the trusted-requester
// set. The decision service resolves roles against a View and reloads
// it when the anchors change.
type View struct {
	// Operator is the decoded operator trust anchor.
	Operator *jwt.OperatorClaims

	// Accounts maps account name to its decoded token. Every entry
	// verified against the operator's key set at load time.
	Accounts map[string]*jwt.AccountClaims

	// Requesters are the public keys allowed to sign callout requests.
	Requesters []string
}

// LoadView reads and verifies the shared anchors. Account tokens whose
// issuer is outside the operator's key set fail the load: a forged
// anchor in the shared area is worth halting on.
func LoadView(store *keystore.Store) (*View, error) {
	operatorData, err := store.GetShared(chain.OperatorJWTName())
	if err != nil {
		return nil, err
	}
	operator, err := jwt.DecodeOperatorClaims(string(operatorData))
	if err != nil {
		return nil, fmt.Errorf("callout: decoding operator anchor: %w", err)
	}

	view := &View{Operator: operator, Accounts: make(map[string]*jwt.AccountClaims)}

	names, err := store.ListShared()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		base, ok := strings.CutPrefix(name, "accounts/")
		if !ok || !strings.HasSuffix(base, ".jwt") {
			continue
		}
		data, err := store.GetShared(name)
		if err != nil {
			return nil, err
		}
		account, err := jwt.DecodeAccountClaims(string(data))
		if err != nil {
			return nil, fmt.Errorf("callout: decoding account anchor %s: %w", name, err)
		}
		if !operator.DidSign(account) {
			return nil, fmt.Errorf("callout: account anchor %s issued by %s, outside the operator key set", name, account.Issuer)
		}
		view.Accounts[account.Name] = account
	}

	requestersData, err := store.GetShared(chain.RequestersName())
	switch {
	case err == nil:
		for _, line := range strings.Split(string(requestersData), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !nkeys.IsValidPublicServerKey(line) {
				return nil, fmt.Errorf("callout: requester anchor lists non-server key %q", line)
			}
			view.Requesters = append(view.Requesters, line)
		}
	case errors.Is(err, keystore.ErrNotFound):
		// No requester anchor means no caller can be trusted; every
		// request is rejected until one is provisioned.
	default:
		return nil, err
	}

	return view, nil
}

// Account returns the named account's token, or nil.
func (v *View) Account(name string) *jwt.AccountClaims {
	return v.Accounts[name]
}

// IsTrustedRequester reports whether the public key may sign callout
// requests.
func (v *View) IsTrustedRequester(publicKey string) bool {
	for _, requester := range v.Requesters {
		if requester == publicKey {
			return true
		}
	}
	return false
}

// RoleFor resolves the account's role to its signing key and permission
// templates, read from the scoped signing key entry in the account
// token. Returns false when the account does not exist, the role is not
// declared, or its signing key has been delisted.
func (v *View) RoleFor(account, roleName string) (string, trust.Role, bool) {
	claims := v.Account(account)
	if claims == nil {
		return "", trust.Role{}, false
	}
	for _, key := range claims.SigningKeys.Keys() {
		scope, ok := claims.SigningKeys.GetScope(key)
		if !ok || scope == nil {
			continue
		}
		userScope, ok := scope.(*jwt.UserScope)
		if !ok || userScope.Role != roleName {
			continue
		}
		role, err := scopeRole(userScope)
		if err != nil {
			// An unparseable template in a verified anchor cannot
			// yield a grant.
			return "", trust.Role{}, false
		}
		return key, role, true
	}
	return "", trust.Role{}, false
}

func scopeRole(scope *jwt.UserScope) (trust.Role, error) {
	role := trust.Role{Name: scope.Role}
	for _, pattern := range scope.Template.Pub.Allow {
		template, err := trust.ParseTemplate(pattern)
		if err != nil {
			return trust.Role{}, err
		}
		role.Publish = append(role.Publish, template)
	}
	for _, pattern := range scope.Template.Sub.Allow {
		template, err := trust.ParseTemplate(pattern)
		if err != nil {
			return trust.Role{}, err
		}
		role.Subscribe = append(role.Subscribe, template)
	}
	return role, nil
}
