// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"

	"github.com/bureau-foundation/warrant/lib/auditlog"
	"github.com/bureau-foundation/warrant/lib/clock"
	"github.com/bureau-foundation/warrant/lib/keystore"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// Reason classifies a rejection. The reason is recorded in the audit
// log; the rejected party only ever sees the generic message.
type Reason string

const (
	ReasonUntrustedCaller  Reason = "untrusted caller"
	ReasonNoMatchingRole   Reason = "no matching role"
	ReasonKeyRevoked       Reason = "key revoked"
	ReasonTimeout          Reason = "timeout"
	ReasonMalformedRequest Reason = "malformed request"
)

// rejectionMessage is the only rejection detail a caller receives.
const rejectionMessage = "authorization violation"

// Defaults.
const (
	defaultTokenTTL        = 5 * time.Minute
	defaultDecisionTimeout = 2 * time.Second
	defaultResponseRole    = "callout"
)

// Decision is the outcome of one callout request.
type Decision struct {
	// Allowed is true when a grant was signed.
	Allowed bool

	// UserJWT is the signed grant. Empty on rejection.
	UserJWT string

	// Reason classifies the rejection. Empty when allowed.
	Reason Reason

	// Detail is the internal rejection detail. Audit-only: it is never
	// sent to the caller.
	Detail string

	// ClientKey is the connecting identity's public key, when the
	// request decoded far enough to learn it.
	ClientKey string

	// ServerID is the transport node the response is addressed to.
	ServerID string

	// Tag, Account, and Role are the request's claims as understood by
	// the service.
	Tag     string
	Account string
	Role    string

	// TokenID is the signed grant's token ID. Empty on rejection.
	TokenID string
}

// Config assembles an Authorizer.
type Config struct {
	// Store is the credential store holding the shared anchors and the
	// local signing key seeds.
	Store *keystore.Store

	// Operator is the operator name, used to locate the response
	// signing key in the local area.
	Operator string

	// AuthAccount is the name of the authorization account.
	AuthAccount string

	// ResponseRole is the auth-account role whose signing key signs
	// callout responses. Defaults to "callout".
	ResponseRole string

	// TokenTTL bounds the validity of issued grants. Defaults to five
	// minutes; a stolen grant expires before it is worth replaying.
	TokenTTL time.Duration

	// DecisionTimeout bounds one decision end to end. A decision that
	// cannot complete in time is rejected, never left pending.
	DecisionTimeout time.Duration

	// Clock provides time. Defaults to the real clock.
	Clock clock.Clock

	// Log must not be nil.
	Log *slog.Logger

	// Audit, when set, records every decision.
	Audit *auditlog.Writer
}

// Authorizer is the callout decision service: it validates a request
// against the trust view, resolves the requested role, substitutes the
// caller's tag into the role templates, and signs a short-lived grant
// with the role's signing key. Every failure rejects; there is no
// partially-authorized outcome.
type Authorizer struct {
	store          *keystore.Store
	authAccountKey string
	responseSigner nkeys.KeyPair
	tokenTTL       time.Duration
	timeout        time.Duration
	clk            clock.Clock
	log            *slog.Logger
	audit          *auditlog.Writer

	mu   sync.RWMutex
	view *View
}

// New loads the trust view and the response signing key and returns a
// ready Authorizer.
func New(config Config) (*Authorizer, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("callout: store is required")
	}
	if config.Operator == "" || config.AuthAccount == "" {
		return nil, fmt.Errorf("callout: operator and auth account are required")
	}
	if config.Log == nil {
		return nil, fmt.Errorf("callout: logger is required")
	}
	if config.ResponseRole == "" {
		config.ResponseRole = defaultResponseRole
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = defaultTokenTTL
	}
	if config.DecisionTimeout <= 0 {
		config.DecisionTimeout = defaultDecisionTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	view, err := LoadView(config.Store)
	if err != nil {
		return nil, err
	}
	authAccount := view.Account(config.AuthAccount)
	if authAccount == nil {
		return nil, fmt.Errorf("callout: auth account %q has no anchor", config.AuthAccount)
	}

	seed, err := config.Store.SigningKeySeed(config.Operator, config.AuthAccount, config.ResponseRole)
	if err != nil {
		return nil, fmt.Errorf("callout: loading response signing key: %w", err)
	}
	defer seed.Close()
	responseSigner, err := nkeys.FromSeed(seed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("callout: parsing response signing key: %w", err)
	}

	return &Authorizer{
		store:          config.Store,
		authAccountKey: authAccount.Subject,
		responseSigner: responseSigner,
		tokenTTL:       config.TokenTTL,
		timeout:        config.DecisionTimeout,
		clk:            config.Clock,
		log:            config.Log,
		audit:          config.Audit,
		view:           view,
	}, nil
}

// Reload re-reads the shared anchors. Call after provisioning changes
// so added roles resolve and delisted keys stop resolving.
func (a *Authorizer) Reload() error {
	view, err := LoadView(a.store)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.view = view
	a.mu.Unlock()
	return nil
}

func (a *Authorizer) currentView() *View {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view
}

// Decide evaluates one callout request token. The decision is bounded
// by the configured timeout and the context; a decision that cannot
// complete is a rejection. Every outcome is audited.
func (a *Authorizer) Decide(ctx context.Context, requestToken string) Decision {
	var decision Decision
	if err := ctx.Err(); err != nil {
		decision = Decision{Reason: ReasonTimeout, Detail: err.Error()}
	} else {
		done := make(chan Decision, 1)
		go func() { done <- a.decide(requestToken) }()
		select {
		case decision = <-done:
		case <-ctx.Done():
			decision = Decision{Reason: ReasonTimeout, Detail: ctx.Err().Error()}
		case <-a.clk.After(a.timeout):
			decision = Decision{Reason: ReasonTimeout, Detail: "decision deadline exceeded"}
		}
	}
	a.record(decision)
	return decision
}

// decide runs the state machine: decode, validate the caller, resolve
// the role, substitute the tag, sign.
func (a *Authorizer) decide(requestToken string) Decision {
	var decision Decision

	request, err := jwt.DecodeAuthorizationRequestClaims(requestToken)
	if err != nil {
		return rejected(decision, ReasonMalformedRequest, fmt.Sprintf("decoding request: %v", err))
	}
	decision.ClientKey = request.UserNkey
	decision.ServerID = request.Server.ID

	view := a.currentView()
	if !view.IsTrustedRequester(request.Issuer) {
		return rejected(decision, ReasonUntrustedCaller, fmt.Sprintf("request signed by %s", request.Issuer))
	}

	if err := trust.ValidateUserKey(request.UserNkey); err != nil {
		return rejected(decision, ReasonMalformedRequest, err.Error())
	}

	accountName, roleName, ok := strings.Cut(request.ConnectOptions.Username, "/")
	if !ok || accountName == "" || roleName == "" {
		return rejected(decision, ReasonMalformedRequest,
			fmt.Sprintf("username %q is not account/role", request.ConnectOptions.Username))
	}
	decision.Account = accountName
	decision.Role = roleName
	decision.Tag = request.ConnectOptions.Name

	signingKey, role, ok := view.RoleFor(accountName, roleName)
	if !ok {
		return rejected(decision, ReasonNoMatchingRole,
			fmt.Sprintf("account %q has no role %q", accountName, roleName))
	}

	permissions, err := role.Resolve(decision.Tag)
	if err != nil {
		return rejected(decision, ReasonMalformedRequest, err.Error())
	}

	// The signing phase fails closed: a seed that cannot be extracted
	// or used is treated as revoked, whatever the underlying cause.
	accountKey := view.Account(accountName).Subject
	seed, err := a.store.ExtractSigningKey(accountKey, signingKey)
	if err != nil {
		return rejected(decision, ReasonKeyRevoked, err.Error())
	}
	defer seed.Close()
	signer, err := nkeys.FromSeed(seed.Bytes())
	if err != nil {
		return rejected(decision, ReasonKeyRevoked, fmt.Sprintf("parsing seed for %s: %v", signingKey, err))
	}

	grant := jwt.NewUserClaims(request.UserNkey)
	grant.Name = decision.Tag
	if grant.Name == "" {
		grant.Name = roleName
	}
	grant.IssuerAccount = accountKey
	grant.Permissions.Pub.Allow.Add(permissions.Publish...)
	grant.Permissions.Sub.Allow.Add(permissions.Subscribe...)
	grant.Expires = a.clk.Now().Add(a.tokenTTL).Unix()

	token, err := grant.Encode(signer)
	if err != nil {
		return rejected(decision, ReasonKeyRevoked, fmt.Sprintf("signing grant: %v", err))
	}

	decision.Allowed = true
	decision.UserJWT = token
	decision.TokenID = grant.ID
	return decision
}

func rejected(decision Decision, reason Reason, detail string) Decision {
	decision.Allowed = false
	decision.Reason = reason
	decision.Detail = detail
	return decision
}

// EncodeResponse signs the transport response for a decision. Rejections
// carry only the generic message; the reason and detail stay in the
// audit log.
func (a *Authorizer) EncodeResponse(decision Decision) (string, error) {
	if decision.ClientKey == "" {
		return "", fmt.Errorf("callout: decision has no client key to respond to")
	}
	response := jwt.NewAuthorizationResponseClaims(decision.ClientKey)
	response.Audience = decision.ServerID
	response.IssuerAccount = a.authAccountKey
	if decision.Allowed {
		response.Jwt = decision.UserJWT
	} else {
		response.Error = rejectionMessage
	}
	token, err := response.Encode(a.responseSigner)
	if err != nil {
		return "", fmt.Errorf("callout: signing response: %w", err)
	}
	return token, nil
}

func (a *Authorizer) record(decision Decision) {
	if a.audit != nil {
		reason := ""
		if !decision.Allowed {
			reason = string(decision.Reason)
			if decision.Detail != "" {
				reason += ": " + decision.Detail
			}
		}
		err := a.audit.Append(auditlog.Record{
			Time:      a.clk.Now().Unix(),
			ClientKey: decision.ClientKey,
			Tag:       decision.Tag,
			Account:   decision.Account,
			Role:      decision.Role,
			Allowed:   decision.Allowed,
			Reason:    reason,
			TokenID:   decision.TokenID,
		})
		if err != nil {
			a.log.Error("audit append failed", "error", err)
		}
	}

	if decision.Allowed {
		a.log.Info("grant issued",
			"client", decision.ClientKey,
			"account", decision.Account,
			"role", decision.Role,
			"tag", decision.Tag,
			"token_id", decision.TokenID)
	} else {
		a.log.Warn("request rejected",
			"client", decision.ClientKey,
			"reason", string(decision.Reason),
			"detail", decision.Detail)
	}
}
