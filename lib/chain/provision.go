// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"

	"github.com/bureau-foundation/warrant/lib/escrow"
	"github.com/bureau-foundation/warrant/lib/keystore"
	"github.com/bureau-foundation/warrant/lib/secret"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// Builder errors.
var (
	// ErrMissingPrerequisite means a shared trust anchor exists but the
	// local seed needed to maintain it is gone. The chain cannot be
	// extended from this node; recover the seed from escrow or rebuild.
	ErrMissingPrerequisite = errors.New("chain: local seed missing for existing anchor")

	// ErrInconsistentState means the stored artifacts contradict each
	// other or the spec (e.g., the operator token's subject does not
	// match the local root seed). The builder never repairs this
	// silently.
	ErrInconsistentState = errors.New("chain: store state is inconsistent")

	// ErrSigningKeyExtraction means a role signing key seed that should
	// be usable could not be read or parsed.
	ErrSigningKeyExtraction = errors.New("chain: signing key extraction failed")
)

// CalloutSubject is the transport subject the authorization decision
// service answers on.
const CalloutSubject = "$SYS.REQ.USER.AUTH"

// Guard identity names.
const (
	sentinelName = "sentinel"
	relayName    = "auth-relay"
	adminName    = "admin"

	// adminRoleName is the ADMIN-account role whose permissions the
	// bootstrap administrator inherits when declared. Without it the
	// bootstrap identity gets a full allow.
	adminRoleName = "admin"
)

// Shared artifact names.
const operatorJWTName = "operator.jwt"

// OperatorJWTName is the shared-area name of the operator trust anchor.
func OperatorJWTName() string { return operatorJWTName }

// AccountJWTName is the shared-area name of an account's token.
func AccountJWTName(account string) string { return "accounts/" + account + ".jwt" }

// SentinelCredsName is the shared-area name of the deny-all sentinel
// credential bundle.
func SentinelCredsName() string { return sentinelName + ".creds" }

// RelayCredsName is the local-area name of the authorization relay's
// credential bundle.
func RelayCredsName(operator, authAccount string) string {
	return operator + "/" + authAccount + "/relay.creds"
}

// RelayRequestSeedName is the local-area name of the relay's
// request-signing seed. Callout request tokens must be signed by a
// server-class key; this is the only one the chain recognizes.
func RelayRequestSeedName(operator, authAccount string) string {
	return operator + "/" + authAccount + "/relay-request.nk"
}

// RequestersName is the shared-area name of the trusted-requester
// anchor: the public keys allowed to sign callout requests, one per
// line.
func RequestersName() string { return "relay-request.pub" }

// AdminCredsName is the local-area name of the bootstrap
// administrator's credential bundle.
func AdminCredsName(operator, adminAccount string) string {
	return operator + "/" + adminAccount + "/admin.creds"
}

func operatorSeedName(operator string) string        { return operator + "/operator.nk" }
func operatorSigningSeedName(operator string) string { return operator + "/operator-signing.nk" }
func accountSeedName(operator, account string) string {
	return operator + "/" + account + "/account.nk"
}
func sealedSeedName(operator, base string) string {
	return operator + "/escrow/" + base + ".nk.age"
}

// Status classifies one provisioning outcome.
type Status string

const (
	// StatusCreated means the artifact was built this run.
	StatusCreated Status = "created"

	// StatusExists means the artifact was found, verified, and left
	// untouched.
	StatusExists Status = "exists"

	// StatusUpdated means an existing artifact was re-signed because
	// the spec changed what it must contain (e.g., a new role's
	// signing key was added to an account token).
	StatusUpdated Status = "updated"
)

// Outcome records what happened to one artifact during a run. Reruns
// over a fully provisioned store report every outcome as StatusExists.
type Outcome struct {
	Artifact string
	Status   Status
}

// Result is the provisioned chain: the typed trust model plus the
// encoded anchors and the per-artifact outcomes.
type Result struct {
	Operator trust.Operator
	Accounts []trust.Account

	// OperatorJWT is the encoded operator trust anchor.
	OperatorJWT string

	// AccountJWTs maps account name to its encoded token.
	AccountJWTs map[string]string

	Outcomes []Outcome
}

// Builder provisions a chain of trust into a credential store from a
// declarative spec. Provision is idempotent: artifacts that already
// exist are verified and skipped, and a rerun over a complete store
// performs no writes.
type Builder struct {
	store *keystore.Store
	log   *slog.Logger
}

// NewBuilder returns a Builder over the store. The logger must not be
// nil.
func NewBuilder(store *keystore.Store, log *slog.Logger) *Builder {
	return &Builder{store: store, log: log}
}

// accountState is the builder's working state for one account.
type accountState struct {
	spec      *AccountSpec
	keyPair   nkeys.KeyPair
	publicKey string
	roles     []roleState
}

type roleState struct {
	role      trust.Role
	keyPair   nkeys.KeyPair
	publicKey string
}

// Provision builds (or verifies) every artifact the spec declares:
// operator root and signing keys, one account per AccountSpec with a
// scoped signing key per role, the guard identities, the shared trust
// anchors, and optional escrowed copies of the root seeds.
func (b *Builder) Provision(ctx context.Context, spec *Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	result := &Result{AccountJWTs: make(map[string]string, len(spec.Accounts))}

	operatorKP, operatorPub, err := b.ensureOperatorKeys(spec, result)
	if err != nil {
		return nil, err
	}
	signingKP, signingPub, err := b.ensureOperatorSigningKey(spec, result)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	states := make([]*accountState, 0, len(spec.Accounts))
	accountKeys := make(map[string]string, len(spec.Accounts))
	for i := range spec.Accounts {
		state, err := b.ensureAccountKeys(spec, &spec.Accounts[i], result)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
		accountKeys[state.spec.Name] = state.publicKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Guard keypairs exist before account tokens are encoded: the
	// authorization account's token must list the relay's public key
	// as an allowed callout requester.
	relayKP, relayCreated, err := b.ensureGuardKeyPair(false, RelayCredsName(spec.Operator, spec.AuthAccount))
	if err != nil {
		return nil, err
	}
	relayPub, err := relayKP.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("chain: relay public key: %w", err)
	}
	sentinelKP, sentinelCreated, err := b.ensureGuardKeyPair(true, SentinelCredsName())
	if err != nil {
		return nil, err
	}
	adminKP, adminCreated, err := b.ensureGuardKeyPair(false, AdminCredsName(spec.Operator, spec.AdminAccount))
	if err != nil {
		return nil, err
	}

	for _, state := range states {
		token, err := b.ensureAccountToken(spec, state, operatorPub, signingPub, signingKP, relayPub, accountKeys, result)
		if err != nil {
			return nil, err
		}
		result.AccountJWTs[state.spec.Name] = token
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	operatorToken, err := b.ensureOperatorToken(spec, operatorKP, operatorPub, signingPub, accountKeys[spec.SystemAccount], result)
	if err != nil {
		return nil, err
	}
	result.OperatorJWT = operatorToken

	if err := b.ensureGuardCredentials(spec, states, sentinelKP, sentinelCreated, relayKP, relayCreated, adminKP, adminCreated, result); err != nil {
		return nil, err
	}
	if err := b.ensureRequestKey(spec, result); err != nil {
		return nil, err
	}

	if spec.EscrowRecipient != "" {
		if err := b.ensureEscrow(spec, result); err != nil {
			return nil, err
		}
	}

	result.Operator = trust.Operator{
		Name:          spec.Operator,
		PublicKey:     operatorPub,
		SigningKeys:   []string{signingPub},
		SystemAccount: accountKeys[spec.SystemAccount],
	}
	for _, state := range states {
		result.Accounts = append(result.Accounts, state.trustAccount())
	}

	b.log.Info("provisioning complete",
		"operator", spec.Operator,
		"accounts", len(spec.Accounts),
		"outcomes", len(result.Outcomes))
	return result, nil
}

// ensureOperatorKeys loads or creates the operator root keypair.
func (b *Builder) ensureOperatorKeys(spec *Spec, result *Result) (nkeys.KeyPair, string, error) {
	name := operatorSeedName(spec.Operator)
	keyPair, created, err := b.ensureKeyPair(name, operatorJWTName, nkeys.PrefixByteOperator)
	if err != nil {
		return nil, "", err
	}
	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return nil, "", fmt.Errorf("chain: operator public key: %w", err)
	}
	if err := trust.ValidateOperatorKey(publicKey); err != nil {
		return nil, "", fmt.Errorf("%w: %s holds a non-operator seed", ErrInconsistentState, name)
	}
	result.note(name, created)
	return keyPair, publicKey, nil
}

// ensureOperatorSigningKey loads or creates the operator's signing
// keypair. Account tokens are countersigned by this key, never by the
// operator root, so the signing key can rotate without rebuilding the
// chain.
func (b *Builder) ensureOperatorSigningKey(spec *Spec, result *Result) (nkeys.KeyPair, string, error) {
	name := operatorSigningSeedName(spec.Operator)
	keyPair, created, err := b.ensureKeyPair(name, operatorJWTName, nkeys.PrefixByteOperator)
	if err != nil {
		return nil, "", err
	}
	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return nil, "", fmt.Errorf("chain: operator signing public key: %w", err)
	}
	if err := trust.ValidateOperatorKey(publicKey); err != nil {
		return nil, "", fmt.Errorf("%w: %s holds a non-operator seed", ErrInconsistentState, name)
	}
	result.note(name, created)
	return keyPair, publicKey, nil
}

// ensureAccountKeys loads or creates the account root keypair and one
// signing keypair per declared role.
func (b *Builder) ensureAccountKeys(spec *Spec, accountSpec *AccountSpec, result *Result) (*accountState, error) {
	name := accountSeedName(spec.Operator, accountSpec.Name)
	keyPair, created, err := b.ensureKeyPair(name, AccountJWTName(accountSpec.Name), nkeys.PrefixByteAccount)
	if err != nil {
		return nil, err
	}
	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("chain: account %q public key: %w", accountSpec.Name, err)
	}
	if err := trust.ValidateAccountKey(publicKey); err != nil {
		return nil, fmt.Errorf("%w: %s holds a non-account seed", ErrInconsistentState, name)
	}
	result.note(name, created)

	state := &accountState{spec: accountSpec, keyPair: keyPair, publicKey: publicKey}
	for _, roleSpec := range accountSpec.Roles {
		role, err := roleSpec.Role()
		if err != nil {
			return nil, err
		}
		roleKP, rolePub, roleCreated, err := b.ensureRoleSigningKey(spec.Operator, accountSpec.Name, roleSpec.Name)
		if err != nil {
			return nil, err
		}
		result.note(spec.Operator+"/"+accountSpec.Name+"/"+roleSpec.Name+".nk", roleCreated)
		state.roles = append(state.roles, roleState{role: role, keyPair: roleKP, publicKey: rolePub})
	}
	return state, nil
}

// ensureRoleSigningKey loads the role's signing key seed from the
// store, or creates a fresh account-class keypair and stores it under
// both local layouts.
func (b *Builder) ensureRoleSigningKey(operator, account, role string) (nkeys.KeyPair, string, bool, error) {
	buffer, err := b.store.SigningKeySeed(operator, account, role)
	switch {
	case err == nil:
		defer buffer.Close()
		keyPair, err := nkeys.FromSeed(buffer.Bytes())
		if err != nil {
			return nil, "", false, fmt.Errorf("%w: role %s/%s: %v", ErrSigningKeyExtraction, account, role, err)
		}
		publicKey, err := keyPair.PublicKey()
		if err != nil {
			return nil, "", false, fmt.Errorf("chain: role %s/%s public key: %w", account, role, err)
		}
		return keyPair, publicKey, false, nil

	case errors.Is(err, keystore.ErrNotFound):
		keyPair, err := nkeys.CreatePair(nkeys.PrefixByteAccount)
		if err != nil {
			return nil, "", false, fmt.Errorf("chain: creating signing key for %s/%s: %w", account, role, err)
		}
		publicKey, err := keyPair.PublicKey()
		if err != nil {
			return nil, "", false, fmt.Errorf("chain: role %s/%s public key: %w", account, role, err)
		}
		seed, err := seedCopy(keyPair)
		if err != nil {
			return nil, "", false, fmt.Errorf("chain: role %s/%s seed: %w", account, role, err)
		}
		if err := b.store.StoreSigningKey(operator, account, role, publicKey, seed); err != nil {
			return nil, "", false, err
		}
		return keyPair, publicKey, true, nil

	default:
		return nil, "", false, fmt.Errorf("%w: role %s/%s: %v", ErrSigningKeyExtraction, account, role, err)
	}
}

// ensureKeyPair loads a seed from the local store or creates and stores
// a fresh keypair of the given class. When anchor is non-empty and that
// shared artifact already exists, a missing seed is a prerequisite
// failure, not an invitation to mint: a fresh key would silently shadow
// the one the anchor was built from.
func (b *Builder) ensureKeyPair(name, anchor string, prefix nkeys.PrefixByte) (nkeys.KeyPair, bool, error) {
	buffer, err := b.store.GetLocal(name)
	switch {
	case err == nil:
		defer buffer.Close()
		keyPair, err := nkeys.FromSeed(buffer.Bytes())
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrInconsistentState, name, err)
		}
		return keyPair, false, nil

	case errors.Is(err, keystore.ErrNotFound):
		if anchor != "" && b.store.HasShared(anchor) {
			return nil, false, fmt.Errorf("%w: %s exists but %s does not",
				ErrMissingPrerequisite, anchor, name)
		}
		keyPair, err := nkeys.CreatePair(prefix)
		if err != nil {
			return nil, false, fmt.Errorf("chain: creating keypair for %s: %w", name, err)
		}
		seed, err := seedCopy(keyPair)
		if err != nil {
			return nil, false, fmt.Errorf("chain: seed for %s: %w", name, err)
		}
		putErr := b.store.PutLocal(name, seed)
		secret.Zero(seed)
		if putErr != nil {
			return nil, false, putErr
		}
		return keyPair, true, nil

	default:
		return nil, false, err
	}
}

// seedCopy returns a private copy of the keypair's seed. nkeys hands
// out its internal slice, so storing and zeroing must happen on the
// copy or the keypair is destroyed mid-provision.
func seedCopy(keyPair nkeys.KeyPair) ([]byte, error) {
	seed, err := keyPair.Seed()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), seed...), nil
}

// ensureGuardKeyPair loads a guard identity's keypair from its
// credential bundle, or creates a fresh user keypair when the bundle
// does not exist yet. The bundle itself is written later, after the
// account tokens exist.
func (b *Builder) ensureGuardKeyPair(shared bool, name string) (nkeys.KeyPair, bool, error) {
	var data []byte
	var err error
	if shared {
		data, err = b.store.GetShared(name)
	} else {
		var buffer *secret.Buffer
		buffer, err = b.store.GetLocal(name)
		if err == nil {
			defer buffer.Close()
			data = buffer.Bytes()
		}
	}
	switch {
	case err == nil:
		keyPair, err := jwt.ParseDecoratedNKey(data)
		if err != nil {
			return nil, false, fmt.Errorf("%w: credentials %s: %v", ErrInconsistentState, name, err)
		}
		return keyPair, false, nil

	case errors.Is(err, keystore.ErrNotFound):
		keyPair, err := nkeys.CreatePair(nkeys.PrefixByteUser)
		if err != nil {
			return nil, false, fmt.Errorf("chain: creating guard keypair for %s: %w", name, err)
		}
		return keyPair, true, nil

	default:
		return nil, false, err
	}
}

// ensureAccountToken encodes the account's token from the spec and the
// stored keys, writing it to the shared area when it is new or its
// content changed. An existing equivalent token is verified and left
// byte-identical.
func (b *Builder) ensureAccountToken(spec *Spec, state *accountState, operatorPub, signingPub string, signingKP nkeys.KeyPair, relayPub string, accountKeys map[string]string, result *Result) (string, error) {
	claims := jwt.NewAccountClaims(state.publicKey)
	claims.Name = state.spec.Name
	claims.Limits.JetStreamLimits = jwt.JetStreamLimits{
		MemoryStorage: state.spec.Limits.MemoryStorage,
		DiskStorage:   state.spec.Limits.DiskStorage,
		Streams:       state.spec.Limits.Streams,
		Consumer:      state.spec.Limits.Consumers,
	}

	for _, role := range state.roles {
		scope := jwt.NewUserScope()
		scope.Key = role.publicKey
		scope.Role = role.role.Name
		scope.Template.Pub.Allow = templateStrings(role.role.Publish)
		scope.Template.Sub.Allow = templateStrings(role.role.Subscribe)
		claims.SigningKeys.AddScopedSigner(scope)
	}

	if state.spec.Name == spec.AuthAccount {
		allowed := make(jwt.StringList, 0, len(accountKeys))
		for _, name := range sortedKeys(accountKeys) {
			allowed.Add(accountKeys[name])
		}
		claims.Authorization = jwt.ExternalAuthorization{
			AuthUsers:       jwt.StringList{relayPub},
			AllowedAccounts: allowed,
		}
	}

	for _, share := range state.spec.Exports {
		claims.Exports.Add(&jwt.Export{
			Name:    share.Name,
			Subject: jwt.Subject(share.Subject),
			Type:    shareType(share),
		})
	}
	for _, share := range state.spec.Imports {
		claims.Imports.Add(&jwt.Import{
			Name:    share.Name,
			Subject: jwt.Subject(share.Subject),
			Account: accountKeys[share.Account],
			Type:    shareType(share),
		})
	}

	name := AccountJWTName(state.spec.Name)
	existing, err := b.loadExistingAccountToken(name, state.publicKey, operatorPub, signingPub)
	if err != nil {
		return "", err
	}
	if existing != nil && accountClaimsEquivalent(existing.claims, claims) {
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: name, Status: StatusExists})
		return existing.token, nil
	}

	token, err := claims.Encode(signingKP)
	if err != nil {
		return "", fmt.Errorf("chain: signing account %q token: %w", state.spec.Name, err)
	}
	if err := b.store.PutShared(name, []byte(token)); err != nil {
		return "", err
	}

	status := StatusCreated
	if existing != nil {
		status = StatusUpdated
	}
	result.Outcomes = append(result.Outcomes, Outcome{Artifact: name, Status: status})
	b.log.Info("account token written", "account", state.spec.Name, "status", status)
	return token, nil
}

type existingAccountToken struct {
	token  string
	claims *jwt.AccountClaims
}

// loadExistingAccountToken reads and verifies an already-stored account
// token, if any. The token's subject must match the local account seed
// and its issuer must be within the operator's key set.
func (b *Builder) loadExistingAccountToken(name, accountPub, operatorPub, signingPub string) (*existingAccountToken, error) {
	data, err := b.store.GetShared(name)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	claims, err := jwt.DecodeAccountClaims(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInconsistentState, name, err)
	}
	if claims.Subject != accountPub {
		return nil, fmt.Errorf("%w: %s subject %s does not match local seed %s",
			ErrInconsistentState, name, claims.Subject, accountPub)
	}
	if claims.Issuer != operatorPub && claims.Issuer != signingPub {
		return nil, fmt.Errorf("%w: %s issued by unknown key %s",
			ErrInconsistentState, name, claims.Issuer)
	}
	return &existingAccountToken{token: string(data), claims: claims}, nil
}

// ensureOperatorToken encodes the self-signed operator token.
func (b *Builder) ensureOperatorToken(spec *Spec, operatorKP nkeys.KeyPair, operatorPub, signingPub, systemAccountPub string, result *Result) (string, error) {
	claims := jwt.NewOperatorClaims(operatorPub)
	claims.Name = spec.Operator
	claims.SigningKeys.Add(signingPub)
	claims.SystemAccount = systemAccountPub

	data, err := b.store.GetShared(operatorJWTName)
	switch {
	case err == nil:
		existing, err := jwt.DecodeOperatorClaims(string(data))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInconsistentState, operatorJWTName, err)
		}
		if existing.Subject != operatorPub {
			return "", fmt.Errorf("%w: operator token subject %s does not match local seed %s",
				ErrInconsistentState, existing.Subject, operatorPub)
		}
		if existing.Name == claims.Name &&
			existing.SystemAccount == claims.SystemAccount &&
			stringListsEqual(existing.SigningKeys, claims.SigningKeys) {
			result.Outcomes = append(result.Outcomes, Outcome{Artifact: operatorJWTName, Status: StatusExists})
			return string(data), nil
		}
		token, err := claims.Encode(operatorKP)
		if err != nil {
			return "", fmt.Errorf("chain: signing operator token: %w", err)
		}
		if err := b.store.PutShared(operatorJWTName, []byte(token)); err != nil {
			return "", err
		}
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: operatorJWTName, Status: StatusUpdated})
		return token, nil

	case errors.Is(err, keystore.ErrNotFound):
		token, err := claims.Encode(operatorKP)
		if err != nil {
			return "", fmt.Errorf("chain: signing operator token: %w", err)
		}
		if err := b.store.PutShared(operatorJWTName, []byte(token)); err != nil {
			return "", err
		}
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: operatorJWTName, Status: StatusCreated})
		b.log.Info("operator token written", "operator", spec.Operator)
		return token, nil

	default:
		return "", err
	}
}

// ensureGuardCredentials writes the guard credential bundles for any
// guard whose keypair was created this run. The guard tokens are signed
// by their account's root key: guards are provisioning-time artifacts,
// built while the root seed is online anyway, and revoking one means
// rotating the account.
func (b *Builder) ensureGuardCredentials(spec *Spec, states []*accountState, sentinelKP nkeys.KeyPair, sentinelCreated bool, relayKP nkeys.KeyPair, relayCreated bool, adminKP nkeys.KeyPair, adminCreated bool, result *Result) error {
	authState := stateFor(states, spec.AuthAccount)
	adminState := stateFor(states, spec.AdminAccount)

	// Deny-all sentinel: the identity unauthenticated connections map
	// to. It can do nothing; rejecting it is an ordinary authorization
	// decision, not a special path.
	if sentinelCreated {
		claims, err := guardUserClaims(sentinelKP, sentinelName)
		if err != nil {
			return err
		}
		claims.Permissions.Pub.Deny.Add(">")
		claims.Permissions.Sub.Deny.Add(">")
		creds, err := encodeGuardCredentials(claims, sentinelKP, authState.keyPair)
		if err != nil {
			return err
		}
		if err := b.store.PutSharedCredentials(SentinelCredsName(), creds); err != nil {
			return err
		}
	}
	result.note(SentinelCredsName(), sentinelCreated)

	// Authorization relay: the only identity allowed to answer callout
	// requests. Its permissions cover exactly the callout subject and
	// reply inboxes.
	if relayCreated {
		claims, err := guardUserClaims(relayKP, relayName)
		if err != nil {
			return err
		}
		claims.Permissions.Sub.Allow.Add(CalloutSubject)
		claims.Permissions.Pub.Allow.Add("_INBOX.>")
		creds, err := encodeGuardCredentials(claims, relayKP, authState.keyPair)
		if err != nil {
			return err
		}
		if err := b.store.PutLocal(RelayCredsName(spec.Operator, spec.AuthAccount), creds); err != nil {
			return err
		}
	}
	result.note(RelayCredsName(spec.Operator, spec.AuthAccount), relayCreated)

	// Bootstrap administrator: inherits the admin account's "admin"
	// role permissions when declared, full allow otherwise.
	if adminCreated {
		claims, err := guardUserClaims(adminKP, adminName)
		if err != nil {
			return err
		}
		if role, ok := adminRole(adminState); ok {
			permissions, err := role.Resolve("")
			if err != nil {
				return fmt.Errorf("chain: resolving admin role: %w", err)
			}
			claims.Permissions.Pub.Allow.Add(permissions.Publish...)
			claims.Permissions.Sub.Allow.Add(permissions.Subscribe...)
		} else {
			claims.Permissions.Pub.Allow.Add(">")
			claims.Permissions.Sub.Allow.Add(">")
		}
		creds, err := encodeGuardCredentials(claims, adminKP, adminState.keyPair)
		if err != nil {
			return err
		}
		if err := b.store.PutLocal(AdminCredsName(spec.Operator, spec.AdminAccount), creds); err != nil {
			return err
		}
	}
	result.note(AdminCredsName(spec.Operator, spec.AdminAccount), adminCreated)

	return nil
}

// adminRole returns the admin account's bootstrap role if it is
// declared and static.
func adminRole(state *accountState) (trust.Role, bool) {
	for _, role := range state.roles {
		if role.role.Name == adminRoleName && !hasPlaceholder(role.role) {
			return role.role, true
		}
	}
	return trust.Role{}, false
}

func guardUserClaims(keyPair nkeys.KeyPair, name string) (*jwt.UserClaims, error) {
	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("chain: guard %q public key: %w", name, err)
	}
	claims := jwt.NewUserClaims(publicKey)
	claims.Name = name
	return claims, nil
}

// encodeGuardCredentials signs the guard token with the account key and
// bundles it with the guard's seed in the standard credential format.
func encodeGuardCredentials(claims *jwt.UserClaims, userKP, accountKP nkeys.KeyPair) ([]byte, error) {
	token, err := claims.Encode(accountKP)
	if err != nil {
		return nil, fmt.Errorf("chain: signing guard %q token: %w", claims.Name, err)
	}
	seed, err := seedCopy(userKP)
	if err != nil {
		return nil, fmt.Errorf("chain: guard %q seed: %w", claims.Name, err)
	}
	creds, err := jwt.FormatUserConfig(token, seed)
	secret.Zero(seed)
	if err != nil {
		return nil, fmt.Errorf("chain: formatting guard %q credentials: %w", claims.Name, err)
	}
	return creds, nil
}

// ensureRequestKey provisions the relay's server-class request-signing
// keypair and anchors its public key in the shared area. The decision
// service rejects any callout request whose signer is not listed in
// the anchor.
func (b *Builder) ensureRequestKey(spec *Spec, result *Result) error {
	seedName := RelayRequestSeedName(spec.Operator, spec.AuthAccount)
	keyPair, created, err := b.ensureKeyPair(seedName, RequestersName(), nkeys.PrefixByteServer)
	if err != nil {
		return err
	}
	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return fmt.Errorf("chain: relay request public key: %w", err)
	}
	if !nkeys.IsValidPublicServerKey(publicKey) {
		return fmt.Errorf("%w: %s holds a non-server seed", ErrInconsistentState, seedName)
	}
	result.note(seedName, created)

	anchorName := RequestersName()
	data, err := b.store.GetShared(anchorName)
	switch {
	case err == nil:
		if !containsLine(data, publicKey) {
			return fmt.Errorf("%w: %s does not list the local request key %s",
				ErrInconsistentState, anchorName, publicKey)
		}
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: anchorName, Status: StatusExists})
		return nil

	case errors.Is(err, keystore.ErrNotFound):
		if err := b.store.PutShared(anchorName, []byte(publicKey+"\n")); err != nil {
			return err
		}
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: anchorName, Status: StatusCreated})
		return nil

	default:
		return err
	}
}

func containsLine(data []byte, line string) bool {
	for _, candidate := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(candidate) == line {
			return true
		}
	}
	return false
}

// ensureEscrow seals the operator and account root seeds to the spec's
// escrow recipient. Sealed copies let the plaintext seeds be purged
// from the local area after provisioning.
func (b *Builder) ensureEscrow(spec *Spec, result *Result) error {
	targets := []struct{ seedName, sealedBase string }{
		{operatorSeedName(spec.Operator), "operator"},
	}
	for _, account := range spec.Accounts {
		targets = append(targets, struct{ seedName, sealedBase string }{
			accountSeedName(spec.Operator, account.Name), account.Name,
		})
	}

	for _, target := range targets {
		sealedName := sealedSeedName(spec.Operator, target.sealedBase)
		if b.store.HasLocal(sealedName) {
			result.Outcomes = append(result.Outcomes, Outcome{Artifact: sealedName, Status: StatusExists})
			continue
		}
		buffer, err := b.store.GetLocal(target.seedName)
		if err != nil {
			return err
		}
		ciphertext, err := escrow.Seal(buffer.Bytes(), []string{spec.EscrowRecipient})
		buffer.Close()
		if err != nil {
			return err
		}
		if err := b.store.PutLocal(sealedName, []byte(ciphertext)); err != nil {
			return err
		}
		result.Outcomes = append(result.Outcomes, Outcome{Artifact: sealedName, Status: StatusCreated})
	}
	return nil
}

func (s *accountState) trustAccount() trust.Account {
	account := trust.Account{
		Name:      s.spec.Name,
		PublicKey: s.publicKey,
		Limits:    s.spec.Limits,
	}
	for _, role := range s.roles {
		account.SigningKeys = append(account.SigningKeys, trust.SigningKey{
			PublicKey: role.publicKey,
			Account:   s.spec.Name,
			Role:      role.role.Name,
		})
	}
	for _, share := range s.spec.Exports {
		account.Exports = append(account.Exports, trust.Share{Name: share.Name, Subject: share.Subject, Account: share.Account})
	}
	for _, share := range s.spec.Imports {
		account.Imports = append(account.Imports, trust.Share{Name: share.Name, Subject: share.Subject, Account: share.Account})
	}
	return account
}

func (r *Result) note(artifact string, created bool) {
	status := StatusExists
	if created {
		status = StatusCreated
	}
	r.Outcomes = append(r.Outcomes, Outcome{Artifact: artifact, Status: status})
}

func stateFor(states []*accountState, name string) *accountState {
	for _, state := range states {
		if state.spec.Name == name {
			return state
		}
	}
	return nil
}

func shareType(share ShareSpec) jwt.ExportType {
	if share.Service {
		return jwt.Service
	}
	return jwt.Stream
}

func templateStrings(templates []trust.Template) jwt.StringList {
	if len(templates) == 0 {
		return nil
	}
	list := make(jwt.StringList, 0, len(templates))
	for _, template := range templates {
		list = append(list, template.String())
	}
	return list
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func stringListsEqual(a, b jwt.StringList) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// accountClaimsEquivalent reports whether two account claim sets would
// grant identically: same signing keys with the same role scopes, same
// limits, same authorization and share configuration. Issue time and
// token ID are ignored; equivalence means the stored token can stand.
func accountClaimsEquivalent(a, b *jwt.AccountClaims) bool {
	if a.Name != b.Name || a.Subject != b.Subject {
		return false
	}
	if a.Limits.JetStreamLimits != b.Limits.JetStreamLimits {
		return false
	}
	if !stringListsEqual(a.Authorization.AuthUsers, b.Authorization.AuthUsers) ||
		!stringListsEqual(a.Authorization.AllowedAccounts, b.Authorization.AllowedAccounts) {
		return false
	}

	aKeys := a.SigningKeys.Keys()
	bKeys := b.SigningKeys.Keys()
	if !stringListsEqual(aKeys, bKeys) {
		return false
	}
	for _, key := range aKeys {
		if !scopesEquivalent(a.SigningKeys, b.SigningKeys, key) {
			return false
		}
	}

	if len(a.Exports) != len(b.Exports) || len(a.Imports) != len(b.Imports) {
		return false
	}
	for i := range a.Exports {
		if a.Exports[i].Name != b.Exports[i].Name ||
			a.Exports[i].Subject != b.Exports[i].Subject ||
			a.Exports[i].Type != b.Exports[i].Type {
			return false
		}
	}
	for i := range a.Imports {
		if a.Imports[i].Name != b.Imports[i].Name ||
			a.Imports[i].Subject != b.Imports[i].Subject ||
			a.Imports[i].Account != b.Imports[i].Account ||
			a.Imports[i].Type != b.Imports[i].Type {
			return false
		}
	}
	return true
}

func scopesEquivalent(a, b jwt.SigningKeys, key string) bool {
	scopeA, okA := a.GetScope(key)
	scopeB, okB := b.GetScope(key)
	if !okA || !okB {
		return okA == okB
	}
	userA, aIsUser := scopeA.(*jwt.UserScope)
	userB, bIsUser := scopeB.(*jwt.UserScope)
	if !aIsUser || !bIsUser {
		// Unscoped signing keys decode with a nil scope.
		return aIsUser == bIsUser
	}
	return userA.Role == userB.Role &&
		stringListsEqual(userA.Template.Pub.Allow, userB.Template.Pub.Allow) &&
		stringListsEqual(userA.Template.Sub.Allow, userB.Template.Sub.Allow)
}
