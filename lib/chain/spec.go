// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/warrant/lib/escrow"
	"github.com/bureau-foundation/warrant/lib/subject"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// Spec is the declarative provisioning input: which operator, which
// accounts, which roles under each account, and which guard identities
// the transport needs. Specs are authored as JSONC files (JSON with
// comments and trailing commas) and audited in review — the builder
// never invents structure beyond what the spec declares.
type Spec struct {
	// Operator is the operator name (e.g., "bureau").
	Operator string `json:"operator"`

	// SystemAccount names the account designated as the transport's
	// system account. Must appear in Accounts.
	SystemAccount string `json:"system_account"`

	// AuthAccount names the account that owns the authorization
	// decision service: its signing key signs callout responses, and
	// its account record lists the relay identity allowed to submit
	// callout requests. Must appear in Accounts.
	AuthAccount string `json:"auth_account"`

	// AdminAccount names the account the bootstrap administrator
	// identity is issued under. Must appear in Accounts.
	AdminAccount string `json:"admin_account"`

	// EscrowRecipient is an optional age public key. When set, the
	// operator and account root seeds are additionally sealed to this
	// recipient so the plaintext seeds can be purged from the local
	// store after provisioning.
	EscrowRecipient string `json:"escrow_recipient,omitempty"`

	// Accounts are the namespaces to provision.
	Accounts []AccountSpec `json:"accounts"`
}

// AccountSpec declares one account.
type AccountSpec struct {
	// Name identifies the account (e.g., "ADMIN", "AUTH", "WORKLOAD").
	Name string `json:"name"`

	// Limits are the account's stream-storage quotas. Omitted fields
	// leave the resource disabled.
	Limits trust.StreamLimits `json:"limits,omitempty"`

	// Roles are the permission templates to attach, one signing key
	// per role.
	Roles []RoleSpec `json:"roles,omitempty"`

	// Exports make subjects visible to other accounts.
	Exports []ShareSpec `json:"exports,omitempty"`

	// Imports bind other accounts' exported subjects into this
	// account's namespace. The referenced account must be declared in
	// the same spec.
	Imports []ShareSpec `json:"imports,omitempty"`
}

// RoleSpec declares one role: a named permission template set.
// Patterns use template authoring syntax and may contain the {tag}
// placeholder.
type RoleSpec struct {
	Name      string   `json:"name"`
	Publish   []string `json:"publish,omitempty"`
	Subscribe []string `json:"subscribe,omitempty"`
}

// ShareSpec declares a cross-account export or import.
type ShareSpec struct {
	// Name labels the relation.
	Name string `json:"name"`

	// Subject is the shared subject pattern (no placeholders).
	Subject string `json:"subject"`

	// Account is the counterpart: for exports, the intended importer
	// (empty for public exports); for imports, the exporting account.
	Account string `json:"account,omitempty"`

	// Service marks a request/reply relation instead of a stream.
	Service bool `json:"service,omitempty"`
}

// ParseSpecFile reads and validates a JSONC provisioning spec.
func ParseSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain: reading spec %s: %w", path, err)
	}
	return ParseSpec(data)
}

// ParseSpec parses and validates JSONC spec bytes.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
		return nil, fmt.Errorf("chain: parsing spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the spec for structural errors: duplicate names,
// dangling account references, unparseable templates, and roles whose
// resolved patterns could collide across host tags.
func (s *Spec) Validate() error {
	if s.Operator == "" {
		return fmt.Errorf("chain: operator name is required")
	}
	if len(s.Accounts) == 0 {
		return fmt.Errorf("chain: at least one account is required")
	}

	names := make(map[string]bool, len(s.Accounts))
	for _, account := range s.Accounts {
		if account.Name == "" {
			return fmt.Errorf("chain: account with empty name")
		}
		if names[account.Name] {
			return fmt.Errorf("chain: duplicate account %q", account.Name)
		}
		names[account.Name] = true
	}

	for _, designated := range []struct{ field, name string }{
		{"system_account", s.SystemAccount},
		{"auth_account", s.AuthAccount},
		{"admin_account", s.AdminAccount},
	} {
		if designated.name == "" {
			return fmt.Errorf("chain: %s is required", designated.field)
		}
		if !names[designated.name] {
			return fmt.Errorf("chain: %s %q is not a declared account", designated.field, designated.name)
		}
	}

	if s.EscrowRecipient != "" {
		if err := escrow.ParseRecipient(s.EscrowRecipient); err != nil {
			return fmt.Errorf("chain: escrow_recipient: %w", err)
		}
	}

	for _, account := range s.Accounts {
		roleNames := make(map[string]bool, len(account.Roles))
		for _, roleSpec := range account.Roles {
			if roleSpec.Name == "" {
				return fmt.Errorf("chain: account %q: role with empty name", account.Name)
			}
			if roleNames[roleSpec.Name] {
				return fmt.Errorf("chain: account %q: duplicate role %q", account.Name, roleSpec.Name)
			}
			roleNames[roleSpec.Name] = true

			role, err := roleSpec.Role()
			if err != nil {
				return fmt.Errorf("chain: account %q: %w", account.Name, err)
			}
			// A role that scopes any pattern by tag must scope all of
			// them: otherwise two hosts holding the same role would
			// share the unscoped patterns and the per-host grant
			// disjointness guarantee breaks.
			if hasPlaceholder(role) && !role.Scoped() {
				return fmt.Errorf("chain: account %q role %q mixes tagged and static patterns", account.Name, roleSpec.Name)
			}
		}

		for _, share := range append(append([]ShareSpec{}, account.Exports...), account.Imports...) {
			if err := subject.ValidatePattern(share.Subject); err != nil {
				return fmt.Errorf("chain: account %q share %q: %w", account.Name, share.Name, err)
			}
		}
		for _, share := range account.Imports {
			if share.Account == "" {
				return fmt.Errorf("chain: account %q import %q has no source account", account.Name, share.Name)
			}
			if !names[share.Account] {
				return fmt.Errorf("chain: account %q imports from undeclared account %q", account.Name, share.Account)
			}
		}
	}

	return nil
}

// Role converts the role spec into the typed template model.
func (r RoleSpec) Role() (trust.Role, error) {
	role := trust.Role{Name: r.Name}
	for _, pattern := range r.Publish {
		template, err := trust.ParseTemplate(pattern)
		if err != nil {
			return trust.Role{}, fmt.Errorf("role %q publish %q: %w", r.Name, pattern, err)
		}
		role.Publish = append(role.Publish, template)
	}
	for _, pattern := range r.Subscribe {
		template, err := trust.ParseTemplate(pattern)
		if err != nil {
			return trust.Role{}, fmt.Errorf("role %q subscribe %q: %w", r.Name, pattern, err)
		}
		role.Subscribe = append(role.Subscribe, template)
	}
	return role, nil
}

// Account returns the named account spec, or nil.
func (s *Spec) Account(name string) *AccountSpec {
	for i := range s.Accounts {
		if s.Accounts[i].Name == name {
			return &s.Accounts[i]
		}
	}
	return nil
}

func hasPlaceholder(role trust.Role) bool {
	for _, template := range role.Publish {
		if template.HasPlaceholder() {
			return true
		}
	}
	for _, template := range role.Subscribe {
		if template.HasPlaceholder() {
			return true
		}
	}
	return false
}
