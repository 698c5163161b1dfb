// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"fmt"

	"github.com/bureau-foundation/warrant/lib/subject"
)

// Role is a named, pre-approved permission template set. Roles are
// static: they are declared in the provisioning spec, audited in
// advance, and never invented at decision time. The authorization
// decision service only ever substitutes a host tag into a role's
// templates.
type Role struct {
	// Name identifies the role within its account (e.g., "workload",
	// "admin"). Signing keys are stored under this name.
	Name string

	// Publish are the publish-allow templates.
	Publish []Template

	// Subscribe are the subscribe-allow templates.
	Subscribe []Template
}

// Permissions is a fully-resolved permission set: concrete subject
// patterns with all placeholders substituted. This is what gets signed
// into a grant.
type Permissions struct {
	Publish   []string
	Subscribe []string
}

// Resolve substitutes the tag into every template and returns the
// concrete permission set. Fails if the tag is invalid for any
// template with a placeholder.
func (r Role) Resolve(tag string) (Permissions, error) {
	publish, err := resolveAll(r.Publish, tag)
	if err != nil {
		return Permissions{}, fmt.Errorf("role %q publish: %w", r.Name, err)
	}
	subscribe, err := resolveAll(r.Subscribe, tag)
	if err != nil {
		return Permissions{}, fmt.Errorf("role %q subscribe: %w", r.Name, err)
	}
	return Permissions{Publish: publish, Subscribe: subscribe}, nil
}

func resolveAll(templates []Template, tag string) ([]string, error) {
	if len(templates) == 0 {
		return nil, nil
	}
	resolved := make([]string, 0, len(templates))
	for _, template := range templates {
		pattern, err := template.Resolve(tag)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, pattern)
	}
	return resolved, nil
}

// Scoped reports whether every template in the role carries a tag
// placeholder. A fully scoped role can never issue two overlapping
// grants for distinct tags; the builder requires workload-class roles
// to be fully scoped.
func (r Role) Scoped() bool {
	for _, template := range r.Publish {
		if !template.HasPlaceholder() {
			return false
		}
	}
	for _, template := range r.Subscribe {
		if !template.HasPlaceholder() {
			return false
		}
	}
	return len(r.Publish)+len(r.Subscribe) > 0
}

// DisjointForTags reports whether the role's resolved permission sets
// for two distinct tags share no overlapping patterns. This is the
// scoping-soundness property: a grant issued for one host must not
// satisfy any pattern issued for another.
func (r Role) DisjointForTags(tagA, tagB string) (bool, error) {
	if tagA == tagB {
		return false, fmt.Errorf("trust: tags are identical: %q", tagA)
	}
	a, err := r.Resolve(tagA)
	if err != nil {
		return false, err
	}
	b, err := r.Resolve(tagB)
	if err != nil {
		return false, err
	}
	for _, pa := range append(a.Publish, a.Subscribe...) {
		for _, pb := range append(b.Publish, b.Subscribe...) {
			if subject.Overlaps(pa, pb) {
				return false, nil
			}
		}
	}
	return true, nil
}
