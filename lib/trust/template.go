// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/warrant/lib/subject"
)

// Placeholder names accepted in templates. Only the host tag exists
// today; the parser is written so that adding a placeholder is a
// one-line change.
const tagPlaceholder = "tag"

// Template errors.
var (
	ErrBadPlaceholder = errors.New("trust: unknown placeholder")
	ErrBadTag         = errors.New("trust: invalid tag value")
	ErrUnresolvedTag  = errors.New("trust: template requires a tag")
)

// Template is a subject pattern with typed placeholder slots. A
// template is parsed once, at spec load time, into an ordered list of
// fragments; substitution happens per-connection via Resolve. Because
// fragments are typed, a tag value can only ever fill a single token
// slot — it cannot inject separators or wildcards and widen the
// pattern.
type Template struct {
	fragments []fragment
}

// fragment is one token of a template: either a literal token (which
// may be a wildcard) or a placeholder slot.
type fragment struct {
	literal     string
	placeholder bool
}

// ParseTemplate parses the authoring syntax for permission templates:
// a subject pattern whose tokens may be the placeholder "{tag}", e.g.
// "WORKLOAD.{tag}.>". The non-placeholder skeleton must be a valid
// subject pattern.
func ParseTemplate(s string) (Template, error) {
	if s == "" {
		return Template{}, subject.ErrEmpty
	}

	tokens := strings.Split(s, ".")
	fragments := make([]fragment, 0, len(tokens))
	skeleton := make([]string, 0, len(tokens))

	for _, token := range tokens {
		if strings.ContainsAny(token, "{}") {
			name := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
			if name != tagPlaceholder || token != "{"+tagPlaceholder+"}" {
				return Template{}, fmt.Errorf("%w: %q in %q", ErrBadPlaceholder, token, s)
			}
			fragments = append(fragments, fragment{placeholder: true})
			// Stand-in token so the skeleton stays syntactically valid.
			skeleton = append(skeleton, "*")
			continue
		}
		fragments = append(fragments, fragment{literal: token})
		skeleton = append(skeleton, token)
	}

	if err := subject.ValidatePattern(strings.Join(skeleton, ".")); err != nil {
		return Template{}, err
	}

	return Template{fragments: fragments}, nil
}

// MustParseTemplate is ParseTemplate that panics on error. For
// declaring built-in role tables in code.
func MustParseTemplate(s string) Template {
	template, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return template
}

// HasPlaceholder reports whether the template contains a tag slot.
// Templates without placeholders resolve identically for every tag.
func (t Template) HasPlaceholder() bool {
	for _, f := range t.fragments {
		if f.placeholder {
			return true
		}
	}
	return false
}

// Resolve substitutes the tag into every placeholder slot and returns
// the concrete subject pattern. The tag must be a single valid token:
// non-empty, no separators, no wildcards, no whitespace. A template
// with no placeholders ignores the tag.
func (t Template) Resolve(tag string) (string, error) {
	if t.HasPlaceholder() {
		if err := ValidateTag(tag); err != nil {
			return "", err
		}
	}

	tokens := make([]string, len(t.fragments))
	for i, f := range t.fragments {
		if f.placeholder {
			tokens[i] = tag
		} else {
			tokens[i] = f.literal
		}
	}
	return strings.Join(tokens, "."), nil
}

// String returns the authoring syntax for the template.
func (t Template) String() string {
	tokens := make([]string, len(t.fragments))
	for i, f := range t.fragments {
		if f.placeholder {
			tokens[i] = "{" + tagPlaceholder + "}"
		} else {
			tokens[i] = f.literal
		}
	}
	return strings.Join(tokens, ".")
}

// ValidateTag checks that a host tag is usable as a single subject
// token: non-empty, no separators, no wildcards, no whitespace, no
// braces. Everything else (hostnames, key fingerprints, dashes,
// underscores) is allowed.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty", ErrBadTag)
	}
	if strings.ContainsAny(tag, ".*>{} \t\r\n") {
		return fmt.Errorf("%w: %q", ErrBadTag, tag)
	}
	return nil
}
