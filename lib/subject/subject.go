// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subject

import (
	"errors"
	"fmt"
	"strings"
)

// Subject syntax errors.
var (
	ErrEmpty         = errors.New("subject: empty subject")
	ErrEmptyToken    = errors.New("subject: empty token")
	ErrInvalidToken  = errors.New("subject: invalid token")
	ErrWildcardInMid = errors.New("subject: '>' is only valid as the final token")
)

// Validate checks that s is a concrete subject: dot-separated,
// non-empty tokens, no wildcards, no whitespace. Concrete subjects are
// what connections actually publish and subscribe to after placeholder
// substitution.
func Validate(s string) error {
	return validate(s, false)
}

// ValidatePattern checks that s is a valid subject pattern. Patterns
// additionally allow the single-token wildcard "*" and the terminal
// full wildcard ">".
func ValidatePattern(s string) error {
	return validate(s, true)
}

func validate(s string, allowWildcards bool) error {
	if s == "" {
		return ErrEmpty
	}
	tokens := strings.Split(s, ".")
	for i, token := range tokens {
		switch {
		case token == "":
			return fmt.Errorf("%w in %q", ErrEmptyToken, s)
		case token == ">":
			if !allowWildcards {
				return fmt.Errorf("%w: %q", ErrInvalidToken, s)
			}
			if i != len(tokens)-1 {
				return fmt.Errorf("%w: %q", ErrWildcardInMid, s)
			}
		case token == "*":
			if !allowWildcards {
				return fmt.Errorf("%w: %q", ErrInvalidToken, s)
			}
		case strings.ContainsAny(token, "*> \t\r\n"):
			return fmt.Errorf("%w: %q in %q", ErrInvalidToken, token, s)
		}
	}
	return nil
}

// Match reports whether a concrete subject matches a pattern.
//
//   - A literal token matches only itself.
//   - "*" matches exactly one token.
//   - ">" matches one or more trailing tokens.
//
// Malformed patterns never match — a pattern that fails
// ValidatePattern should never grant access.
func Match(pattern, subject string) bool {
	if ValidatePattern(pattern) != nil || Validate(subject) != nil {
		return false
	}

	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			// '>' requires at least one remaining subject token.
			return len(subjectTokens) > i
		}
		if i >= len(subjectTokens) {
			return false
		}
		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}
	return len(subjectTokens) == len(patternTokens)
}

// MatchAny reports whether the subject matches any of the given
// patterns. Returns false for an empty pattern list (default-deny).
func MatchAny(patterns []string, subject string) bool {
	for _, pattern := range patterns {
		if Match(pattern, subject) {
			return true
		}
	}
	return false
}

// Overlaps reports whether two patterns can both match some concrete
// subject. The chain-of-trust builder uses this to refuse role
// specifications whose resolved patterns could collide across host
// tags, and the scoping-soundness tests use it to prove grant
// disjointness.
func Overlaps(a, b string) bool {
	if ValidatePattern(a) != nil || ValidatePattern(b) != nil {
		return false
	}

	aTokens := strings.Split(a, ".")
	bTokens := strings.Split(b, ".")

	limit := len(aTokens)
	if len(bTokens) < limit {
		limit = len(bTokens)
	}

	for i := 0; i < limit; i++ {
		at, bt := aTokens[i], bTokens[i]
		if at == ">" || bt == ">" {
			return true
		}
		if at == "*" || bt == "*" {
			continue
		}
		if at != bt {
			return false
		}
	}

	// One pattern is a strict token-prefix of the other. They overlap
	// only if the longer side begins its remainder immediately, which
	// requires the shorter side to have ended in '>' — handled above.
	return len(aTokens) == len(bTokens)
}
