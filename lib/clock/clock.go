// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations for testability. Production code
// injects Real(); tests inject a Fake with deterministic time control.
//
// Authorization decisions, token expiry, and audit timestamps all flow
// through a Clock so that tests can pin time exactly. Production
// functions that would call time.Now or time.After should accept a
// Clock parameter (or be methods on a struct with a Clock field)
// instead of calling the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After. If d <= 0, the
	// channel receives immediately.
	After(d time.Duration) <-chan time.Time
}
