// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import "time"

// SetClock overrides the issuer clock so tests can issue and verify
// tokens at chosen instants.
func (t *TokenIssuer) SetClock(now func() time.Time) {
	t.now = now
}
