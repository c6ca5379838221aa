// Package lockout implements the failed-login lockout state machine. The
// policy is stateless; the per-credential [State] lives on the credential
// record and is persisted by the store, so transitions here are pure
// functions the store can apply inside its own atomic update.
package lockout

import "time"

const (
	// DefaultThreshold is the number of consecutive failures that locks a
	// credential.
	DefaultThreshold = 5
	// DefaultDuration is how long a credential stays locked once the
	// threshold is reached.
	DefaultDuration = 15 * time.Minute
)

// Policy defines when a credential locks and for how long.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy returns the standard 5-failures, 15-minute policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultThreshold,
		Duration:  DefaultDuration,
	}
}

// State is the per-credential lockout record. The zero value means no
// recorded failures and no active lock.
type State struct {
	Attempts  int
	LockUntil time.Time
}

// IsLocked reports whether the state holds an active lock at the given
// instant. A lock whose window has passed no longer counts.
func (s State) IsLocked(now time.Time) bool {
	return !s.LockUntil.IsZero() && now.Before(s.LockUntil)
}

// Fail returns the state after one more failed attempt. A failure after an
// expired lock starts a fresh count rather than extending the old one.
// Reaching the threshold sets the lock window; further failures inside the
// window keep the original deadline.
func (p Policy) Fail(s State, now time.Time) State {
	if s.IsLocked(now) {
		if s.Attempts < p.Threshold {
			s.Attempts = p.Threshold
		}
		return s
	}

	if !s.LockUntil.IsZero() && !now.Before(s.LockUntil) {
		s = State{}
	}

	s.Attempts++
	if s.Attempts >= p.Threshold {
		s.LockUntil = now.Add(p.Duration)
	}
	return s
}

// Reset returns the cleared state recorded after a successful login.
func (p Policy) Reset() State {
	return State{}
}

// Remaining returns how long the lock holds from now, or zero when the
// state is not locked.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.IsLocked(now) {
		return 0
	}
	return s.LockUntil.Sub(now)
}
