package service

import (
	"time"

	"github.com/shoesfit/partner-server-go/internal/model"
)

// LoginGuard derives lockout state from consecutive login failures. It holds
// policy only; every method returns a new state for the caller to persist.
type LoginGuard struct {
	maxAttempts  int
	lockDuration time.Duration
}

func NewLoginGuard(maxAttempts int, lockDuration time.Duration) *LoginGuard {
	return &LoginGuard{
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
	}
}

func (g *LoginGuard) MaxAttempts() int {
	return g.maxAttempts
}

func (g *LoginGuard) LockDuration() time.Duration {
	return g.lockDuration
}

// Check reports whether the account is locked at now and for how long.
func (g *LoginGuard) Check(state model.LoginState, now time.Time) (locked bool, remaining time.Duration) {
	if state.LockedUntil == nil || !state.LockedUntil.After(now) {
		return false, 0
	}
	return true, state.LockedUntil.Sub(now)
}

// RecordFailure counts one failed attempt. Only a successful login resets the
// counter, so after a lock expires the next failure is already over the
// threshold and locks the account again.
func (g *LoginGuard) RecordFailure(state model.LoginState, now time.Time) (next model.LoginState, justLocked bool) {
	next = state
	next.FailCount++
	if next.FailCount >= g.maxAttempts {
		until := now.Add(g.lockDuration)
		next.LockedUntil = &until
		justLocked = true
	}
	return next, justLocked
}

func (g *LoginGuard) RecordSuccess(state model.LoginState, now time.Time) model.LoginState {
	at := now
	return model.LoginState{
		FailCount:   0,
		LockedUntil: nil,
		LastLoginAt: &at,
	}
}
