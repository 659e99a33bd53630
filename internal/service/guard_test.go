package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoesfit/partner-server-go/internal/model"
)

func TestLoginGuard(t *testing.T) {
	guard := NewLoginGuard(5, 30*time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("unlocked state passes check", func(t *testing.T) {
		locked, remaining := guard.Check(model.LoginState{}, now)
		assert.False(t, locked)
		assert.Zero(t, remaining)
	})

	t.Run("locks on the fifth consecutive failure", func(t *testing.T) {
		state := model.LoginState{}
		for i := 1; i <= 4; i++ {
			var justLocked bool
			state, justLocked = guard.RecordFailure(state, now)
			assert.False(t, justLocked, "attempt %d should not lock", i)
			assert.Equal(t, i, state.FailCount)
			assert.Nil(t, state.LockedUntil)
		}

		state, justLocked := guard.RecordFailure(state, now)
		assert.True(t, justLocked)
		assert.Equal(t, 5, state.FailCount)
		require.NotNil(t, state.LockedUntil)
		assert.Equal(t, now.Add(30*time.Minute), *state.LockedUntil)

		locked, remaining := guard.Check(state, now.Add(10*time.Minute))
		assert.True(t, locked)
		assert.Equal(t, 20*time.Minute, remaining)
	})

	t.Run("lock clears once the expiry instant has passed", func(t *testing.T) {
		until := now.Add(30 * time.Minute)
		state := model.LoginState{FailCount: 5, LockedUntil: &until}

		locked, _ := guard.Check(state, until)
		assert.False(t, locked, "lock is not active at exactly the expiry instant")

		locked, _ = guard.Check(state, until.Add(time.Second))
		assert.False(t, locked)
	})

	t.Run("failure after an expired lock locks again", func(t *testing.T) {
		until := now.Add(-time.Minute)
		state := model.LoginState{FailCount: 5, LockedUntil: &until}

		next, justLocked := guard.RecordFailure(state, now)
		assert.True(t, justLocked)
		assert.Equal(t, 6, next.FailCount)
		require.NotNil(t, next.LockedUntil)
		assert.Equal(t, now.Add(30*time.Minute), *next.LockedUntil)
	})

	t.Run("success resets counter and lock and stamps last login", func(t *testing.T) {
		until := now.Add(-time.Minute)
		state := model.LoginState{FailCount: 3, LockedUntil: &until}

		next := guard.RecordSuccess(state, now)
		assert.Zero(t, next.FailCount)
		assert.Nil(t, next.LockedUntil)
		require.NotNil(t, next.LastLoginAt)
		assert.Equal(t, now, *next.LastLoginAt)
	})

	t.Run("does not mutate the input state", func(t *testing.T) {
		state := model.LoginState{FailCount: 4}
		next, _ := guard.RecordFailure(state, now)
		assert.Equal(t, 4, state.FailCount)
		assert.Nil(t, state.LockedUntil)
		assert.NotNil(t, next.LockedUntil)
	})

	t.Run("policy is configurable", func(t *testing.T) {
		strict := NewLoginGuard(2, time.Minute)
		state, locked := strict.RecordFailure(model.LoginState{}, now)
		assert.False(t, locked)
		state, locked = strict.RecordFailure(state, now)
		assert.True(t, locked)
		assert.Equal(t, now.Add(time.Minute), *state.LockedUntil)
		assert.Equal(t, 2, strict.MaxAttempts())
		assert.Equal(t, time.Minute, strict.LockDuration())
	})
}
