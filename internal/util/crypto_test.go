package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})

	t.Run("generates valid hex", func(t *testing.T) {
		token, _ := GenerateToken()
		for _, c := range token {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		hash := HashToken("test-token")
		assert.Len(t, hash, 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("test-token"), HashToken("test-token"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	})

	t.Run("fingerprint is a prefix of the hash", func(t *testing.T) {
		fp := TokenFingerprint("test-token")
		assert.Len(t, fp, 12)
		assert.Equal(t, HashToken("test-token")[:12], fp)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	t.Run("accepts the original password", func(t *testing.T) {
		assert.True(t, CheckPasswordHash("correct-horse", hash))
	})

	t.Run("rejects a different password", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("wrong-horse", hash))
	})

	t.Run("rejects a malformed hash", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("correct-horse", "not-a-hash"))
	})

	t.Run("salts each hash", func(t *testing.T) {
		other, err := HashPassword("correct-horse")
		require.NoError(t, err)
		assert.NotEqual(t, hash, other)
	})
}

func TestIDs(t *testing.T) {
	t.Run("NewID is 32 hex chars without dashes", func(t *testing.T) {
		id := NewID()
		assert.Len(t, id, 32)
		assert.NotContains(t, id, "-")
		assert.NotEqual(t, id, NewID())
	})

	t.Run("NewSortableID is monotonic", func(t *testing.T) {
		a := NewSortableID()
		b := NewSortableID()
		assert.Len(t, a, 26)
		assert.Less(t, a, b)
	})
}
