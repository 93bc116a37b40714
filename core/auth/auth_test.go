package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.True(t, VerifyPassword("correct horse", hash))
	require.False(t, VerifyPassword("wrong horse", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)

	tok, err := m.GenerateToken("id-1", "artist", "0xartist")
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	require.Equal(t, "0xartist", claims.Address)
	require.Equal(t, "artist", claims.Username)
	require.Equal(t, "id-1", claims.AccountID)
}

func TestTokenRejected(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	tok, err := m.GenerateToken("id-1", "artist", "0xartist")
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenManager("other", time.Hour)
		require.NoError(t, err)
		_, err = other.ParseToken(tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		_, err := m.ParseToken(tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ParseToken("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	_, err = NewTokenManager("", time.Hour)
	require.Error(t, err)
}
