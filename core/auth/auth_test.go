package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
	assert.False(t, CheckPasswordHash("hunter2", "not-a-hash"))
}

func TestHashPasswordTooLong(t *testing.T) {
	long := strings.Repeat("a", MaxPasswordBytes+1)

	_, err := HashPassword(long)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	hash, err := HashPassword(long[:MaxPasswordBytes])
	require.NoError(t, err)
	assert.False(t, CheckPasswordHash(long, hash))
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager(testSecret, 24*time.Hour)

	token, err := m.GenerateToken(42, "alice")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "42", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestParseTokenExpired(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.GenerateToken(1, "alice")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseTokenRejects(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	good, err := m.GenerateToken(1, "alice")
	require.NoError(t, err)

	other, err := NewTokenManager("fedcba9876543210", time.Hour).GenerateToken(1, "alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not.a.token",
		"empty":        "",
		"wrong secret": other,
		"tampered":     good + "x",
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.ParseToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
