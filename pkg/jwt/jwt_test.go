package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("user-123", "owner@example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, "user-123", claims.Subject)
}

func TestService_RejectsOtherSecret(t *testing.T) {
	token, err := NewService("one", time.Hour).GenerateToken("user-123", "")
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := sign(secret, "user-123", "", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	_, err = parse(secret, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestService_Garbage(t *testing.T) {
	_, err := NewService("", 0).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RequiresIssuer(t *testing.T) {
	secret := []byte("test-secret")
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := foreign.SignedString(secret)
	require.NoError(t, err)

	_, err = parse(secret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := NewService("test-secret", time.Hour).ValidateToken(mustSign(t, secret))
	require.NoError(t, err)
	assert.Equal(t, Issuer, claims.Issuer)
}

func mustSign(t *testing.T, secret []byte) string {
	t.Helper()
	token, err := sign(secret, "user-123", "", time.Now(), time.Hour)
	require.NoError(t, err)
	return token
}
