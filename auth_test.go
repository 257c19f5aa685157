package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordIsSalted(t *testing.T) {
	h1, err := HashPassword("Passw0rd!")
	require.NoError(t, err)
	h2, err := HashPassword("Passw0rd!")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, CheckPassword("Passw0rd!", h1))
	assert.True(t, CheckPassword("Passw0rd!", h2))
	assert.False(t, CheckPassword("wrong-password", h1))
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("Passw0rd!", ""))
	assert.False(t, CheckPassword("Passw0rd!", "not-a-bcrypt-hash"))
}

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("round-trip-secret")

	token, err := ts.Issue(42, "alice@x.com")
	require.NoError(t, err)

	identity, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), identity.UserID)
	assert.Equal(t, "alice@x.com", identity.Email)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	secret := "expired-secret"
	ts := NewTokenService(secret)

	claims := jwt.MapClaims{
		"userId": 42,
		"email":  "alice@x.com",
		"exp":    time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issued, err := NewTokenService("secret-a").Issue(1, "a@x.com")
	require.NoError(t, err)

	_, err = NewTokenService("secret-b").Verify(issued)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	ts := NewTokenService("secret")

	_, err := ts.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed, but missing the identity claims.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
