package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "s3cret"})

	token, err := auth.IssueToken("student-42", RoleStudent, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "student-42", claims.UserID())
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "s3cret"})
	other := NewAuthService(&config.Config{JWTSecret: "different"})

	expired, err := auth.IssueToken("u1", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.IssueToken("u1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	badRole, err := auth.IssueToken("u1", "proctor", time.Hour)
	require.NoError(t, err)
	noSubject, err := auth.IssueToken("", RoleStudent, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		Role:             RoleStudent,
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":     expired,
		"wrong key":   foreign,
		"bad role":    badRole,
		"no subject":  noSubject,
		"no expiry":   noExpiry,
		"alg none":    none,
		"garbage":     "not.a.token",
		"empty token": "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
