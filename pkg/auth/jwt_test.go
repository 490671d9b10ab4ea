package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m, err := NewTokenManager("access-secret", time.Minute)
	require.NoError(t, err)

	token, err := m.Generate(12, "seller@example.com", RoleSeller)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	require.Equal(t, int64(12), claims.UserID)
	require.Equal(t, "seller@example.com", claims.Email)
	require.Equal(t, RoleSeller, claims.Role)
}

func TestTokenManager_Rejects(t *testing.T) {
	m, err := NewTokenManager("access-secret", time.Minute)
	require.NoError(t, err)

	other, err := NewTokenManager("other-secret", time.Minute)
	require.NoError(t, err)

	foreign, err := other.Generate(1, "", RoleBuyer)
	require.NoError(t, err)

	_, err = m.Validate(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenManager("access-secret", -time.Minute)
	require.NoError(t, err)
	stale, err := expired.Generate(1, "", RoleBuyer)
	require.NoError(t, err)

	_, err = m.Validate(stale)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_UnknownRole(t *testing.T) {
	claims := Claims{
		UserID: 5,
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	require.NoError(t, err)

	m, err := NewTokenManager("s", time.Minute)
	require.NoError(t, err)

	_, err = m.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManager_EmptySecret(t *testing.T) {
	_, err := NewTokenManager("", time.Minute)
	require.ErrorIs(t, err, ErrEmptySecret)
}
