package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesync/backend/internal/infrastructure/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                "test-secret-key-that-is-long-enough-0",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "storesync-backend",
	}
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	token, expiresAt, err := svc.IssueToken("ops@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Operator)
	assert.Equal(t, "storesync-backend", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenExpiration = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.IssueToken("ops@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	other := NewJWTService(config.JWTConfig{
		Secret:                "another-secret-key-that-is-long-enough",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "storesync-backend",
	})

	token, _, err := other.IssueToken("ops@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Issuer = "someone-else"
	other := NewJWTService(cfg)
	svc := NewJWTService(testJWTConfig())

	token, _, err := other.IssueToken("ops@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsUnsignedToken(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storesync-backend",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Operator: "ops@example.com",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsEmptyOperator(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	token, _, err := svc.IssueToken("")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
