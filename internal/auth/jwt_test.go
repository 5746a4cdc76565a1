package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_signAndVerify(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-characters", time.Hour)
	userID := uuid.New()

	token, err := svc.SignAccessToken(userID, "a@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestJWT_rejectsWrongSecret(t *testing.T) {
	svc := NewJWTService("secret-one", time.Hour)
	other := NewJWTService("secret-two", time.Hour)

	token, err := svc.SignAccessToken(uuid.New(), "a@example.com")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWT_rejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	token, err := svc.SignAccessToken(uuid.New(), "a@example.com")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWT_rejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	_, err := svc.VerifyToken("not.a.token")
	assert.Error(t, err)
}
