package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateToken("billing-service", []string{ScopeSend})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "billing-service", claims.Subject)
	assert.True(t, claims.HasScope(ScopeSend))
	assert.False(t, claims.HasScope(ScopeTemplates))
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.GenerateToken("billing-service", []string{ScopeSend})
	require.NoError(t, err)

	other := NewTokenService("other-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute)
	token, err := svc.GenerateToken("billing-service", nil)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
