package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-response/internal/config"
)

func testManager() *Manager {
	return NewManager(config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenDuration: time.Hour,
		Issuer:        "emergency-response",
	})
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager()

	t.Run("Personnel Token", func(t *testing.T) {
		token, err := m.GeneratePersonnelToken("personnel-1", "Officer Mensah")
		require.NoError(t, err)

		claims, err := m.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, KindPersonnel, claims.Kind)
		assert.Equal(t, "personnel-1", claims.Subject)
		assert.Equal(t, "Officer Mensah", claims.Name)
		assert.Equal(t, "emergency-response", claims.Issuer)
	})

	t.Run("User Token", func(t *testing.T) {
		token, err := m.GenerateUserToken("user-1", "Ama")
		require.NoError(t, err)

		claims, err := m.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, KindUser, claims.Kind)
		assert.Equal(t, "user-1", claims.Subject)
	})

	t.Run("Wrong Secret Rejected", func(t *testing.T) {
		token, err := m.GeneratePersonnelToken("personnel-1", "Officer Mensah")
		require.NoError(t, err)

		other := NewManager(config.AuthConfig{
			JWTSecret:     "different-secret",
			TokenDuration: time.Hour,
			Issuer:        "emergency-response",
		})

		_, err = other.Validate(token)
		assert.Error(t, err)
	})

	t.Run("Garbage Rejected", func(t *testing.T) {
		_, err := m.Validate("not-a-token")
		assert.Error(t, err)
	})
}

func TestTokenExpiry(t *testing.T) {
	m := NewManager(config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenDuration: -time.Minute,
		Issuer:        "emergency-response",
	})

	token, err := m.GenerateUserToken("user-1", "Ama")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.Error(t, err, "expired token must not validate")
}
