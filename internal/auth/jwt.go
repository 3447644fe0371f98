// Package auth validates session tokens for citizens and personnel. Token
// claims only establish identity; authorization decisions always re-derive
// the responder's affiliation from the directory record.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"emergency-response/internal/config"
)

// Token kinds carried in the claims.
const (
	KindPersonnel = "personnel"
	KindUser      = "user"
)

// Claims are the session token claims. Subject holds the personnel or user id.
type Claims struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Manager issues and validates session tokens.
type Manager struct {
	config config.AuthConfig
}

// NewManager creates a token manager.
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{config: cfg}
}

// GeneratePersonnelToken issues a token for a responder session.
func (m *Manager) GeneratePersonnelToken(personnelID, name string) (string, error) {
	return m.generate(KindPersonnel, personnelID, name)
}

// GenerateUserToken issues a token for a citizen session.
func (m *Manager) GenerateUserToken(userID, name string) (string, error) {
	return m.generate(KindUser, userID, name)
}

func (m *Manager) generate(kind, subject, name string) (string, error) {
	now := time.Now()

	claims := &Claims{
		Kind: kind,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses and verifies a token string.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
