package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware.
const (
	ContextPersonnelID = "personnel_id"
	ContextUserID      = "user_id"
)

// PersonnelAuth requires a valid personnel token and stores the personnel id
// on the request context.
func (m *Manager) PersonnelAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.claimsFromRequest(c)
		if !ok || claims.Kind != KindPersonnel {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "personnel token required"})
			return
		}

		c.Set(ContextPersonnelID, claims.Subject)
		c.Next()
	}
}

// UserAuth requires a valid citizen token and stores the user id on the
// request context.
func (m *Manager) UserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.claimsFromRequest(c)
		if !ok || claims.Kind != KindUser {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user token required"})
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}

// OptionalUserAuth stores the user id when a valid citizen token is present
// and lets the request through either way. Anonymous call creation relies on
// this.
func (m *Manager) OptionalUserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := m.claimsFromRequest(c); ok && claims.Kind == KindUser {
			c.Set(ContextUserID, claims.Subject)
		}
		c.Next()
	}
}

// claimsFromRequest extracts and validates the bearer token, falling back to
// the token query parameter for WebSocket upgrades where headers are awkward
// for browser clients.
func (m *Manager) claimsFromRequest(c *gin.Context) (*Claims, bool) {
	tokenString := ""

	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	} else {
		tokenString = c.Query("token")
	}

	if tokenString == "" {
		return nil, false
	}

	claims, err := m.Validate(tokenString)
	if err != nil {
		return nil, false
	}

	return claims, true
}
