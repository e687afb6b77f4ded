package auth

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const claimsKey = "claims"

// Middleware handles authentication for protected routes
type Middleware struct {
	service *Service
	logger  zerolog.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{
		service: service,
		logger:  zerolog.New(os.Stdout).With().Timestamp().Str("component", "auth").Logger(),
	}
}

// Required enforces a valid bearer token
func (m *Middleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.authenticate(c) {
			c.Next()
		}
	}
}

// RoleRequired enforces a valid token carrying one of roles
func (m *Middleware) RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}

		claims, _ := GetClaims(c)
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}

// authenticate validates the bearer token and stores its claims, aborting on failure
func (m *Middleware) authenticate(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		c.Abort()
		return false
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
		c.Abort()
		return false
	}

	claims, err := m.service.ValidateToken(tokenString)
	if err != nil {
		m.logger.Warn().Err(err).Str("ip", c.ClientIP()).Msg("Invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		c.Abort()
		return false
	}

	c.Set(claimsKey, claims)
	return true
}

// GetClaims returns the authenticated claims from context
func GetClaims(c *gin.Context) (*Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*Claims)
	return claims, ok
}

// GetSubject returns the authenticated subject from context
func GetSubject(c *gin.Context) (string, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
