package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	s := NewService("secret", time.Hour)

	token, err := s.IssueToken("bot", "admin")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bot", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestIssueEmptySubject(t *testing.T) {
	_, err := NewService("secret", time.Hour).IssueToken("", "")
	assert.Error(t, err)
}

func TestValidateExpired(t *testing.T) {
	s := NewService("secret", time.Hour)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := s.IssueToken("bot", "")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.ValidateToken(token)
	assert.True(t, errors.Is(err, ErrTokenExpired), "got %v", err)
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewService("one", time.Hour).IssueToken("bot", "")
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "bot",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewService("secret", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func newRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(s)

	router := gin.New()
	router.GET("/private", m.Required(), func(c *gin.Context) {
		subject, _ := GetSubject(c)
		c.String(http.StatusOK, subject)
	})
	router.GET("/admin", m.RoleRequired("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestMiddleware(t *testing.T) {
	s := NewService("secret", time.Hour)
	router := newRouter(s)

	userToken, err := s.IssueToken("alice", "user")
	require.NoError(t, err)
	adminToken, err := s.IssueToken("root", "admin")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/private", "", http.StatusUnauthorized},
		{"wrong scheme", "/private", "Token " + userToken, http.StatusUnauthorized},
		{"garbage token", "/private", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/private", "Bearer " + userToken, http.StatusOK},
		{"role missing", "/admin", "Bearer " + userToken, http.StatusForbidden},
		{"role present", "/admin", "Bearer " + adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMiddlewareSetsSubject(t *testing.T) {
	s := NewService("secret", time.Hour)
	token, err := s.IssueToken("alice", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter(s).ServeHTTP(w, req)

	assert.Equal(t, "alice", w.Body.String())
}
