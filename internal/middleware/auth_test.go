package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", handler, func(c *gin.Context) {
		c.String(http.StatusOK, ActorID(c))
	})
	return r
}

func do(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequirePermission(t *testing.T) {
	auth := NewAuth(testSecret)
	r := newRouter(auth.RequirePermission(PermPaymentsReview))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", "u1", RoleAdmin), http.StatusUnauthorized},
		{"no role", "Bearer " + signToken(t, testSecret, "u1", ""), http.StatusForbidden},
		{"staff lacks review", "Bearer " + signToken(t, testSecret, "u1", RoleStaff), http.StatusForbidden},
		{"accountant reviews", "Bearer " + signToken(t, testSecret, "u1", RoleAccountant), http.StatusOK},
		{"admin passes", "Bearer " + signToken(t, testSecret, "u1", RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequirePermissionSetsActor(t *testing.T) {
	auth := NewAuth(testSecret)
	r := newRouter(auth.RequirePermission(PermInvoicesRead))

	w := do(r, "Bearer "+signToken(t, testSecret, "staff-42", RoleStaff))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "staff-42", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	auth := NewAuth(testSecret)
	r := newRouter(auth.RequireRole(RoleAdmin))

	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+signToken(t, testSecret, "u1", RoleAccountant)).Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+signToken(t, testSecret, "u1", RoleAdmin)).Code)
}

func TestRequirePermissionReadsCookie(t *testing.T) {
	auth := NewAuth(testSecret)
	r := newRouter(auth.RequirePermission(PermInvoicesRead))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: signToken(t, testSecret, "u7", RoleStaff)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u7", w.Body.String())
}

func TestRoleHasPermission(t *testing.T) {
	assert.True(t, RoleHasPermission(RoleAdmin, PermInvoicesDelete))
	assert.False(t, RoleHasPermission(RoleAccountant, PermInvoicesDelete))
	assert.True(t, RoleHasPermission(RoleAccountant, PermFinanceRead))
	assert.False(t, RoleHasPermission(RoleStaff, PermFinanceRead))
	assert.False(t, RoleHasPermission("guest", PermInvoicesRead))
}
