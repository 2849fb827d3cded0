package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleStaff      = "staff"
)

const (
	PermInvoicesRead   = "invoices.read"
	PermInvoicesWrite  = "invoices.write"
	PermInvoicesDelete = "invoices.delete"
	PermPaymentsRead   = "payments.read"
	PermPaymentsReview = "payments.review"
	PermExpensesRead   = "expenses.read"
	PermExpensesWrite  = "expenses.write"
	PermFinanceRead    = "finance.read"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
)

// rolePermissions is the static grant table. Admin passes every check.
var rolePermissions = map[string][]string{
	RoleAccountant: {
		PermInvoicesRead, PermInvoicesWrite,
		PermPaymentsRead, PermPaymentsReview,
		PermExpensesRead, PermExpensesWrite,
		PermFinanceRead,
	},
	RoleStaff: {
		PermInvoicesRead, PermInvoicesWrite,
		PermPaymentsRead,
	},
}

// RoleHasPermission reports whether role is granted perm.
func RoleHasPermission(role, perm string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// ParseToken verifies an HMAC-signed JWT and returns its claims.
func ParseToken(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Auth validates staff tokens issued by the external identity service.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// authenticate parses the token from the access_token cookie or the Authorization
// header and stores the subject and role on the context. It aborts on failure.
func (a *Auth) authenticate(c *gin.Context) (string, bool) {
	// Try cookie first, fallback to Authorization header
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return "", false
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return "", false
		}
		tokenString = parts[1]
	}

	claims, err := ParseToken(tokenString, a.secret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return "", false
	}

	userRole, ok := claims["role"].(string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
		return "", false
	}

	subject, _ := claims.GetSubject()
	c.Set(ctxUserID, subject)
	c.Set(ctxUserRole, userRole)
	return userRole, true
}

// RequireRole Middleware validates the JWT token and checks if the user's role exists in the allowedRoles list
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, ok := a.authenticate(c)
		if !ok {
			return
		}

		for _, role := range allowedRoles {
			if userRole == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// RequirePermission validates the JWT and checks that the role holds every required permission.
func (a *Auth) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, ok := a.authenticate(c)
		if !ok {
			return
		}

		for _, required := range requiredPerms {
			if !RoleHasPermission(userRole, required) {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, fmt.Sprintf("Access denied: missing permission '%s'", required)))
				return
			}
		}

		c.Next()
	}
}

// ActorID returns the authenticated staff member's subject, or "" on public routes.
func ActorID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
