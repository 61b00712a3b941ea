package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"calpay/internal/api"
)

const (
	ctxUserID = "user_id"
	ctxEmail  = "user_email"
	ctxRole   = "user_role"
)

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: msg})
}

func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || scheme != "Bearer" {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			unauthorized(c, "Token is empty")
			return
		}

		claims, err := ValidateToken(token, secret)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				unauthorized(c, "Token expired")
			} else {
				unauthorized(c, "Invalid or malformed token")
			}
			return
		}

		if claims.TokenType != tokenAccess {
			unauthorized(c, "Access token required")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxRole, claims.Role)

		c.Next()
	}
}

// RequireRole lets the request through when the token carries any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ctxRole)
		if !ok {
			unauthorized(c, "User role not found")
			return
		}

		roleStr, ok := role.(string)
		if !ok {
			unauthorized(c, "Invalid role type")
			return
		}

		for _, r := range roles {
			if r == roleStr {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, api.ErrorResponse{Error: "Insufficient permissions"})
	}
}

func GetUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
