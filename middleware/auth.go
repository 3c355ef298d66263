package middleware

import (
	"net/http"
	"strings"

	"roadalert/models"

	"github.com/gin-gonic/gin"
)

// TokenValidator resolves a bearer token to a user ID. Implemented by
// database.AuthService.
type TokenValidator interface {
	ValidateToken(token string) (int64, error)
}

// Auth validates the Authorization header and puts the resolved user
// ID into the gin context under "user_id". Handlers never see raw
// credentials.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				models.ErrorResponse{Message: "access token required"})
			return
		}

		tokenString := extractToken(authHeader)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				models.ErrorResponse{Message: "invalid authorization format"})
			return
		}

		userID, err := validator.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				models.ErrorResponse{Message: "invalid or expired token"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// UserID fetches the authenticated caller set by Auth.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
