package middleware

import (
	"net/http"
	"strings"

	"example.com/storefront/services/orders/internal/models"
	"example.com/storefront/services/orders/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// UserContextKey is the gin context key holding the authenticated user
const UserContextKey = "auth_user"

// Auth validates the bearer token from the Authorization header and
// stores the resolved user in the request context
func Auth(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required", "code": "UNAUTHORIZED"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format. Expected: 'Bearer {token}'", "code": "UNAUTHORIZED"})
			c.Abort()
			return
		}

		user, err := users.GetByToken(c.Request.Context(), parts[1])
		if err != nil {
			log.Warn().Err(err).Msg("Invalid API token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "code": "UNAUTHORIZED"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// RequireAdmin rejects requests whose authenticated user is not an
// admin. The attempt is logged with the requester identity.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := GetUserFromContext(c)
		if err != nil || !user.Admin {
			if user != nil {
				log.Warn().Str("user_id", user.ID.String()).Str("email", user.Email).
					Str("path", c.Request.URL.Path).Msg("Non-admin attempted admin operation")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Admin access required", "code": "UNAUTHORIZED"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserFromContext retrieves the authenticated user from the context
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil, errors.New("user not found in context")
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil, errors.New("user in context has incorrect type")
	}
	return user, nil
}
