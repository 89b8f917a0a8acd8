package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"task-audit/internal/model"
	"task-audit/internal/service"
)

const actorKey = "actor"

// AuthMiddleware resolves the bearer token to an active account and stores it
// on the context.
func AuthMiddleware(tokens *TokenManager, users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid authorization format")
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		user, err := users.Get(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				abortWithError(c, http.StatusUnauthorized, "unauthorized", "account no longer exists")
				return
			}
			respondError(c, err)
			return
		}
		if !user.IsActive {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", service.ErrUserInactive.Error())
			return
		}

		c.Set(actorKey, user)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *model.User {
	value, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	user, _ := value.(*model.User)
	return user
}
