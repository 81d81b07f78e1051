package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/auth"
	"egharbari/api/internal/models"
	"egharbari/api/internal/utils"
)

// ContextKeyActor holds the authenticated models.Actor in the Gin context.
const ContextKeyActor = "actor"

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.StatusCode(err), gin.H{
		"error": apperrors.PublicMessage(err),
		"code":  apperrors.KindOf(err),
	})
}

// bearerActor extracts and validates the bearer token. ok is false when no
// Authorization header was sent.
func bearerActor(c *gin.Context, jwtSecret string) (actor models.Actor, ok bool, err error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return models.Actor{}, false, nil
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return models.Actor{}, true, apperrors.Unauthenticated("Authorization header format must be Bearer {token}")
	}

	claims, err := auth.ValidateJWT(parts[1], jwtSecret)
	if err != nil {
		return models.Actor{}, true, apperrors.Unauthenticated("invalid or expired token")
	}
	actor, err = claims.Actor()
	if err != nil {
		return models.Actor{}, true, apperrors.Unauthenticated("invalid or expired token")
	}
	return actor, true, nil
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, present, err := bearerActor(c, jwtSecret)
		if !present {
			abortWithError(c, apperrors.Unauthenticated("Authorization header required"))
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(ContextKeyActor, actor)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the actor when a valid token is sent and lets
// anonymous requests through. A bad token is treated as anonymous.
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, present, err := bearerActor(c, jwtSecret)
		if present && err == nil {
			c.Set(ContextKeyActor, actor)
		} else if err != nil {
			utils.Logger.WithError(err).Debug("Ignoring invalid token on optional-auth route")
		}
		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
// Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			abortWithError(c, apperrors.Unauthenticated("Authorization header required"))
			return
		}
		if !actor.IsAdmin() {
			abortWithError(c, apperrors.Forbidden("Administrator privileges required"))
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the actor set by the auth middlewares.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get(ContextKeyActor)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
