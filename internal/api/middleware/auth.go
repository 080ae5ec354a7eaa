package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/repository"
)

// ContextKey constants for gin.Context values set by middleware.
const (
	CtxUser = "user"
)

// ──────────────────────────────────────────────────────────────────────────────
// BotAuthMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// BotAuthMiddleware authenticates the chat presentation adapter. The
// adapter proves itself with the shared bot token and names the acting chat
// user per request; the matching app_user row is created lazily on first
// contact and stored in the gin context.
//
// Headers:
//
//	X-Bot-Token:   shared secret (equals BOT_TOKEN)
//	X-Tg-User-Id:  numeric chat id of the acting user
//	X-Tg-Username: optional display name, refreshed on every call
func BotAuthMiddleware(cfg *config.Config, userRepo *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Bot-Token") != cfg.Bot.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrUnauthorized.Error(),
			})
			return
		}

		tgUserID, err := strconv.ParseInt(c.GetHeader("X-Tg-User-Id"), 10, 64)
		if err != nil || tgUserID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-Tg-User-Id header must be a chat id",
			})
			return
		}

		user, err := userRepo.GetOrCreateByTgID(c.Request.Context(), tgUserID, c.GetHeader("X-Tg-Username"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "could not resolve user",
			})
			return
		}

		c.Set(CtxUser, user)
		c.Next()
	}
}

// GetUser retrieves the acting user from the gin context.
// Returns nil if the middleware was not applied.
func GetUser(c *gin.Context) *domain.User {
	v, exists := c.Get(CtxUser)
	if !exists {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}
