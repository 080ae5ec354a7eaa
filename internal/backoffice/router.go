// Package backoffice builds the admin HTTP surface: result recording,
// fight cancellation, and finance reporting. Access is limited to the chat
// ids in ADMIN_IDS, authenticated with short-lived JWT sessions.
package backoffice

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ringside/sidebet/internal/backoffice/handler"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/repository"
	"github.com/ringside/sidebet/internal/service"
)

// BackofficeDeps bundles every dependency needed to build the admin router.
type BackofficeDeps struct {
	FightSvc     *service.FightService
	TransferRepo *repository.TransferRepository
	Cfg          *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authH := handler.NewAuthHandler(deps.Cfg)
	fightH := handler.NewFightAdminHandler(deps.FightSvc)
	financeH := handler.NewFinanceHandler(deps.TransferRepo)

	admin := r.Group("/admin")
	{
		admin.POST("/login", authH.Login)

		authed := admin.Group("")
		authed.Use(adminJWTMiddleware(deps.Cfg))
		{
			authed.GET("/fights/pending", fightH.ListPending)
			authed.POST("/fights/:id/result", fightH.RecordResult)
			authed.POST("/fights/:id/cancel", fightH.CancelFight)
			authed.GET("/finance", financeH.GetReport)
		}
	}

	return r
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin JWT middleware
// ──────────────────────────────────────────────────────────────────────────────

// adminJWTMiddleware validates the Bearer token issued by /admin/login and
// re-checks that the subject is still in ADMIN_IDS (removal from the list
// revokes access without waiting for token expiry).
func adminJWTMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.Bot.Token)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrUnauthorized.Error(),
			})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrTokenInvalid.Error(),
			})
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrTokenInvalid.Error(),
			})
			return
		}
		sub, _ := claims.GetSubject()
		tgUserID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || !cfg.IsAdmin(tgUserID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": domain.ErrForbidden.Error(),
			})
			return
		}

		c.Set("adminTgID", tgUserID)
		c.Next()
	}
}
