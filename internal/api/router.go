// Package api builds the public HTTP surface consumed by the chat
// presentation layer.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/api/handler"
	"github.com/ringside/sidebet/internal/api/middleware"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/repository"
	"github.com/ringside/sidebet/internal/service"
	"github.com/ringside/sidebet/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	FightSvc *service.FightService
	DealSvc  *service.DealService
	UserRepo *repository.UserRepository
	Hub      *ws.Hub
	Cfg      *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	fightH := handler.NewFightHandler(deps.FightSvc, deps.DealSvc, deps.Cfg)
	dealH := handler.NewDealHandler(deps.DealSvc)

	// ── Middleware ────────────────────────────────────────────────────────────
	botAuth := middleware.BotAuthMiddleware(deps.Cfg, deps.UserRepo)
	readRL := middleware.RateLimitMiddleware(30)
	writeRL := middleware.RateLimitMiddleware(10) // intent creation hits the provider

	api := r.Group("/api")
	api.Use(botAuth)
	{
		fights := api.Group("/fights")
		fights.Use(readRL)
		{
			fights.GET("", fightH.ListFights)
			fights.GET("/:id", fightH.GetFight)
			fights.GET("/:id/deals", fightH.ListOpenDeals)
		}

		api.GET("/amounts", readRL, fightH.Amounts)

		deals := api.Group("/deals")
		{
			deals.POST("/new", writeRL, dealH.CreateNewIntent)
			deals.POST("/:id/match", writeRL, dealH.CreateMatchIntent)
			deals.GET("/my/active", readRL, dealH.ListMyActive)
			deals.GET("/my/shareable", readRL, dealH.ListMyShareable)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}
