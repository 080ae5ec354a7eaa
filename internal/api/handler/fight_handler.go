package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/api/middleware"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/service"
)

// FightHandler serves the fight catalog to the chat surface.
type FightHandler struct {
	fightSvc *service.FightService
	dealSvc  *service.DealService
	cfg      *config.Config
}

// NewFightHandler creates a FightHandler.
func NewFightHandler(fightSvc *service.FightService, dealSvc *service.DealService, cfg *config.Config) *FightHandler {
	return &FightHandler{fightSvc: fightSvc, dealSvc: dealSvc, cfg: cfg}
}

// ListFights godoc
// GET /api/fights
// Returns fights that still accept bets, plus the menu artwork URLs the
// chat surface renders around them.
func (h *FightHandler) ListFights(c *gin.Context) {
	fights, err := h.fightSvc.ListUpcomingFights(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load fights")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    fights,
		"meta": gin.H{
			"count":                 len(fights),
			"main_menu_photo_url":   h.cfg.Bot.MainMenuPhotoURL,
			"events_menu_photo_url": h.cfg.Bot.EventsMenuPhotoURL,
		},
	})
}

// GetFight godoc
// GET /api/fights/:id
func (h *FightHandler) GetFight(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "fight id must be numeric")
		return
	}

	fight, err := h.fightSvc.GetFight(c.Request.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_FIGHT_NOT_FOUND", domain.ErrFightNotFound.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load fight")
		return
	}
	respondSuccess(c, http.StatusOK, fight)
}

// ListOpenDeals godoc
// GET /api/fights/:id/deals
// Open deals on the fight, excluding the caller's own.
func (h *FightHandler) ListOpenDeals(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "fight id must be numeric")
		return
	}
	user := middleware.GetUser(c)

	deals, err := h.dealSvc.ListOpenDeals(c.Request.Context(), id, user.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load deals")
		return
	}
	respondList(c, deals, len(deals))
}

// Amounts godoc
// GET /api/amounts
// The suggested stake ladder for the chat keyboard, in cents.
func (h *FightHandler) Amounts(c *gin.Context) {
	cents := make([]int64, len(h.cfg.Wager.AmountsUSDT))
	for i, usdt := range h.cfg.Wager.AmountsUSDT {
		cents[i] = usdt * 100
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"asset":         h.cfg.Crypto.DefaultAsset,
		"amounts_cents": cents,
	})
}
