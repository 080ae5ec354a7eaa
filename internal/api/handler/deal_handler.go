package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/api/middleware"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/service"
)

// DealHandler serves wager intents and deal listings.
type DealHandler struct {
	dealSvc *service.DealService
}

// NewDealHandler creates a DealHandler.
func NewDealHandler(dealSvc *service.DealService) *DealHandler {
	return &DealHandler{dealSvc: dealSvc}
}

// CreateNewIntent godoc
// POST /api/deals/new
// Body: {"fight_id":12,"side":1,"amount_cents":1000}
// Returns the provider pay URL. No deal row exists until the payment lands.
func (h *DealHandler) CreateNewIntent(c *gin.Context) {
	user := middleware.GetUser(c)

	var body struct {
		FightID     int64 `json:"fight_id"     binding:"required"`
		Side        int   `json:"side"         binding:"required"`
		AmountCents int64 `json:"amount_cents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	ticket, err := h.dealSvc.CreateNewIntent(c.Request.Context(), &domain.NewIntentRequest{
		FightID:     body.FightID,
		Side:        domain.Side(body.Side),
		AmountCents: body.AmountCents,
		UserID:      user.ID,
		TgUserID:    user.TgUserID,
	})
	if err != nil {
		respondIntentError(c, err, "could not create bet")
		return
	}
	respondSuccess(c, http.StatusCreated, ticket)
}

// CreateMatchIntent godoc
// POST /api/deals/:id/match
// Bills the caller the creator's exact stake for the opposite side.
func (h *DealHandler) CreateMatchIntent(c *gin.Context) {
	user := middleware.GetUser(c)

	dealID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "deal id must be numeric")
		return
	}

	ticket, err := h.dealSvc.CreateMatchIntent(c.Request.Context(), &domain.MatchIntentRequest{
		DealID:   dealID,
		UserID:   user.ID,
		TgUserID: user.TgUserID,
	})
	if err != nil {
		respondIntentError(c, err, "could not accept bet")
		return
	}
	respondSuccess(c, http.StatusCreated, ticket)
}

// ListMyActive godoc
// GET /api/deals/my/active
func (h *DealHandler) ListMyActive(c *gin.Context) {
	user := middleware.GetUser(c)

	deals, err := h.dealSvc.ListMyActiveDeals(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load deals")
		return
	}
	respondList(c, deals, len(deals))
}

// ListMyShareable godoc
// GET /api/deals/my/shareable
func (h *DealHandler) ListMyShareable(c *gin.Context) {
	user := middleware.GetUser(c)

	deals, err := h.dealSvc.ListMyShareableDeals(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load deals")
		return
	}
	respondList(c, deals, len(deals))
}

// respondIntentError maps intent-creation failures onto the structured
// result the chat surface distinguishes: invalid input, conflict ("already
// taken"), provider unavailable, internal.
func respondIntentError(c *gin.Context, err error, fallback string) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case errors.Is(err, domain.ErrSelfMatch):
		respondError(c, http.StatusConflict, "ERR_SELF_MATCH", err.Error())
	case errors.Is(err, domain.ErrDealNotOpen):
		respondError(c, http.StatusConflict, "ERR_ALREADY_TAKEN", err.Error())
	case errors.Is(err, domain.ErrFightClosed):
		respondError(c, http.StatusConflict, "ERR_FIGHT_CLOSED", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		respondError(c, http.StatusServiceUnavailable, "ERR_PROVIDER_UNAVAILABLE",
			"payment provider unavailable — try again in a minute")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}
