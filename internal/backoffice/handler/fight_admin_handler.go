package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/service"
)

// FightAdminHandler serves result recording and cancellation.
type FightAdminHandler struct {
	fightSvc *service.FightService
}

// NewFightAdminHandler creates a FightAdminHandler.
func NewFightAdminHandler(fightSvc *service.FightService) *FightAdminHandler {
	return &FightAdminHandler{fightSvc: fightSvc}
}

// ListPending godoc
// GET /admin/fights/pending
// Fights that started a while ago and still have no recorded winner.
func (h *FightAdminHandler) ListPending(c *gin.Context) {
	fights, err := h.fightSvc.ListPendingResults(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load fights")
		return
	}
	respondSuccess(c, http.StatusOK, fights)
}

// RecordResult godoc
// POST /admin/fights/:id/result
// Body: {"winner":1}
// Settlement pays the recorded winner on its next tick.
func (h *FightAdminHandler) RecordResult(c *gin.Context) {
	fightID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "fight id must be numeric")
		return
	}

	var body struct {
		Winner int `json:"winner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	err = h.fightSvc.RecordResult(c.Request.Context(), fightID, domain.Side(body.Winner))
	switch {
	case err == nil:
		respondSuccess(c, http.StatusOK, gin.H{"fight_id": fightID, "winner": body.Winner})
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_WINNER", domain.ErrInvalidWinner.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_FIGHT_NOT_FOUND",
			"fight not found or result already recorded")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not record result")
	}
}

// CancelFight godoc
// POST /admin/fights/:id/cancel
// All escrowed deals on the fight are refunded by settlement.
func (h *FightAdminHandler) CancelFight(c *gin.Context) {
	fightID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "fight id must be numeric")
		return
	}

	err = h.fightSvc.CancelFight(c.Request.Context(), fightID)
	switch {
	case err == nil:
		respondSuccess(c, http.StatusOK, gin.H{"fight_id": fightID, "status": "canceled"})
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_FIGHT_NOT_FOUND",
			"fight not found or already finished")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not cancel fight")
	}
}
