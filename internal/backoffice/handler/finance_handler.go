package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ringside/sidebet/internal/repository"
)

// FinanceHandler serves audited money-movement reports from transfer_log.
type FinanceHandler struct {
	transferRepo *repository.TransferRepository
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(transferRepo *repository.TransferRepository) *FinanceHandler {
	return &FinanceHandler{transferRepo: transferRepo}
}

// GetReport godoc
// GET /admin/finance?from=2026-01-01&to=2026-02-01
// Defaults to the last 30 days when no range is given.
func (h *FinanceHandler) GetReport(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "to must be YYYY-MM-DD")
			return
		}
		to = t
	}

	report, err := h.transferRepo.GetFinanceReport(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not build report")
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
