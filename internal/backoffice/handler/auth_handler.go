package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
)

// AuthHandler issues admin session tokens. There is no password store: an
// admin proves control of the deployment by presenting the bot token, and
// membership in ADMIN_IDS decides who gets in.
type AuthHandler struct {
	cfg *config.Config
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Login godoc
// POST /admin/login
// Body: {"tg_user_id":111,"bot_token":"..."}
func (h *AuthHandler) Login(c *gin.Context) {
	var body struct {
		TgUserID int64  `json:"tg_user_id" binding:"required"`
		BotToken string `json:"bot_token"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if body.BotToken != h.cfg.Bot.Token || !h.cfg.IsAdmin(body.TgUserID) {
		respondError(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", domain.ErrUnauthorized.Error())
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(body.TgUserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.Bot.AdminTokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(h.cfg.Bot.Token))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not sign token")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": claims.ExpiresAt.Time,
	})
}
