package credential

import (
	"errors"
	"net/http"

	"calpay/internal/api"
	"calpay/internal/auth"
	"calpay/internal/logger"

	"github.com/gin-gonic/gin"
)

type SaveKeysRequest struct {
	Enabled bool    `json:"enabled"`
	Keys    AppKeys `json:"keys"`
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// GetKeys returns the platform Stripe configuration with secrets masked.
func (h *Handler) GetKeys(c *gin.Context) {
	cfg, err := h.repo.GetAppConfig(c.Request.Context())
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusOK, AppConfig{Slug: AppSlug})
		return
	}
	if err != nil {
		logger.Error("failed to load app config", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to load configuration"})
		return
	}

	cfg.Keys = cfg.Keys.Masked()
	c.JSON(http.StatusOK, cfg)
}

// SaveKeys stores the platform configuration. Enabling it also gives the
// admin a credential row that points at it.
func (h *Handler) SaveKeys(c *gin.Context) {
	var req SaveKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := api.ValidateStruct(req.Keys); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	ctx := c.Request.Context()
	cfg := AppConfig{Slug: AppSlug, Enabled: req.Enabled, Keys: req.Keys}
	if err := h.repo.SaveAppConfig(ctx, cfg); err != nil {
		logger.Error("failed to save app config", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to save configuration"})
		return
	}

	if req.Enabled {
		if userID, ok := auth.GetUserID(c); ok {
			if err := h.repo.EnsureManualMarker(ctx, userID); err != nil {
				logger.Error("failed to create manual credential", "user_id", userID, "error", err)
			}
		}
	}

	logger.Info("stripe configuration saved", "enabled", req.Enabled)
	cfg.Keys = cfg.Keys.Masked()
	c.JSON(http.StatusOK, cfg)
}
