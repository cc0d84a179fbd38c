package handler

import (
	"net/http"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	service service.LinkService
	logger  *zap.Logger
}

func NewAdminHandler(service service.LinkService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{service: service, logger: logger}
}

type ListURLsResponse struct {
	URLs []models.ShortURL `json:"urls"`
}

// ListURLs godoc
// @Summary List all short links
// @Description Administrative listing, newest first
// @Tags admin
// @Produce json
// @Param X-Admin-Token header string true "Admin token"
// @Success 200 {object} ListURLsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/urls [get]
func (h *AdminHandler) ListURLs(c *gin.Context) {
	urls, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list urls", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, ListURLsResponse{URLs: urls})
}
