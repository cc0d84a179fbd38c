package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "url-shortener",
	})
}

type ConfigResponse struct {
	RecaptchaSiteKey *string `json:"recaptchaSiteKey"`
}

// PublicConfig отдаёт фронтенду безопасные настройки (site key reCAPTCHA)
func PublicConfig(recaptchaSiteKey string) gin.HandlerFunc {
	resp := ConfigResponse{}
	if recaptchaSiteKey != "" {
		resp.RecaptchaSiteKey = &recaptchaSiteKey
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, resp)
	}
}
