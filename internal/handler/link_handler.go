package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SergeiKhy/shortlink/internal/captcha"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// qrSize сторона PNG с QR-кодом в пикселях
const qrSize = 256

type LinkHandler struct {
	service  service.LinkService
	verifier captcha.Verifier // nil: проверка на бота выключена
	baseURL  string           // пустой: строится из запроса
	proxies  proxySet         // им разрешено задавать X-Forwarded-Proto
	static   *StaticFiles
	logger   *zap.Logger
}

func NewLinkHandler(service service.LinkService, verifier captcha.Verifier, baseURL string, trustedProxies []string, static *StaticFiles, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service:  service,
		verifier: verifier,
		baseURL:  strings.TrimRight(baseURL, "/"),
		proxies:  newProxySet(trustedProxies),
		static:   static,
		logger:   logger,
	}
}

type ShortenRequest struct {
	URL            string `json:"url"`
	Code           string `json:"code,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type ShortenResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"shortUrl"`
	ID       int64  `json:"id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Shorten godoc
// @Summary Create a short link
// @Description Create a new shortened URL, optionally with a custom code
// @Tags links
// @Accept json
// @Produce json
// @Param request body ShortenRequest true "Shorten request"
// @Success 201 {object} ShortenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/shorten [post]
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Message: "Expected JSON object {url, code?}",
		})
		return
	}

	// Сначала URL, потом проверка на бота, потом код и хранилище
	if _, err := service.ValidateURL(req.URL); err != nil {
		h.writeError(c, err)
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(c.Request.Context(), req.RecaptchaToken, c.ClientIP()); err != nil {
			h.writeError(c, err)
			return
		}
	}

	link, err := h.service.Shorten(c.Request.Context(), &models.ShortenInput{
		URL:  req.URL,
		Code: req.Code,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ShortenResponse{
		Code:     link.Code,
		ShortURL: h.shortURL(c, link.Code),
		ID:       link.ID,
	})
}

// Check godoc
// @Summary Check code availability
// @Description Report whether a custom code can be claimed
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} models.Availability
// @Failure 429 {object} ErrorResponse
// @Router /api/check/{code} [get]
func (h *LinkHandler) Check(c *gin.Context) {
	availability, err := h.service.CheckAvailability(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Record a click and redirect to the original URL
// @Tags links
// @Param code path string true "Short code"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	// Файлы фронтенда в корне (app.js, favicon.ico) не пересекаются с кодами
	if h.static != nil && h.static.TryServe(c, code) {
		return
	}

	visit := models.NewVisit(c.ClientIP(), c.Request.Referer(), c.Request.UserAgent())
	link, err := h.service.Visit(c.Request.Context(), code, visit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Каждый переход должен доходить до сервера, иначе клик не запишется
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, link.OriginalURL)
}

// GetStats godoc
// @Summary Get click statistics for a short link
// @Description Total clicks and the 100 most recent click events, newest first
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} models.Stats
// @Failure 404 {object} ErrorResponse
// @Router /api/stats/{code} [get]
func (h *LinkHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// QRCode godoc
// @Summary QR code for a short link
// @Tags links
// @Produce png
// @Param code path string true "Short code"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /api/qr/{code} [get]
func (h *LinkHandler) QRCode(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	png, err := qrcode.Encode(h.shortURL(c, link.Code), qrcode.Medium, qrSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// shortURL строит публичную ссылку: BASE_URL или схема и хост запроса
func (h *LinkHandler) shortURL(c *gin.Context, code string) string {
	if h.baseURL != "" {
		return h.baseURL + "/" + code
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" && h.proxies.trusted(c) {
		switch p := strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0])); p {
		case "http", "https":
			scheme = p
		}
	}

	return scheme + "://" + c.Request.Host + "/" + code
}

// writeError переводит ошибки сервиса в HTTP ответ. Детали внутренних
// ошибок остаются в логах и не уходят клиенту.
func (h *LinkHandler) writeError(c *gin.Context, err error) {
	status, resp := errorResponse(err)

	switch {
	case errors.Is(err, service.ErrGenerationExhausted):
		h.logger.Error("Code space exhausted", zap.Error(err))
	case errors.Is(err, captcha.ErrVerifierUnavailable):
		h.logger.Error("Bot check unavailable", zap.Error(err))
	case status >= http.StatusInternalServerError:
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	default:
		h.logger.Debug("Request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid url", Message: "URL must be an absolute http(s) address"}
	case errors.Is(err, service.ErrProtocolNotAllowed):
		return http.StatusBadRequest, ErrorResponse{Error: "protocol not allowed", Message: "Only http and https URLs can be shortened"}
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid code format", Message: "allowed: A-Z a-z 0-9 - _ ; length 4-64"}
	case errors.Is(err, service.ErrReservedCode):
		return http.StatusBadRequest, ErrorResponse{Error: "reserved code", Message: "This code is used by the service itself"}
	case errors.Is(err, service.ErrCodeTaken):
		return http.StatusConflict, ErrorResponse{Error: "code already in use"}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not found"}
	case errors.Is(err, captcha.ErrTokenMissing):
		return http.StatusBadRequest, ErrorResponse{Error: "recaptcha token required"}
	case errors.Is(err, captcha.ErrVerificationFailed):
		return http.StatusBadRequest, ErrorResponse{Error: "recaptcha verification failed"}
	case errors.Is(err, captcha.ErrVerifierUnavailable):
		return http.StatusBadGateway, ErrorResponse{Error: "recaptcha verification error"}
	case errors.Is(err, service.ErrGenerationExhausted):
		return http.StatusInternalServerError, ErrorResponse{Error: "could not generate code"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}
