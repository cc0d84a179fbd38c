package handler

import (
	"github.com/SergeiKhy/shortlink/internal/captcha"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig собирает всё, что нужно роутеру
type RouterConfig struct {
	LinkService      service.LinkService
	ShortenLimiter   middleware.Limiter
	CheckLimiter     middleware.Limiter
	Verifier         captcha.Verifier // nil: без проверки на бота
	AdminMiddleware  gin.HandlerFunc
	BaseURL          string
	PublicDir        string
	TrustedProxies   []string
	RecaptchaSiteKey string
	Logger           *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("Invalid trusted proxies, X-Forwarded-For is ignored", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	static := NewStaticFiles(cfg.PublicDir)

	// Инициализация обработчиков
	linkHandler := NewLinkHandler(cfg.LinkService, cfg.Verifier, cfg.BaseURL, cfg.TrustedProxies, static, logger)
	adminHandler := NewAdminHandler(cfg.LinkService, logger)

	router.GET("/health", HealthCheck)

	api := router.Group("/api")
	{
		shorten := []gin.HandlerFunc{linkHandler.Shorten}
		if cfg.ShortenLimiter != nil {
			shorten = append([]gin.HandlerFunc{middleware.RateLimit(cfg.ShortenLimiter, logger)}, shorten...)
		}
		api.POST("/shorten", shorten...)

		check := []gin.HandlerFunc{linkHandler.Check}
		if cfg.CheckLimiter != nil {
			check = append([]gin.HandlerFunc{middleware.RateLimit(cfg.CheckLimiter, logger)}, check...)
		}
		api.GET("/check/:code", check...)

		api.GET("/stats/:code", linkHandler.GetStats)
		api.GET("/qr/:code", linkHandler.QRCode)
		api.GET("/config", PublicConfig(cfg.RecaptchaSiteKey))

		adminMiddleware := cfg.AdminMiddleware
		if adminMiddleware == nil {
			adminMiddleware = middleware.RequireAdmin("", false)
		}
		admin := api.Group("/admin", adminMiddleware)
		admin.GET("/urls", adminHandler.ListURLs)
	}

	if static != nil {
		static.AddRoutes(router)
	}

	// Редирект (корневой путь)
	router.GET("/:code", linkHandler.Redirect)

	return router
}
