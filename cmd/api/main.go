package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/shortlink/internal/captcha"
	"github.com/SergeiKhy/shortlink/internal/config"
	"github.com/SergeiKhy/shortlink/internal/handler"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := newLogger(cfg.App)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Хранилище: PostgreSQL или встроенный SQLite
	urlRepo, closeStore, err := openStore(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	// Инициализация сервиса
	linkService := service.NewLinkService(urlRepo, service.NewRandomCodeGenerator(service.CodeLength), logger)

	// Лимиты: общие через Redis, иначе в памяти процесса
	shortenLimiter, checkLimiter, closeLimiters := newLimiters(cfg, logger)
	defer closeLimiters()

	var verifier captcha.Verifier
	if cfg.Recaptcha.Enabled() {
		verifier = captcha.NewRecaptchaVerifier(cfg.Recaptcha.Secret, cfg.Recaptcha.MinScore)
		logger.Info("reCAPTCHA verification enabled", zap.Float64("min_score", cfg.Recaptcha.MinScore))
	}

	if cfg.App.IsProduction() && cfg.App.BaseURL == "" {
		logger.Warn("BASE_URL is not set, short URLs use the request Host header")
	}

	if cfg.Auth.AdminToken == "" {
		logger.Info("Admin endpoints disabled: ADMIN_TOKEN is not set")
	}

	// Настройка роутера
	router := handler.NewRouter(handler.RouterConfig{
		LinkService:      linkService,
		ShortenLimiter:   shortenLimiter,
		CheckLimiter:     checkLimiter,
		Verifier:         verifier,
		AdminMiddleware:  middleware.RequireAdmin(cfg.Auth.AdminToken, !cfg.App.IsProduction()),
		BaseURL:          cfg.App.BaseURL,
		PublicDir:        cfg.App.PublicDir,
		TrustedProxies:   cfg.App.TrustedProxies,
		RecaptchaSiteKey: cfg.Recaptcha.SiteKey,
		Logger:           logger,
	})

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(app config.AppConfig) (*zap.Logger, error) {
	if app.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(cfg config.DBConfig, logger *zap.Logger) (repository.URLRepository, func(), error) {
	if cfg.Driver == config.DriverSQLite {
		db, err := repository.NewSQLiteDB(cfg.SQLitePath, cfg.QueryTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite", zap.String("path", cfg.SQLitePath))
		return repository.NewSQLiteURLRepository(db), func() { db.Close() }, nil
	}

	db, err := repository.NewPostgresDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int32("max_conns", cfg.MaxConns),
	)
	return repository.NewPostgresURLRepository(db), db.Close, nil
}

func newLimiters(cfg *config.Config, logger *zap.Logger) (shorten, check middleware.Limiter, closeFn func()) {
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err == nil {
			logger.Info("Connected to Redis, rate limits are shared")
			return middleware.NewRedisLimiter(redis.Client, "shorten", cfg.RateLimit.ShortenPerHour, cfg.RateLimit.Window),
				middleware.NewRedisLimiter(redis.Client, "check", cfg.RateLimit.CheckPerHour, cfg.RateLimit.Window),
				func() { redis.Close() }
		}
		logger.Warn("Redis unavailable, falling back to in-memory rate limits", zap.Error(err))
	}

	shortenRL := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Limit:  cfg.RateLimit.ShortenPerHour,
		Window: cfg.RateLimit.Window,
	})
	checkRL := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Limit:  cfg.RateLimit.CheckPerHour,
		Window: cfg.RateLimit.Window,
	})
	return shortenRL, checkRL, func() {
		shortenRL.Stop()
		checkRL.Stop()
	}
}
