package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Decision результат проверки лимита для одного запроса
type Decision struct {
	Allowed   bool
	Limit     int           // Лимит запросов за окно
	Remaining int           // Сколько запросов ещё можно сделать
	Reset     time.Duration // Через сколько лимит восстановится
}

// Limiter считает запросы по ключу (обычно IP клиента)
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	Limit           int           // Количество запросов за окно
	Window          time.Duration // Размер окна
	CleanupInterval time.Duration // Интервал очистки неактивных посетителей
}

// visitor представляет счётчик одного клиента в текущем окне
type visitor struct {
	limiter     *rate.Limiter
	windowStart time.Time
}

// RateLimiter ограничивает запросы в памяти процесса фиксированным окном,
// как и RedisLimiter: не больше Limit запросов за Window на клиента.
type RateLimiter struct {
	config   RateLimiterConfig
	visitors map[string]*visitor // IP -> visitor
	mu       sync.Mutex
	stop     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewRateLimiter создаёт новый rate limiter и запускает очистку посетителей
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Limit < 1 {
		config.Limit = 1
	}
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
		now:      time.Now,
	}

	// Запускаем горутину для периодической очистки
	go rl.cleanupLoop()

	return rl
}

// Stop останавливает горутину очистки
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanupLoop периодически удаляет неактивных посетителей
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup удаляет посетителей, чьё окно уже закончилось
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	current := rl.now().Truncate(rl.config.Window)
	for ip, v := range rl.visitors {
		if v.windowStart.Before(current) {
			delete(rl.visitors, ip)
		}
	}
}

// getLimiter возвращает счётчик ключа для окна windowStart.
// Ведро без пополнения (rate 0): в новом окне создаётся заново.
func (rl *RateLimiter) getLimiter(key string, windowStart time.Time) *rate.Limiter {
	if v, exists := rl.visitors[key]; exists && v.windowStart.Equal(windowStart) {
		return v.limiter
	}

	limiter := rate.NewLimiter(0, rl.config.Limit)
	rl.visitors[key] = &visitor{
		limiter:     limiter,
		windowStart: windowStart,
	}

	return limiter
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Truncate(rl.config.Window)
	limiter := rl.getLimiter(key, windowStart)

	// При rate 0 каждый разрешённый запрос уменьшает Burst
	allowed := limiter.AllowN(now, 1)

	return Decision{
		Allowed:   allowed,
		Limit:     rl.config.Limit,
		Remaining: max(0, limiter.Burst()),
		Reset:     windowStart.Add(rl.config.Window).Sub(now),
	}, nil
}

// RateLimit возвращает Gin middleware, ограничивающий запросы по IP клиента.
// Ошибка хранилища лимитов не блокирует запрос, а только логируется.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitWithKey(limiter, logger, nil)
}

// RateLimitWithKey возвращает rate limiter с кастомным ключом
func RateLimitWithKey(limiter Limiter, logger *zap.Logger, getKey func(*gin.Context) string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		var key string
		if getKey != nil {
			key = getKey(c)
		}
		if key == "" {
			key = c.ClientIP()
		}

		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Error("Rate limiter unavailable, request allowed",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		reset := strconv.Itoa(ceilSeconds(decision.Reset))
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("RateLimit-Reset", reset)

		if !decision.Allowed {
			c.Header("Retry-After", reset)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
