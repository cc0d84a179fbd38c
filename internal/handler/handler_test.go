package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlink/internal/captcha"
	"github.com/SergeiKhy/shortlink/internal/handler"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/SergeiKhy/shortlink/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv роутер поверх мокового репозитория и настоящего сервиса
type testEnv struct {
	router *gin.Engine
	repo   *mocks.MockURLRepository
}

func setupTestEnv(t *testing.T, configure func(*handler.RouterConfig)) *testEnv {
	t.Helper()

	repo := mocks.NewMockURLRepository()
	cfg := handler.RouterConfig{
		LinkService: service.NewLinkService(repo, service.NewRandomCodeGenerator(service.CodeLength), nil),
	}
	if configure != nil {
		configure(&cfg)
	}

	return &testEnv{router: handler.NewRouter(cfg), repo: repo}
}

func (env *testEnv) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) shorten(t *testing.T, url, code string) handler.ShortenResponse {
	t.Helper()
	w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: url, Code: code}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp handler.ShortenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// TestShortenRedirectStats проверяет полный сценарий: создание, переход, статистика
func TestShortenRedirectStats(t *testing.T) {
	env := setupTestEnv(t, nil)

	created := env.shorten(t, "https://example.com/page", "")
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]{7}$`), created.Code)
	assert.Equal(t, "http://example.com/"+created.Code, created.ShortURL)
	assert.NotZero(t, created.ID)

	w := env.do(http.MethodGet, "/"+created.Code, nil, map[string]string{
		"Referer":    "https://news.example.org/",
		"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/page", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = env.do(http.MethodGet, "/api/stats/"+created.Code, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, created.Code, stats.Code)
	assert.Equal(t, "https://example.com/page", stats.OriginalURL)
	assert.Equal(t, int64(1), stats.ClicksTotal)
	require.Len(t, stats.RecentClicks, 1)
	require.NotNil(t, stats.RecentClicks[0].Referrer)
	assert.Equal(t, "https://news.example.org/", *stats.RecentClicks[0].Referrer)
	assert.Equal(t, "mobile", stats.RecentClicks[0].Device)
}

// TestShorten_CustomCode проверяет кастомный код и повторное его использование
func TestShorten_CustomCode(t *testing.T) {
	env := setupTestEnv(t, nil)

	created := env.shorten(t, "https://example.com/custom?q=1", "my_Code-1")
	assert.Equal(t, "my_Code-1", created.Code)

	w := env.do(http.MethodGet, "/my_Code-1", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/custom?q=1", w.Header().Get("Location"))

	w = env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://other.example.com", Code: "my_Code-1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "code already in use", decodeError(t, w).Error)
}

// TestShorten_Errors проверяет коды ответов и сообщения при ошибках валидации
func TestShorten_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     handler.ShortenRequest
		status  int
		message string
	}{
		{name: "empty url", req: handler.ShortenRequest{}, status: http.StatusBadRequest, message: "invalid url"},
		{name: "relative url", req: handler.ShortenRequest{URL: "example.com"}, status: http.StatusBadRequest, message: "invalid url"},
		{name: "ftp", req: handler.ShortenRequest{URL: "ftp://example.com"}, status: http.StatusBadRequest, message: "protocol not allowed"},
		{name: "short code", req: handler.ShortenRequest{URL: "https://example.com", Code: "abc"}, status: http.StatusBadRequest, message: "invalid code format"},
		{name: "long code", req: handler.ShortenRequest{URL: "https://example.com", Code: string(bytes.Repeat([]byte("a"), 65))}, status: http.StatusBadRequest, message: "invalid code format"},
		{name: "bad charset", req: handler.ShortenRequest{URL: "https://example.com", Code: "hello world"}, status: http.StatusBadRequest, message: "invalid code format"},
		{name: "reserved", req: handler.ShortenRequest{URL: "https://example.com", Code: "Stats"}, status: http.StatusBadRequest, message: "reserved code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, nil)

			w := env.do(http.MethodPost, "/api/shorten", tt.req, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Error)
			assert.Zero(t, env.repo.CreateCalls)
		})
	}
}

// TestShorten_MalformedBody проверяет невалидный JSON
func TestShorten_MalformedBody(t *testing.T) {
	env := setupTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestShorten_StoreFailure проверяет, что внутренняя ошибка не уходит клиенту
func TestShorten_StoreFailure(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.repo.ExistsErr = errors.New("pq: connection reset by peer at 10.1.2.3")

	w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w).Error)
	assert.NotContains(t, w.Body.String(), "10.1.2.3")
}

// TestShorten_BaseURL проверяет построение shortUrl от BASE_URL и X-Forwarded-Proto
func TestShorten_BaseURL(t *testing.T) {
	env := setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.BaseURL = "https://sho.rt/" })
	created := env.shorten(t, "https://example.com", "based")
	assert.Equal(t, "https://sho.rt/based", created.ShortURL)

	// httptest.NewRequest приходит с 192.0.2.1
	env = setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.TrustedProxies = []string{"192.0.2.0/24"} })
	w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com", Code: "proxied"},
		map[string]string{"X-Forwarded-Proto": "https"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"shortUrl":"https://example.com/proxied"`)
}

// TestShorten_UntrustedForwardedProto проверяет, что клиент не может подменить схему shortUrl
func TestShorten_UntrustedForwardedProto(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		proto   string
	}{
		{name: "no trusted proxies", proxies: nil, proto: "https"},
		{name: "peer not in list", proxies: []string{"10.0.0.1"}, proto: "https"},
		{name: "trusted peer with bogus scheme", proxies: []string{"192.0.2.1"}, proto: "javascript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.TrustedProxies = tt.proxies })
			w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com", Code: "spoofed"},
				map[string]string{"X-Forwarded-Proto": tt.proto})
			require.Equal(t, http.StatusCreated, w.Code)
			assert.Contains(t, w.Body.String(), `"shortUrl":"http://example.com/spoofed"`)
		})
	}
}

// TestRedirect_NotFound проверяет 404 без записи клика
func TestRedirect_NotFound(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(http.MethodGet, "/nonexistent", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, env.repo.ClickCount("nonexistent"))

	w = env.do(http.MethodGet, "/api/stats/nonexistent", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeError(t, w).Error)
}

// TestRedirect_ReservedNeverResolves проверяет, что зарезервированный код не резолвится
func TestRedirect_ReservedNeverResolves(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, err := env.repo.Create(context.Background(), "config", "https://evil.example.com")
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/config", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

// TestRedirect_RecordFailure проверяет, что сбой записи клика виден как 500
func TestRedirect_RecordFailure(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.shorten(t, "https://example.com", "fragile")
	env.repo.RecordErr = errors.New("disk full")

	w := env.do(http.MethodGet, "/fragile", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

// TestStats_RecentClicksBound проверяет счётчик и ограничение последних кликов
func TestStats_RecentClicksBound(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.shorten(t, "https://example.com", "popular")

	const n = 120
	for i := 0; i < n; i++ {
		w := env.do(http.MethodGet, "/popular", nil, nil)
		require.Equal(t, http.StatusFound, w.Code)
	}

	w := env.do(http.MethodGet, "/api/stats/popular", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(n), stats.ClicksTotal)
	require.Len(t, stats.RecentClicks, 100)
	for i := 1; i < len(stats.RecentClicks); i++ {
		assert.Greater(t, stats.RecentClicks[i-1].ID, stats.RecentClicks[i].ID)
	}
}

// TestCheck проверяет доступность кода и причину отказа
func TestCheck(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.shorten(t, "https://example.com", "taken-code")

	tests := []struct {
		code      string
		available bool
		reason    string
	}{
		{code: "free-code", available: true},
		{code: "taken-code", reason: "taken"},
		{code: "admin", reason: "reserved"},
		{code: "STATIC", reason: "reserved"},
		{code: "x", reason: "invalid"},
	}

	for _, tt := range tests {
		w := env.do(http.MethodGet, "/api/check/"+tt.code, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.Availability
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tt.available, resp.Available, tt.code)
		assert.Equal(t, tt.reason, resp.Reason, tt.code)
	}
}

// TestRateLimit_Shorten проверяет лимит на создание ссылок
func TestRateLimit_Shorten(t *testing.T) {
	shortenLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Limit: 2, Window: time.Hour})
	checkLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Limit: 10, Window: time.Hour})
	t.Cleanup(shortenLimiter.Stop)
	t.Cleanup(checkLimiter.Stop)

	env := setupTestEnv(t, func(cfg *handler.RouterConfig) {
		cfg.ShortenLimiter = shortenLimiter
		cfg.CheckLimiter = checkLimiter
	})

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com"}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "2", w.Header().Get("RateLimit-Limit"))
	}

	w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 2, env.repo.CreateCalls)

	// Лимит проверки кодов считается отдельно
	w = env.do(http.MethodGet, "/api/check/some-code", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("RateLimit-Limit"))
}

type stubVerifier struct {
	err    error
	token  string
	called bool
}

func (v *stubVerifier) Verify(_ context.Context, token, _ string) error {
	v.called = true
	v.token = token
	if token == "" {
		return captcha.ErrTokenMissing
	}
	return v.err
}

// TestShorten_Recaptcha проверяет ответы при включённой проверке на бота
func TestShorten_Recaptcha(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		err     error
		status  int
		message string
	}{
		{name: "passes", token: "good", status: http.StatusCreated},
		{name: "missing token", status: http.StatusBadRequest, message: "recaptcha token required"},
		{name: "rejected", token: "bad", err: captcha.ErrVerificationFailed, status: http.StatusBadRequest, message: "recaptcha verification failed"},
		{name: "unavailable", token: "good", err: captcha.ErrVerifierUnavailable, status: http.StatusBadGateway, message: "recaptcha verification error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &stubVerifier{err: tt.err}
			env := setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.Verifier = verifier })

			w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com", RecaptchaToken: tt.token}, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.token, verifier.token)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, w).Error)
				assert.Zero(t, env.repo.CreateCalls)
			}
		})
	}
}

// TestShorten_RecaptchaAfterURLValidation проверяет порядок: сначала URL, потом бот, потом код
func TestShorten_RecaptchaAfterURLValidation(t *testing.T) {
	verifier := &stubVerifier{err: captcha.ErrTokenMissing}
	env := setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.Verifier = verifier })

	w := env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "not-a-url"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid url", decodeError(t, w).Error)
	assert.False(t, verifier.called)

	// Неверный формат кода проверяется уже после бота
	w = env.do(http.MethodPost, "/api/shorten", handler.ShortenRequest{URL: "https://example.com", Code: "a!"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "recaptcha token required", decodeError(t, w).Error)
	assert.True(t, verifier.called)
}

// TestAdminURLs проверяет доступ к списку ссылок
func TestAdminURLs(t *testing.T) {
	disabled := setupTestEnv(t, nil)
	w := disabled.do(http.MethodGet, "/api/admin/urls", nil, map[string]string{middleware.AdminTokenHeader: "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env := setupTestEnv(t, func(cfg *handler.RouterConfig) {
		cfg.AdminMiddleware = middleware.RequireAdmin("s3cret", false)
	})
	env.shorten(t, "https://example.com/1", "first")
	env.shorten(t, "https://example.com/2", "second")

	w = env.do(http.MethodGet, "/api/admin/urls", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/admin/urls?token=s3cret", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/admin/urls", nil, map[string]string{middleware.AdminTokenHeader: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.ListURLsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.URLs, 2)
	assert.Equal(t, "second", resp.URLs[0].Code)
}

// TestQRCode проверяет генерацию PNG для существующего кода
func TestQRCode(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.shorten(t, "https://example.com", "qr-me")

	w := env.do(http.MethodGet, "/api/qr/qr-me", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
	assert.Zero(t, env.repo.ClickCount("qr-me"))

	w = env.do(http.MethodGet, "/api/qr/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestConfigAndHealth проверяет служебные эндпоинты
func TestConfigAndHealth(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/config", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"recaptchaSiteKey":null}`, w.Body.String())

	env = setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.RecaptchaSiteKey = "site-key" })
	w = env.do(http.MethodGet, "/api/config", nil, nil)
	assert.JSONEq(t, `{"recaptchaSiteKey":"site-key"}`, w.Body.String())

	w = env.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"url-shortener"}`, w.Body.String())
}

// TestStaticFiles проверяет отдачу фронтенда рядом с редиректами
func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>shortener</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	env := setupTestEnv(t, func(cfg *handler.RouterConfig) { cfg.PublicDir = dir })
	env.shorten(t, "https://example.com", "not-a-file")

	w := env.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shortener")

	w = env.do(http.MethodGet, "/app.js", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")

	w = env.do(http.MethodGet, "/static/app.js", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/missing.css", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/not-a-file", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
}
