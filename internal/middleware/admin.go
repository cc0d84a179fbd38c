package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader имя заголовка с токеном администратора
const AdminTokenHeader = "X-Admin-Token"

// AdminConfig конфигурация для доступа к административным эндпоинтам
type AdminConfig struct {
	// Token общий секрет; пустой токен отключает админку целиком
	Token string
	// AllowQueryToken разрешает передавать токен через ?token= (только не в production)
	AllowQueryToken bool
}

// AdminAuth middleware для аутентификации по общему секрету
type AdminAuth struct {
	config AdminConfig
}

// NewAdminAuth создаёт новый admin middleware
func NewAdminAuth(config AdminConfig) *AdminAuth {
	return &AdminAuth{config: config}
}

// Middleware возвращает Gin middleware handler для проверки токена администратора
func (a *AdminAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.config.Token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "admin disabled",
			})
			return
		}

		token := a.extractToken(c)

		// Валидация токена с использованием constant-time comparison
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.config.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "unauthorized",
			})
			return
		}

		c.Next()
	}
}

// extractToken ищет токен в заголовке, затем в Authorization: Bearer, затем в query
func (a *AdminAuth) extractToken(c *gin.Context) string {
	if token := c.GetHeader(AdminTokenHeader); token != "" {
		return token
	}

	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if a.config.AllowQueryToken {
		return c.Query("token")
	}

	return ""
}

// RequireAdmin хелпер для создания middleware, требующего токен администратора
func RequireAdmin(token string, allowQueryToken bool) gin.HandlerFunc {
	return NewAdminAuth(AdminConfig{
		Token:           token,
		AllowQueryToken: allowQueryToken,
	}).Middleware()
}
