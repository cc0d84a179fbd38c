package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvProduction = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Recaptcha RecaptchaConfig
}

type AppConfig struct {
	Port      string
	Env       string
	BaseURL   string // empty: derived from the request Host
	PublicDir string
	// TrustedProxies may set X-Forwarded-For; empty means the socket address is the client
	TrustedProxies []string
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, EnvProduction)
}

type DBConfig struct {
	Driver         string
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	QueryTimeout   time.Duration
	ConnectRetries uint64
	SQLitePath     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type AuthConfig struct {
	AdminToken string // empty disables /api/admin
}

type RateLimitConfig struct {
	ShortenPerHour int
	CheckPerHour   int
	Window         time.Duration
}

type RecaptchaConfig struct {
	Secret   string
	SiteKey  string
	MinScore float64
}

// Enabled reports whether shorten requests must pass the bot check.
func (r RecaptchaConfig) Enabled() bool {
	return r.Secret != ""
}

var defaults = map[string]any{
	"APP_PORT":                    "8080",
	"APP_ENV":                     "development",
	"PUBLIC_DIR":                  "./public",
	"DB_DRIVER":                   DriverPostgres,
	"DB_HOST":                     "localhost",
	"DB_PORT":                     "5432",
	"DB_SSLMODE":                  "disable",
	"DB_MAX_CONNS":                10,
	"DB_MIN_CONNS":                2,
	"DB_QUERY_TIMEOUT":            "5s",
	"DB_CONNECT_RETRIES":          5,
	"SQLITE_PATH":                 "shortener.db",
	"REDIS_PORT":                  "6379",
	"REDIS_DB":                    0,
	"RATE_LIMIT_SHORTEN_PER_HOUR": 60,
	"RATE_LIMIT_CHECK_PER_HOUR":   300,
	"RECAPTCHA_MIN_SCORE":         0.3,
}

// Load reads configuration from an optional .env file in the working
// directory and from the environment. Environment variables win.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.Env = v.GetString("APP_ENV")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")
	cfg.App.PublicDir = v.GetString("PUBLIC_DIR")
	cfg.App.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.MaxConns = v.GetInt32("DB_MAX_CONNS")
	cfg.DB.MinConns = v.GetInt32("DB_MIN_CONNS")
	cfg.DB.QueryTimeout = v.GetDuration("DB_QUERY_TIMEOUT")
	cfg.DB.ConnectRetries = v.GetUint64("DB_CONNECT_RETRIES")
	cfg.DB.SQLitePath = v.GetString("SQLITE_PATH")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Auth.AdminToken = v.GetString("ADMIN_TOKEN")

	cfg.RateLimit.ShortenPerHour = v.GetInt("RATE_LIMIT_SHORTEN_PER_HOUR")
	cfg.RateLimit.CheckPerHour = v.GetInt("RATE_LIMIT_CHECK_PER_HOUR")
	cfg.RateLimit.Window = time.Hour

	cfg.Recaptcha.Secret = v.GetString("RECAPTCHA_SECRET")
	cfg.Recaptcha.SiteKey = v.GetString("RECAPTCHA_SITE_KEY")
	cfg.Recaptcha.MinScore = v.GetFloat64("RECAPTCHA_MIN_SCORE")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return errors.New("DB_DRIVER must be postgres or sqlite")
	}
	if c.DB.MaxConns < 1 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	if c.RateLimit.ShortenPerHour < 1 || c.RateLimit.CheckPerHour < 1 {
		return errors.New("rate limits must be positive")
	}
	return nil
}
