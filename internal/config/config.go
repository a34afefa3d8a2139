package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	AppEnv           string
	Port             string
	AllowedOrigins   []string
	DatabaseURL      string
	DBAutoMigrate    bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ReportCacheTTL   time.Duration
	AuthSecret       string
	AccessTokenTTL   time.Duration
	ManagerPIN       string
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
}

// Load reads the process environment, after an optional .env file in the
// working directory. Secrets are never defaulted.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	redisDB, err := parseInt(k.String("REDIS_DB"), 0)
	if err != nil || redisDB < 0 {
		return Config{}, fmt.Errorf("REDIS_DB must be a non-negative integer")
	}
	cacheTTL, err := parseInt(k.String("REPORT_CACHE_TTL_SECONDS"), 300)
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	tokenTTL, err := parseInt(k.String("ACCESS_TOKEN_TTL_MINUTES"), 480)
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		AppEnv:           valueOrDefault(k.String("APP_ENV"), "development"),
		Port:             valueOrDefault(k.String("PORT"), "8080"),
		AllowedOrigins:   splitAndTrim(valueOrDefault(k.String("ALLOWED_ORIGIN"), "http://127.0.0.1:3000")),
		DatabaseURL:      strings.TrimSpace(k.String("DATABASE_URL")),
		DBAutoMigrate:    parseBool(k.String("DB_AUTO_MIGRATE")),
		RedisAddr:        strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:    k.String("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		ReportCacheTTL:   time.Duration(cacheTTL) * time.Second,
		AuthSecret:       strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTL:   time.Duration(tokenTTL) * time.Minute,
		ManagerPIN:       strings.TrimSpace(k.String("MANAGER_PIN")),
		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "pos"),
	}, nil
}

func (c Config) Address() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseInt(value string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	return strconv.Atoi(trimmed)
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
