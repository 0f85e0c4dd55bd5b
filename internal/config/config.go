package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// アプリケーションログイン（Google OAuth）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret        string
	SessionMaxAge        int
	SessionRetentionDays int

	// マーケットプレイス連携
	MLClientID     string
	MLClientSecret string
	MLRedirectURL  string
	MLAuthURL      string
	MLAPIURL       string
	MLSiteID       string
	MLTimeout      time.Duration
	MLStrictState  bool
	NonceTTL       time.Duration
	RedisURL       string

	// LLM
	LLMProvider string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMTimeout  time.Duration
	LLMLocale   string

	// 競合分析
	DeliveryEstimateMin int
	DeliveryEstimateMax int
	SnapshotPageSize    int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAnalyze int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.SessionSecret = required("SESSION_SECRET")
	cfg.BaseURL = required("BASE_URL")
	cfg.MLClientID = required("ML_CLIENT_ID")
	cfg.MLClientSecret = required("ML_CLIENT_SECRET")
	cfg.MLRedirectURL = required("ML_REDIRECT_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.MLAuthURL = getEnvString("ML_AUTH_URL", "https://auth.mercadolivre.com.br/authorization")
	cfg.MLAPIURL = strings.TrimRight(getEnvString("ML_API_URL", "https://api.mercadolibre.com"), "/")
	cfg.MLSiteID = getEnvString("ML_SITE_ID", "MLB")
	cfg.MLTimeout = getEnvDuration("ML_TIMEOUT", 10*time.Second)
	cfg.MLStrictState = getEnvBool("ML_STRICT_STATE", false)
	cfg.NonceTTL = getEnvDuration("NONCE_TTL", 10*time.Minute)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.LLMProvider = strings.ToLower(getEnvString("LLM_PROVIDER", "openai"))
	cfg.LLMAPIKey = getEnvString("LLM_API_KEY", "")
	cfg.LLMBaseURL = getEnvString("LLM_BASE_URL", "")
	cfg.LLMModel = getEnvString("LLM_MODEL", "")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 30*time.Second)
	cfg.LLMLocale = getEnvString("LLM_LOCALE", "pt-BR")
	cfg.DeliveryEstimateMin = getEnvInt("DELIVERY_ESTIMATE_MIN", 2)
	cfg.DeliveryEstimateMax = getEnvInt("DELIVERY_ESTIMATE_MAX", 7)
	cfg.SnapshotPageSize = getEnvInt("SNAPSHOT_PAGE_SIZE", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAnalyze = getEnvInt("RATE_LIMIT_ANALYZE", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.LLMProvider != "openai" && cfg.LLMProvider != "gemini" {
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %s", cfg.LLMProvider)
	}

	// 下限が上限を超える設定は入れ替えずに上限へ揃える
	if cfg.DeliveryEstimateMin < 1 {
		cfg.DeliveryEstimateMin = 1
	}
	if cfg.DeliveryEstimateMax < cfg.DeliveryEstimateMin {
		cfg.DeliveryEstimateMax = cfg.DeliveryEstimateMin
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
