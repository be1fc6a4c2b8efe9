package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port                 string
	LogLevel             string
	DBURL                string
	JWTSecret            string
	AccessTokenTTLMins   int
	RefreshTokenTTLHours int
	TMDBURL              string
	TMDBAPIKey           string
	TMDBImageBaseURL     string
	TMDBTimeoutSecs      int
	CORSAllowedOrigins   []string
	AuthRateLimitPerMin  int
	ImportDefaultLimit   int
	AdminEmail           string
	AdminPassword        string
	ReadTimeoutSecs      int
	WriteTimeoutSecs     int
	IdleTimeoutSecs      int
	DBMaxConns           int
	DBMinConns           int
	DBMaxIdleSecs        int
	DBMaxLifeSecs        int
	DBConnTimeoutSecs    int
	DBStatementCache     int
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DBURL:                os.Getenv("DB_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AccessTokenTTLMins:   getEnvInt("ACCESS_TOKEN_TTL_MINS", 15),
		RefreshTokenTTLHours: getEnvInt("REFRESH_TOKEN_TTL_HOURS", 24*7),
		TMDBURL:              getEnv("TMDB_API_URL", "https://api.themoviedb.org/3"),
		TMDBAPIKey:           os.Getenv("TMDB_API_KEY"),
		TMDBImageBaseURL:     getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500"),
		TMDBTimeoutSecs:      getEnvInt("TMDB_TIMEOUT_SECS", 5),
		CORSAllowedOrigins:   parseList(os.Getenv("CORS_ALLOWED_ORIGINS"), "*"),
		AuthRateLimitPerMin:  getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		ImportDefaultLimit:   getEnvInt("IMPORT_DEFAULT_LIMIT", 1000),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		ReadTimeoutSecs:      getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:     getEnvInt("SERVER_WRITE_TIMEOUT", 60),
		IdleTimeoutSecs:      getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:           getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:        getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:        getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:    getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:     getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.AccessTokenTTLMins <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MINS must be positive")
	}
	if cfg.RefreshTokenTTLHours <= 0 {
		return Config{}, fmt.Errorf("REFRESH_TOKEN_TTL_HOURS must be positive")
	}
	if cfg.TMDBTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("TMDB_TIMEOUT_SECS must be positive")
	}
	// Zero switches the auth rate limit off.
	if cfg.AuthRateLimitPerMin < 0 {
		return Config{}, fmt.Errorf("AUTH_RATE_LIMIT_PER_MIN must not be negative")
	}
	if cfg.ImportDefaultLimit <= 0 {
		return Config{}, fmt.Errorf("IMPORT_DEFAULT_LIMIT must be positive")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

// TMDBEnabled reports whether the external catalog client can be used.
func (c Config) TMDBEnabled() bool {
	return c.TMDBAPIKey != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseList(raw, fallback string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}
