// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Membership MembershipConfig `json:"membership"`
	Media      MediaConfig      `json:"media"`
	Session    SessionConfig    `json:"session"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	// Enabled turns on the local membership record table; the wizard works without it.
	Enabled         bool          `json:"enabled"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	SubmitRateLimit int           `json:"submit_rate_limit"` // submissions per window
	ProxyRateLimit  int           `json:"proxy_rate_limit"`  // proxied images per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Content Security
	CSPPolicy      string `json:"csp_policy"`
	XFrameOptions  string `json:"x_frame_options"`
	ReferrerPolicy string `json:"referrer_policy"`

	// Admin report access
	AdminAPIKeyHeader string `json:"admin_api_key_header"`
	AdminAPIKeyHash   string `json:"-"` // bcrypt hash
}

// JWTConfig configures the wizard session tokens
type JWTConfig struct {
	SecretKey string        `json:"-"`
	TokenTTL  time.Duration `json:"token_ttl"`
	Issuer    string        `json:"issuer"`
	Audience  string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	EnableAccessLog bool `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"` // redis, memory
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

// MembershipConfig points at the remote membership API
type MembershipConfig struct {
	CatalogURL   string        `json:"catalog_url"`
	CreateURL    string        `json:"create_url"`
	APIKeyHeader string        `json:"api_key_header"`
	APIKey       string        `json:"-"`
	Timeout      time.Duration `json:"timeout"`
	CatalogTTL   time.Duration `json:"catalog_ttl"`
}

type MediaConfig struct {
	MaxWidth              int           `json:"max_width"`
	MaxHeight             int           `json:"max_height"`
	Quality               float64       `json:"quality"`
	MaxUploadBytes        int           `json:"max_upload_bytes"`
	CameraAttemptTimeout  time.Duration `json:"camera_attempt_timeout"`
	ProxyTimeout          time.Duration `json:"proxy_timeout"`
	ProxyMaxBytes         int64         `json:"proxy_max_bytes"`
	ProxyUserAgent        string        `json:"proxy_user_agent"`
	ProxyAllowPrivateHost bool          `json:"proxy_allow_private_host"`
}

type SessionConfig struct {
	KeyPrefix       string        `json:"key_prefix"`
	RecordTTL       time.Duration `json:"record_ttl"`
	PersistDebounce time.Duration `json:"persist_debounce"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", true),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "kartu_tanda_boga"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 12*1024*1024), // 12MB, camera frames and gallery files
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://kartu.mybogaloyalty.id"}),
			AllowedMethods:    getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			AllowedHeaders:    getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-Token", "X-Requested-With"}),
			AllowCredentials:  getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:        getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 600),
			SubmitRateLimit:   getEnvInt("SUBMIT_RATE_LIMIT", 10),
			ProxyRateLimit:    getEnvInt("PROXY_RATE_LIMIT", 120),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CSPPolicy:         getEnvString("CSP_POLICY", "default-src 'self'; img-src 'self' data: blob: https:"),
			XFrameOptions:     getEnvString("X_FRAME_OPTIONS", "DENY"),
			ReferrerPolicy:    getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
			AdminAPIKeyHeader: getEnvString("ADMIN_API_KEY_HEADER", "X-Admin-Key"),
			AdminAPIKeyHash:   getEnvString("ADMIN_API_KEY_HASH", ""),
		},
		JWT: JWTConfig{
			SecretKey: getEnvString("JWT_SECRET_KEY", ""),
			TokenTTL:  getEnvDuration("JWT_SESSION_TOKEN_TTL", 24*time.Hour),
			Issuer:    getEnvString("JWT_ISSUER", "kartu-tanda-boga"),
			Audience:  getEnvString("JWT_AUDIENCE", "kartu-tanda-boga-wizard"),
		},
		Logging: LoggingConfig{
			Level:           getEnvString("LOG_LEVEL", "info"),
			Output:          getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:        getEnvString("LOG_FILE_PATH", "/var/log/kartu-tanda-boga/app.log"),
			MaxSize:         getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:          getEnvInt("LOG_MAX_AGE", 30),
			Compress:        getEnvBool("LOG_COMPRESS", true),
			EnableAccessLog: getEnvBool("LOG_ENABLE_ACCESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "ktb:"),
		},
		Membership: MembershipConfig{
			CatalogURL:   getEnvString("MEMBERSHIP_CATALOG_URL", "https://api.mybogaloyalty.id/membership-card"),
			CreateURL:    getEnvString("MEMBERSHIP_CREATE_URL", "https://alpha-api.mybogaloyalty.id/membership-card/create"),
			APIKeyHeader: getEnvString("MEMBERSHIP_API_KEY_HEADER", "X-BOGAMBC-Key"),
			APIKey:       getEnvString("MEMBERSHIP_API_KEY", ""),
			Timeout:      getEnvDuration("MEMBERSHIP_TIMEOUT", 30*time.Second),
			CatalogTTL:   getEnvDuration("MEMBERSHIP_CATALOG_TTL", 10*time.Minute),
		},
		Media: MediaConfig{
			MaxWidth:              getEnvInt("MEDIA_MAX_WIDTH", 800),
			MaxHeight:             getEnvInt("MEDIA_MAX_HEIGHT", 800),
			Quality:               getEnvFloat("MEDIA_QUALITY", 0.7),
			MaxUploadBytes:        getEnvInt("MEDIA_MAX_UPLOAD_BYTES", 10*1024*1024),
			CameraAttemptTimeout:  getEnvDuration("MEDIA_CAMERA_ATTEMPT_TIMEOUT", 5*time.Second),
			ProxyTimeout:          getEnvDuration("MEDIA_PROXY_TIMEOUT", 15*time.Second),
			ProxyMaxBytes:         int64(getEnvInt("MEDIA_PROXY_MAX_BYTES", 10*1024*1024)),
			ProxyUserAgent:        getEnvString("MEDIA_PROXY_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
			ProxyAllowPrivateHost: getEnvBool("MEDIA_PROXY_ALLOW_PRIVATE_HOST", false),
		},
		Session: SessionConfig{
			KeyPrefix:       getEnvString("SESSION_KEY_PREFIX", "ktb_form_session"),
			RecordTTL:       getEnvDuration("SESSION_RECORD_TTL", 7*24*time.Hour),
			PersistDebounce: getEnvDuration("SESSION_PERSIST_DEBOUNCE", 100*time.Millisecond),
			IdleTimeout:     getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			CleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads variables from path when it exists; variables already present in
// the environment win.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			errs = append(errs, "DB_HOST is required")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "DB_PORT must be between 1 and 65535")
		}
		if cfg.Database.Name == "" {
			errs = append(errs, "DB_NAME is required")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "DB_USER is required")
		}
		if cfg.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required")
		}
	}

	if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.TokenTTL <= 0 {
		errs = append(errs, "JWT_SESSION_TOKEN_TTL must be positive")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}

	if !isAbsoluteURL(cfg.Membership.CatalogURL) {
		errs = append(errs, "MEMBERSHIP_CATALOG_URL must be an absolute URL")
	}
	if !isAbsoluteURL(cfg.Membership.CreateURL) {
		errs = append(errs, "MEMBERSHIP_CREATE_URL must be an absolute URL")
	}
	if cfg.Membership.APIKey == "" {
		errs = append(errs, "MEMBERSHIP_API_KEY is required")
	}

	if cfg.Media.MaxWidth <= 0 || cfg.Media.MaxHeight <= 0 {
		errs = append(errs, "MEDIA_MAX_WIDTH and MEDIA_MAX_HEIGHT must be positive")
	}
	if cfg.Media.Quality <= 0 || cfg.Media.Quality > 1 {
		errs = append(errs, "MEDIA_QUALITY must be in (0, 1]")
	}

	if cfg.Session.PersistDebounce <= 0 {
		errs = append(errs, "SESSION_PERSIST_DEBOUNCE must be positive")
	}
	if cfg.Session.KeyPrefix == "" {
		errs = append(errs, "SESSION_KEY_PREFIX is required")
	}

	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	switch cfg.Logging.Output {
	case "stdout", "file", "both":
	default:
		errs = append(errs, "LOG_OUTPUT must be one of: stdout, file, both")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
