package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RevocationBackendDatabase = "database"
	RevocationBackendRedis    = "redis"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Revocation    RevocationConfig    `mapstructure:"revocation"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret  string `mapstructure:"access_token_secret"`
	RefreshTokenSecret string `mapstructure:"refresh_token_secret"`
	ResetTokenSecret   string `mapstructure:"reset_token_secret"`
	Issuer             string `mapstructure:"issuer"`

	AccessTokenDuration          time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration         time.Duration `mapstructure:"refresh_token_duration"`
	RememberAccessTokenDuration  time.Duration `mapstructure:"remember_access_token_duration"`
	RememberRefreshTokenDuration time.Duration `mapstructure:"remember_refresh_token_duration"`
	ResetTokenDuration           time.Duration `mapstructure:"reset_token_duration"`

	PasswordResetURL string `mapstructure:"password_reset_url"`
	BCryptCost       int    `mapstructure:"bcrypt_cost"`
}

type RevocationConfig struct {
	Backend    string        `mapstructure:"backend"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig points at the webhook that relays user notifications.
// Notifications are only logged when WebhookURL is empty.
type NotificationConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxWorkers  int           `mapstructure:"max_workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- DEFAULTS -----------------

// ApplyDefaults fills zero values with the documented session lifetimes and sane server limits.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.StoreTimeout <= 0 {
		c.Server.StoreTimeout = 5 * time.Second
	}

	s := &c.Security
	if s.AccessTokenDuration <= 0 {
		s.AccessTokenDuration = 30 * time.Minute
	}
	if s.RefreshTokenDuration <= 0 {
		s.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if s.RememberAccessTokenDuration <= 0 {
		s.RememberAccessTokenDuration = 24 * time.Hour
	}
	if s.RememberRefreshTokenDuration <= 0 {
		s.RememberRefreshTokenDuration = 30 * 24 * time.Hour
	}
	if s.ResetTokenDuration <= 0 {
		s.ResetTokenDuration = time.Hour
	}
	if s.BCryptCost == 0 {
		s.BCryptCost = 12
	}
	if s.Issuer == "" {
		s.Issuer = "project-access"
	}

	if c.Revocation.Backend == "" {
		c.Revocation.Backend = RevocationBackendDatabase
	}
	if c.Revocation.KeyPrefix == "" {
		c.Revocation.KeyPrefix = "revoked:jti:"
	}
	if c.Revocation.DefaultTTL <= 0 {
		c.Revocation.DefaultTTL = s.RememberRefreshTokenDuration
	}

	n := &c.Notification
	if n.Timeout <= 0 {
		n.Timeout = 10 * time.Second
	}
	if n.MaxWorkers <= 0 {
		n.MaxWorkers = 4
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 100
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 3
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			StoreTimeout:      getEnvAsDuration("HTTP_STORE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:            getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:           getEnv("JWT_REFRESH_SECRET", ""),
			ResetTokenSecret:             getEnv("RESET_TOKEN_SECRET", ""),
			Issuer:                       getEnv("JWT_ISSUER", ""),
			AccessTokenDuration:          getEnvAsDuration("JWT_ACCESS_TTL", 0),
			RefreshTokenDuration:         getEnvAsDuration("JWT_REFRESH_TTL", 0),
			RememberAccessTokenDuration:  getEnvAsDuration("JWT_REMEMBER_ACCESS_TTL", 0),
			RememberRefreshTokenDuration: getEnvAsDuration("JWT_REMEMBER_REFRESH_TTL", 0),
			ResetTokenDuration:           getEnvAsDuration("RESET_TOKEN_TTL", 0),
			PasswordResetURL:             getEnv("PASSWORD_RESET_URL", ""),
			BCryptCost:                   getEnvAsInt("BCRYPT_COST", 0),
		},
		Revocation: RevocationConfig{
			Backend:    getEnv("REVOCATION_BACKEND", RevocationBackendDatabase),
			KeyPrefix:  getEnv("REVOCATION_KEY_PREFIX", ""),
			DefaultTTL: getEnvAsDuration("REVOCATION_DEFAULT_TTL", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Notification: NotificationConfig{
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
			APIKey:      getEnv("NOTIFY_API_KEY", ""),
			Timeout:     getEnvAsDuration("NOTIFY_TIMEOUT", 0),
			MaxWorkers:  getEnvAsInt("NOTIFY_MAX_WORKERS", 0),
			QueueSize:   getEnvAsInt("NOTIFY_QUEUE_SIZE", 0),
			MaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 0),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Revocation.Validate(c.Redis); err != nil {
		errs = append(errs, fmt.Sprintf("revocation config: %v", err))
	}

	if err := c.Notification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	secrets := map[string]string{
		"access_token_secret":  c.AccessTokenSecret,
		"refresh_token_secret": c.RefreshTokenSecret,
		"reset_token_secret":   c.ResetTokenSecret,
	}
	for name, secret := range secrets {
		if len(secret) < 32 {
			return fmt.Errorf("%s must be at least 32 characters", name)
		}
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	if c.AccessTokenDuration >= c.RefreshTokenDuration {
		return errors.New("access_token_duration must be shorter than refresh_token_duration")
	}
	if c.PasswordResetURL != "" {
		if _, err := url.ParseRequestURI(c.PasswordResetURL); err != nil {
			return fmt.Errorf("invalid password_reset_url: %w", err)
		}
	}
	return nil
}

func (c *RevocationConfig) Validate(redis RedisConfig) error {
	switch c.Backend {
	case RevocationBackendDatabase:
		return nil
	case RevocationBackendRedis:
		if redis.Addr == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
		return nil
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
}

func (c *NotificationConfig) Validate() error {
	if c.WebhookURL == "" {
		return nil
	}
	u, err := url.ParseRequestURI(c.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook_url must be http or https, got %q", u.Scheme)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported level %q", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}
