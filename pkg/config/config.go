package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	PaymentLinks PaymentLinkConfig
	Events       EventsConfig
	Scheduler    SchedulerConfig
	RateLimit    RateLimitConfig
	Bootstrap    BootstrapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig governs the tariff read cache.
type CacheConfig struct {
	Enabled   bool
	TariffTTL time.Duration
}

// JWTConfig holds the two signing secrets and lifetimes of the token pair.
type JWTConfig struct {
	AccessSecret      string
	RefreshSecret     string
	AccessExpiration  time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PaymentLinkConfig configures signed payment links handed to drivers.
type PaymentLinkConfig struct {
	Secret  string
	TTL     time.Duration
	BaseURL string
}

// EventsConfig configures publication of audit events to RabbitMQ.
type EventsConfig struct {
	AMQPURL    string
	Exchange   string
	Workers    int
	MaxRetries int
}

// Enabled reports whether an AMQP broker was configured.
func (c EventsConfig) Enabled() bool {
	return c.AMQPURL != ""
}

// SchedulerConfig holds cron expressions for background sweeps.
type SchedulerConfig struct {
	AuditRetention      string
	CardExpiry          string
	HealthProbeInterval time.Duration
}

// RateLimitConfig throttles the public auth endpoints per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// BootstrapConfig seeds the first admin account when set.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_CACHE"),
		TariffTTL: parseDuration(v.GetString("TARIFF_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:      v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret:     v.GetString("JWT_REFRESH_SECRET"),
		AccessExpiration:  parseDuration(v.GetString("JWT_ACCESS_EXPIRATION"), 30*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("JWT_REFRESH_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.PaymentLinks = PaymentLinkConfig{
		Secret:  v.GetString("PAYMENT_LINK_SECRET"),
		TTL:     parseDuration(v.GetString("PAYMENT_LINK_TTL"), 24*time.Hour),
		BaseURL: strings.TrimRight(v.GetString("PAYMENT_LINK_BASE_URL"), "/"),
	}

	cfg.Events = EventsConfig{
		AMQPURL:    v.GetString("AMQP_URL"),
		Exchange:   v.GetString("AUDIT_EVENTS_EXCHANGE"),
		Workers:    v.GetInt("AUDIT_EVENTS_WORKERS"),
		MaxRetries: v.GetInt("AUDIT_EVENTS_RETRIES"),
	}

	cfg.Scheduler = SchedulerConfig{
		AuditRetention:      v.GetString("AUDIT_RETENTION_SCHEDULE"),
		CardExpiry:          v.GetString("CARD_EXPIRY_SCHEDULE"),
		HealthProbeInterval: parseDuration(v.GetString("HEALTH_PROBE_INTERVAL"), time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("AUTH_RATE_LIMIT_RPS"),
		Burst:             v.GetInt("AUTH_RATE_LIMIT_BURST"),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cpo_backoffice")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("TARIFF_CACHE_TTL", "5m")

	v.SetDefault("JWT_ACCESS_SECRET", "dev_access_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "dev_refresh_secret")
	v.SetDefault("JWT_ACCESS_EXPIRATION", "30m")
	v.SetDefault("JWT_REFRESH_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "cpo-backoffice")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PAYMENT_LINK_SECRET", "dev_payment_link_secret")
	v.SetDefault("PAYMENT_LINK_TTL", "24h")
	v.SetDefault("PAYMENT_LINK_BASE_URL", "http://localhost:8080/api/v1/pagos/enlace")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AUDIT_EVENTS_EXCHANGE", "cpo.audit")
	v.SetDefault("AUDIT_EVENTS_WORKERS", 2)
	v.SetDefault("AUDIT_EVENTS_RETRIES", 3)

	v.SetDefault("AUDIT_RETENTION_SCHEDULE", "@daily")
	v.SetDefault("CARD_EXPIRY_SCHEDULE", "@daily")
	v.SetDefault("HEALTH_PROBE_INTERVAL", "1m")

	v.SetDefault("AUTH_RATE_LIMIT_RPS", 5)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 10)

	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// viper reports a missing explicit config file as a plain fs error.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
