package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	JWT    JWTConfig
	Quota  QuotaConfig
	CORS   CORSConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32

	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// QuotaConfig controls the daily contact view quota. Cap is the number of
// distinct contacts a user may unlock within one rolling Window.
type QuotaConfig struct {
	Cap    int
	Window time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),

			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Quota: QuotaConfig{
			Cap: k.Int("quota.cap"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "leadscope"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "leadscope"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Quota.Cap == 0 {
		cfg.Quota.Cap = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	windowStr := k.String("quota.window")
	if windowStr == "" {
		windowStr = "24h"
	}
	cfg.Quota.Window, err = time.ParseDuration(windowStr)
	if err != nil {
		return nil, fmt.Errorf("parsing quota window: %w", err)
	}

	return cfg, nil
}
