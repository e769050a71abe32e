package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type RateLimitConfig struct {
	// Backend selects the shared counter store: "redis", "postgres" or
	// "memory" (single instance only).
	Backend string            `json:"backend"`
	Presets map[string]Preset `json:"presets"`
}

type Preset struct {
	Limit    int   `json:"limit"`
	WindowMs int64 `json:"window_ms"`
}

func (p Preset) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == "" {
		c.Redis.Port = "6379"
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "redis"
	}
	if len(c.RateLimit.Presets) == 0 {
		c.RateLimit.Presets = map[string]Preset{
			"strict":  {Limit: 10, WindowMs: 60_000},
			"relaxed": {Limit: 100, WindowMs: 60_000},
		}
	}
}

// Environment variables override file values so deployments can keep secrets
// out of config.json.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		c.RateLimit.Backend = v
	}
}

// Validate rejects deployment bugs before any request is served. This is the
// only class of rate-limiter error that is allowed to hard-fail.
func (c *Config) Validate() error {
	switch c.RateLimit.Backend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}

	for name, preset := range c.RateLimit.Presets {
		if preset.Limit <= 0 {
			return fmt.Errorf("rate limit preset %q: limit must be positive, got %d", name, preset.Limit)
		}
		if preset.WindowMs <= 0 {
			return fmt.Errorf("rate limit preset %q: window_ms must be positive, got %d", name, preset.WindowMs)
		}
	}

	return nil
}
