package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Leaderboard struct {
		// Cache is one of "memory", "redis" or "none".
		Cache    string `yaml:"cache"`
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"leaderboard"`
	Attempts struct {
		Cooldown      string `yaml:"cooldown"`
		QuestionCount int    `yaml:"questionCount"`
	} `yaml:"attempts"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path. JWT_SECRET, when set, replaces auth.jwtSecret.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// CacheBackend returns the configured leaderboard cache backend, defaulting to
// redis when a Redis address is configured and memory otherwise.
func (c Config) CacheBackend() string {
	switch c.Leaderboard.Cache {
	case "memory", "redis", "none":
		return c.Leaderboard.Cache
	}
	if c.Redis.Addr != "" {
		return "redis"
	}
	return "memory"
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
