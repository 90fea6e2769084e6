package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port          string `yaml:"port"`
		Env           string `yaml:"env"`
		PublicBaseURL string `yaml:"publicBaseUrl"`
		APIBaseURL    string `yaml:"apiBaseUrl"`
		AllowedOrigin string `yaml:"allowedOrigin"`
	} `yaml:"server"`
	Admin struct {
		Password string `yaml:"password"`
		Secret   string `yaml:"secret"`
	} `yaml:"admin"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Limits Limits `yaml:"limits"`
}

// Limits are per-client request budgets for the public mutation routes.
type Limits struct {
	Login      int    `yaml:"login"`
	Start      int    `yaml:"start"`
	Complete   int    `yaml:"complete"`
	CreateTest int    `yaml:"createTest"`
	Window     string `yaml:"window"`
}

// ErrMissingSecret is returned by Validate when no admin secret is configured.
var ErrMissingSecret = errors.New("admin secret not configured: set admin.secret, ADMIN_SECRET or ADMIN_PASSWORD")

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Server.Env, "APP_ENV")
	set(&c.Server.PublicBaseURL, "PUBLIC_BASE_URL")
	set(&c.Server.APIBaseURL, "PUBLIC_API_URL")
	set(&c.Admin.Password, "ADMIN_PASSWORD")
	set(&c.Admin.Secret, "ADMIN_SECRET")
	set(&c.Postgres.URL, "DATABASE_URL")
	set(&c.Redis.Addr, "REDIS_ADDR")
	if v := getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Limits.Login == 0 {
		c.Limits.Login = 10
	}
	if c.Limits.Start == 0 {
		c.Limits.Start = 50
	}
	if c.Limits.Complete == 0 {
		c.Limits.Complete = 50
	}
	if c.Limits.CreateTest == 0 {
		c.Limits.CreateTest = 20
	}
}

// AdminSecret is the HMAC key for admin tokens; the password doubles as the key when unset.
func (c Config) AdminSecret() string {
	if c.Admin.Secret != "" {
		return c.Admin.Secret
	}
	return c.Admin.Password
}

// Production reports whether cookies must be marked secure.
func (c Config) Production() bool {
	return c.Server.Env == "production"
}

// Validate checks settings the server cannot start without.
func (c Config) Validate() error {
	if c.AdminSecret() == "" {
		return ErrMissingSecret
	}
	return nil
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
