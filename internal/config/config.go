package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type PlatformConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AdminConfig struct {
	Username       string `yaml:"username"`
	PasswordBcrypt string `yaml:"password_bcrypt"`
	// base64, or a path to a file holding base64 (k8s secret mounts)
	CookieHashKey  string `yaml:"cookie_hash_key"`
	CookieBlockKey string `yaml:"cookie_block_key"`
}

type Config struct {
	ListenAddr string        `yaml:"listen_addr"`
	RateLimit  time.Duration `yaml:"rate_limit"`
	StreamPoll time.Duration `yaml:"stream_poll"`

	AYO    PlatformConfig `yaml:"ayo"`
	Gelora PlatformConfig `yaml:"gelora"`

	DatabaseURL  string `yaml:"database_url"`
	ArchivePath  string `yaml:"archive_path"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	Admin AdminConfig `yaml:"admin"`

	// decoded from Admin
	CookieHashKey  []byte `yaml:"-"`
	CookieBlockKey []byte `yaml:"-"`
}

func Default() Config {
	return Config{
		ListenAddr: ":3001",
		RateLimit:  120 * time.Second,
		StreamPoll: time.Second,
		AYO:        PlatformConfig{BaseURL: "https://ayo.co.id", Timeout: 10 * time.Second},
		Gelora:     PlatformConfig{BaseURL: "https://www.gelora.id", Timeout: 15 * time.Second},
	}
}

// AdminEnabled reports whether the admin pages can be served.
func (c Config) AdminEnabled() bool {
	return c.Admin.Username != "" && c.Admin.PasswordBcrypt != "" && len(c.CookieHashKey) > 0
}

// FromEnv loads defaults, then the YAML file named by SLOTSCOUT_CONFIG if
// any, then environment overrides.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("SLOTSCOUT_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.decodeKeys(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration, unit time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * unit
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = d
		return nil
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("AYO_BASE_URL", &cfg.AYO.BaseURL)
	str("GELORA_BASE_URL", &cfg.Gelora.BaseURL)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("ARCHIVE_PATH", &cfg.ArchivePath)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	str("ADMIN_USERNAME", &cfg.Admin.Username)
	str("ADMIN_PASSWORD_BCRYPT", &cfg.Admin.PasswordBcrypt)
	str("COOKIE_HASH_KEY", &cfg.Admin.CookieHashKey)
	str("COOKIE_BLOCK_KEY", &cfg.Admin.CookieBlockKey)

	if err := dur("RATE_LIMIT_SECONDS", &cfg.RateLimit, time.Second); err != nil {
		return err
	}
	if err := dur("STREAM_POLL_MS", &cfg.StreamPoll, time.Millisecond); err != nil {
		return err
	}
	if err := dur("AYO_TIMEOUT", &cfg.AYO.Timeout, time.Second); err != nil {
		return err
	}
	return dur("GELORA_TIMEOUT", &cfg.Gelora.Timeout, time.Second)
}

func (c *Config) decodeKeys() error {
	var err error
	if c.Admin.CookieHashKey != "" {
		if c.CookieHashKey, err = decodeB64(c.Admin.CookieHashKey); err != nil {
			return fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
	}
	if c.Admin.CookieBlockKey != "" {
		if c.CookieBlockKey, err = decodeB64(c.Admin.CookieBlockKey); err != nil {
			return fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}
	return nil
}

func (c Config) validate() error {
	if c.RateLimit < time.Second {
		return fmt.Errorf("rate limit must be at least 1s, got %s", c.RateLimit)
	}
	if c.StreamPoll <= 0 {
		return fmt.Errorf("stream poll must be positive")
	}
	if c.AYO.Timeout <= 0 || c.Gelora.Timeout <= 0 {
		return fmt.Errorf("platform timeouts must be positive")
	}
	switch len(c.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes")
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
