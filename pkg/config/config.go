// Package config loads ~/.noah/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-network/noah/pkg/util"
)

// Defaults
const (
	DefaultBaseURL        = "http://10.0.0.104/api/noah"
	DefaultTimeoutSeconds = 15
	DefaultListen         = "127.0.0.1:8080"
	DefaultRateLimit      = 10
	DefaultBurst          = 5
	DefaultCacheTTL       = 30
	DefaultRedisKey       = "noah:credential"
	DefaultAuditMaxSizeMB = 10
	DefaultAuditBackups   = 5

	// BaseURLEnv overrides api.base_url
	BaseURLEnv = "NOAH_API_BASE_URL"
)

// Credential backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config is the whole configuration file
type Config struct {
	API        APIConfig        `yaml:"api"`
	Tunnel     TunnelConfig     `yaml:"tunnel"`
	Credential CredentialConfig `yaml:"credential"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Audit      AuditConfig      `yaml:"audit"`
}

// APIConfig locates the inventory API
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	UserAgent      string        `yaml:"user_agent"`
}

// TunnelConfig routes API traffic through an SSH bastion when Host is set
type TunnelConfig struct {
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	KnownHosts string `yaml:"known_hosts"`
}

// Enabled reports whether a tunnel is configured
func (t TunnelConfig) Enabled() bool {
	return t.Host != ""
}

// CredentialConfig selects where the token is persisted
type CredentialConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	RedisKey  string `yaml:"redis_key"`
}

// GatewayConfig configures `noah serve`
type GatewayConfig struct {
	Listen          string        `yaml:"listen"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	Burst           int           `yaml:"burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// AuditConfig configures the audit log file
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Dir returns ~/.noah
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".noah"
	}
	return filepath.Join(home, ".noah")
}

// DefaultPath returns ~/.noah/config.yaml
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, fills defaults and applies the environment override.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		util.Debugf("config %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("opening config: %w", err)
	default:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if env := strings.TrimSpace(os.Getenv(BaseURLEnv)); env != "" {
		c.API.BaseURL = env
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = DefaultTimeoutSeconds
	}
	c.API.Timeout = time.Duration(c.API.TimeoutSeconds) * time.Second

	if c.Credential.Backend == "" {
		c.Credential.Backend = BackendFile
	}
	if c.Credential.Path == "" {
		c.Credential.Path = filepath.Join(Dir(), "credential.json")
	}
	if c.Credential.RedisKey == "" {
		c.Credential.RedisKey = DefaultRedisKey
	}

	if c.Gateway.Listen == "" {
		c.Gateway.Listen = DefaultListen
	}
	if c.Gateway.RateLimitPerSec <= 0 {
		c.Gateway.RateLimitPerSec = DefaultRateLimit
	}
	if c.Gateway.Burst <= 0 {
		c.Gateway.Burst = DefaultBurst
	}
	if c.Gateway.CacheTTLSeconds <= 0 {
		c.Gateway.CacheTTLSeconds = DefaultCacheTTL
	}
	c.Gateway.CacheTTL = time.Duration(c.Gateway.CacheTTLSeconds) * time.Second

	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(Dir(), "audit.log")
	}
	if c.Audit.MaxSizeMB <= 0 {
		c.Audit.MaxSizeMB = DefaultAuditMaxSizeMB
	}
	if c.Audit.MaxBackups <= 0 {
		c.Audit.MaxBackups = DefaultAuditBackups
	}
}

// Validate checks values defaults cannot repair
func (c *Config) Validate() error {
	vb := &util.ValidationBuilder{}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		vb.AddErrorf("api.base_url %q must start with http:// or https://", c.API.BaseURL)
	}
	switch c.Credential.Backend {
	case BackendFile:
	case BackendRedis:
		vb.Add(c.Credential.RedisAddr != "", "credential.redis_addr is required for the redis backend")
	default:
		vb.AddErrorf("credential.backend %q must be %q or %q", c.Credential.Backend, BackendFile, BackendRedis)
	}
	vb.Add(!c.Tunnel.Enabled() || c.Tunnel.User != "", "tunnel.user is required when tunnel.host is set")
	return vb.Build()
}

// Save writes cfg to path as YAML
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
