package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/retry"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Audio     AudioConfig     `yaml:"audio"`
	Retry     RetryConfig     `yaml:"retry"`
	Proxy     ProxyConfig     `yaml:"proxy"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	SQLiteDir string `yaml:"sqlite_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig guards /api/v1 with X-API-Key when APIKey is set.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// AudioConfig selects the player used for countdown cues. An empty Command
// falls back to the terminal bell.
type AudioConfig struct {
	Command string `yaml:"command"`
	File    string `yaml:"file"`
}

type RetryConfig struct {
	Attempts    int `yaml:"attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

type ProxyConfig struct {
	LabelsBaseURL string `yaml:"labels_base_url"`
	LabelsAPIKey  string `yaml:"labels_api_key"`
	VisionURL     string `yaml:"vision_url"`
	VisionAPIKey  string `yaml:"vision_api_key"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Policy converts the retry section into a retry.Policy, filling unset
// fields from retry.DefaultPolicy.
func (r RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.Attempts > 0 {
		p.Attempts = r.Attempts
	}
	if r.BaseDelayMS > 0 {
		p.BaseDelay = time.Duration(r.BaseDelayMS) * time.Millisecond
	}
	if r.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(r.MaxDelayMS) * time.Millisecond
	}
	return p
}

// Default returns the configuration used when no file is given: local
// SQLite storage in ./data and the server on port 8080.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		Storage: StorageConfig{Backend: BackendSQLite, SQLiteDir: "data"},
		Tailscale: TailscaleConfig{
			Hostname: "tulog",
			StateDir: "tsnet-state",
		},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix TULOG_:
//
//	TULOG_SERVER_HOST, TULOG_SERVER_PORT,
//	TULOG_STORAGE_BACKEND, TULOG_SQLITE_DIR,
//	TULOG_DB_HOST, TULOG_DB_PORT, TULOG_DB_NAME,
//	TULOG_DB_USER, TULOG_DB_PASSWORD, TULOG_DB_SSLMODE,
//	TULOG_AUTH_API_KEY, TULOG_TAILSCALE_ENABLED, TULOG_AUDIO_COMMAND,
//	TULOG_LABELS_API_KEY, TULOG_VISION_URL, TULOG_VISION_API_KEY
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("TULOG_SERVER_HOST", &cfg.Server.Host)
	setInt("TULOG_SERVER_PORT", &cfg.Server.Port)
	setString("TULOG_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("TULOG_SQLITE_DIR", &cfg.Storage.SQLiteDir)
	setString("TULOG_DB_HOST", &cfg.Database.Host)
	setInt("TULOG_DB_PORT", &cfg.Database.Port)
	setString("TULOG_DB_NAME", &cfg.Database.Name)
	setString("TULOG_DB_USER", &cfg.Database.User)
	setString("TULOG_DB_PASSWORD", &cfg.Database.Password)
	setString("TULOG_DB_SSLMODE", &cfg.Database.SSLMode)
	setString("TULOG_AUTH_API_KEY", &cfg.Auth.APIKey)
	setString("TULOG_AUDIO_COMMAND", &cfg.Audio.Command)
	setString("TULOG_LABELS_API_KEY", &cfg.Proxy.LabelsAPIKey)
	setString("TULOG_VISION_URL", &cfg.Proxy.VisionURL)
	setString("TULOG_VISION_API_KEY", &cfg.Proxy.VisionAPIKey)

	if v := os.Getenv("TULOG_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
}

// validate checks required settings. Proxy secrets are not checked here;
// the proxy reports them at startup and answers 500 until they are set.
func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return trackerr.NewConfiguration("server.port", "is required")
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLiteDir == "" {
			return trackerr.NewConfiguration("storage.sqlite_dir", "is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return trackerr.NewConfiguration("database.host", "is required for the postgres backend")
		}
		if c.Database.Port == 0 {
			return trackerr.NewConfiguration("database.port", "is required for the postgres backend")
		}
		if c.Database.Name == "" {
			return trackerr.NewConfiguration("database.name", "is required for the postgres backend")
		}
		if c.Database.User == "" {
			return trackerr.NewConfiguration("database.user", "is required for the postgres backend")
		}
	default:
		return trackerr.NewConfiguration("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return trackerr.NewConfiguration("tailscale.hostname", "is required when tailscale is enabled")
	}
	if c.Retry.Attempts < 0 || c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < 0 {
		return trackerr.NewConfiguration("retry", "values must not be negative")
	}
	return nil
}
