package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Rcon         RconConfig         `yaml:"rcon"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Factorio     FactorioConfig     `yaml:"factorio"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
	StaticDir  string `yaml:"static_dir"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	PasswordHash  string        `yaml:"password_hash"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// RconConfig holds connection manager settings
type RconConfig struct {
	// HealthInterval is how often connected servers are probed.
	HealthInterval time.Duration `yaml:"health_interval"`
	// Timeout bounds dials and command round trips.
	Timeout time.Duration `yaml:"timeout"`
	// ScriptsDir is where file-backed command bodies are read from.
	ScriptsDir string `yaml:"scripts_dir"`
}

// IntegrationsConfig holds platform relay settings. OAuth happens in
// the relay; we only verify its shared token on the ingest endpoint.
type IntegrationsConfig struct {
	RelayToken string `yaml:"relay_token"`
}

// FactorioConfig holds matchmaking heartbeat lookup credentials
type FactorioConfig struct {
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.fillDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults filled, used when no
// config file exists yet.
func Default() *Config {
	var cfg Config
	cfg.fillDefaults()
	return &cfg
}

func (cfg *Config) fillDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8090
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files

	if cfg.Database.Path == "" {
		cfg.Database.Path = "rconpanel.db"
	}

	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	if cfg.Rcon.HealthInterval == 0 {
		cfg.Rcon.HealthInterval = 5 * time.Second
	}
	if cfg.Rcon.Timeout == 0 {
		cfg.Rcon.Timeout = 5 * time.Second
	}
	if cfg.Rcon.ScriptsDir == "" {
		cfg.Rcon.ScriptsDir = "scripts"
	}
}
