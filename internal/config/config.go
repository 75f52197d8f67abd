package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Invites   InviteConfig    `yaml:"invites"`
	Admin     AdminConfig     `yaml:"admin"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type InviteConfig struct {
	// Ceiling is the number of invitations one principal may create per tree
	// within Window.
	Ceiling       int      `yaml:"ceiling"`
	Window        Duration `yaml:"window"`
	DefaultTTL    Duration `yaml:"default_ttl"`
	MaxTTL        Duration `yaml:"max_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type AdminConfig struct {
	// PrincipalIDs are seeded into the platform-admin directory at startup.
	PrincipalIDs []string `yaml:"principal_ids"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		DB: DBConfig{
			Path: "grove.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Invites: InviteConfig{
			Ceiling:       20,
			Window:        Duration(24 * time.Hour),
			DefaultTTL:    Duration(7 * 24 * time.Hour),
			MaxTTL:        Duration(30 * 24 * time.Hour),
			SweepInterval: Duration(time.Hour),
		},
	}

	if path := os.Getenv("GROVE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("GROVE_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("GROVE_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GROVE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("GROVE_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if dbPath := os.Getenv("GROVE_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("GROVE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if ceilingStr := os.Getenv("GROVE_INVITE_CEILING"); ceilingStr != "" {
		ceiling, err := strconv.Atoi(ceilingStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GROVE_INVITE_CEILING: %w", err)
		}
		cfg.Invites.Ceiling = ceiling
	}
	if windowStr := os.Getenv("GROVE_INVITE_WINDOW"); windowStr != "" {
		window, err := time.ParseDuration(windowStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GROVE_INVITE_WINDOW: %w", err)
		}
		cfg.Invites.Window = Duration(window)
	}
	if adminIDs := os.Getenv("GROVE_ADMIN_IDS"); adminIDs != "" {
		cfg.Admin.PrincipalIDs = splitIDs(adminIDs)
	}

	if cfg.Transport.Mode != "stdio" && cfg.Transport.Mode != "http" {
		return Config{}, fmt.Errorf("invalid transport mode %q", cfg.Transport.Mode)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
