package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address   string `yaml:"address"`
		ClientURL string `yaml:"client_url"`
		LogLevel  string `yaml:"log_level"`
	} `yaml:"server"`

	Database struct {
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Session struct {
		SendBufferSize int           `yaml:"send_buffer_size"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		// GatedJoins requires a stored permission entry before a user may
		// join a document's room. Off by default: any authenticated user
		// who knows the id can join, matching REST-independent behavior.
		GatedJoins bool `yaml:"gated_joins"`
	} `yaml:"session"`
}

// Load reads the optional YAML config file and applies environment
// overrides. A missing file is not an error; env vars alone are enough.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Address = ":8080"
	cfg.Server.LogLevel = "info"
	cfg.Database.SSLMode = "require"
	cfg.Session.SendBufferSize = 256
	cfg.Session.PingInterval = 30 * time.Second
	return cfg
}

func applyEnv(cfg *Config) {
	setEnv(&cfg.Server.Address, "SERVER_ADDRESS")
	setEnv(&cfg.Server.ClientURL, "CLIENT_URL")
	setEnv(&cfg.Server.LogLevel, "LOG_LEVEL")
	setEnv(&cfg.Database.User, "user")
	setEnv(&cfg.Database.Password, "password")
	setEnv(&cfg.Database.Host, "host")
	setEnv(&cfg.Database.Port, "port")
	setEnv(&cfg.Database.Name, "dbname")
	setEnv(&cfg.Database.SSLMode, "sslmode")
	setEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	if v := strings.TrimSpace(os.Getenv("GATED_JOINS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Session.GatedJoins = b
		}
	}
}

func setEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// DSN builds the postgres connection string from the database section.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host,
		c.Database.Port, c.Database.Name, c.Database.SSLMode)
}
