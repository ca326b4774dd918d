package config

import (
	"errors"
	"os"
	"time"

	"github.com/voyagen/channelfold/internal/models"
)

// ErrMissingDatabaseURL is returned when a database is required but DATABASE_URL is unset.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

const (
	defaultServerPort = "8080"
	defaultUserAgent  = "channelfold/1.0"
	defaultTimeout    = 30 * time.Second
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL"`
	ServerPort  string        `yaml:"server_port" env:"SERVER_PORT"`
	UserAgent   string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout     time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`

	VoyageAPIKey string `yaml:"voyage_api_key" env:"VOYAGE_API_KEY"`
	VoyageModel  string `yaml:"voyage_model" env:"VOYAGE_MODEL"`

	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
}

// CatalogConfig points at the remote channel catalog that selected channels are synced to.
type CatalogConfig struct {
	URL          string `yaml:"url" env:"CATALOG_URL"`
	Username     string `yaml:"username" env:"CATALOG_USERNAME"`
	Password     string `yaml:"password" env:"CATALOG_PASSWORD"`
	Token        string `yaml:"token" env:"CATALOG_TOKEN"`
	DefaultGroup string `yaml:"default_group" env:"DEFAULT_GROUP"`
}

// LogConfig selects the log level (debug, info, warn, error) and format (json, console).
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load builds config from environment variables and requires DATABASE_URL.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the current directory.
func Load() (*Config, error) {
	c := LoadOptional()
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

// LoadOptional is Load for commands that work without a database.
func LoadOptional() *Config {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ServerPort:   os.Getenv("SERVER_PORT"),
		UserAgent:    os.Getenv("FETCHER_USER_AGENT"),
		RedisURL:     os.Getenv("REDIS_URL"),
		VoyageAPIKey: os.Getenv("VOYAGE_API_KEY"),
		VoyageModel:  os.Getenv("VOYAGE_MODEL"),
		Catalog: CatalogConfig{
			URL:          os.Getenv("CATALOG_URL"),
			Username:     os.Getenv("CATALOG_USERNAME"),
			Password:     os.Getenv("CATALOG_PASSWORD"),
			Token:        os.Getenv("CATALOG_TOKEN"),
			DefaultGroup: os.Getenv("DEFAULT_GROUP"),
		},
		Log: LogConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Catalog.DefaultGroup == "" {
		c.Catalog.DefaultGroup = models.DefaultGroupName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
