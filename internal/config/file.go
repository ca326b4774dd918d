package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL  string        `yaml:"database_url"`
	ServerPort   string        `yaml:"server_port"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      string        `yaml:"timeout"`
	RedisURL     string        `yaml:"redis_url"`
	VoyageAPIKey string        `yaml:"voyage_api_key"`
	VoyageModel  string        `yaml:"voyage_model"`
	Catalog      CatalogConfig `yaml:"catalog"`
	Log          LogConfig     `yaml:"log"`
}

// LoadFromFile loads config from a YAML file. database_url is only required
// when requireDB is set.
func LoadFromFile(path string, requireDB bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if requireDB && f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:  f.DatabaseURL,
		ServerPort:   f.ServerPort,
		UserAgent:    f.UserAgent,
		RedisURL:     f.RedisURL,
		VoyageAPIKey: f.VoyageAPIKey,
		VoyageModel:  f.VoyageModel,
		Catalog:      f.Catalog,
		Log:          f.Log,
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			c.Timeout = d
		}
	}
	c.applyDefaults()
	return c, nil
}
