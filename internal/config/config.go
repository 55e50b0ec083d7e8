// Package config provides configuration loading for the quiver server.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the server process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the record store location.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EmbeddingConfig holds embedding provider settings. An empty URL selects
// the deterministic in-process provider.
type EmbeddingConfig struct {
	URL               string  `yaml:"url"`
	APIKey            string  `yaml:"api_key"`
	Dimensions        int     `yaml:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// IndexConfig holds per-strategy index parameters, applied when indexes
// are attached at startup. Zero values select the built-in defaults.
type IndexConfig struct {
	IVF IVFConfig `yaml:"ivf"`
	NSW NSWConfig `yaml:"nsw"`
}

// IVFConfig holds IVF parameters.
type IVFConfig struct {
	Clusters int   `yaml:"clusters"`
	NProbe   int   `yaml:"n_probe"`
	Seed     int64 `yaml:"seed"`
}

// NSWConfig holds NSW parameters.
type NSWConfig struct {
	M              int `yaml:"m"`
	EFConstruction int `yaml:"ef_construction"`
	EFSearch       int `yaml:"ef_search"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Storage: StorageConfig{DataDir: "data"},
		Embedding: EmbeddingConfig{
			Dimensions:        1024,
			RequestsPerSecond: 10,
		},
	}
}

// Load reads the optional YAML config at path, applies defaults and then
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config values from QUIVER_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("QUIVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUIVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUIVER_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("QUIVER_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("QUIVER_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("QUIVER_EMBEDDING_DIMENSIONS"); v != "" {
		if dims, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = dims
		}
	}
}
