package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr            string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath       string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	ServedModelName string   `json:"served_model_name" yaml:"served_model_name" toml:"served_model_name"`
	LogLevel        string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	Device          string   `json:"device" yaml:"device" toml:"device"`
	WorkerBin       string   `json:"worker_bin" yaml:"worker_bin" toml:"worker_bin"`
	WorkerArgs      []string `json:"worker_args" yaml:"worker_args" toml:"worker_args"`
	MaxQueueDepth   int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds  int      `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled     bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
