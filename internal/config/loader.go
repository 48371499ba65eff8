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

// DefaultPath is where the daemon looks for its configuration relative to the
// working directory.
const DefaultPath = "clusterconfig.json"

// Config holds the scaling parameters for the worker pool. Each control-loop
// tick reads one immutable snapshot via Store.Current.
type Config struct {
	Model                       string  `json:"model" yaml:"model" toml:"model"`
	MinInstances                int     `json:"min_instances" yaml:"min_instances" toml:"min_instances"`
	MaxInstances                int     `json:"max_instances" yaml:"max_instances" toml:"max_instances"`
	MaxConcurrency              int     `json:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency"`
	IdleTimeoutSeconds          int     `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	ScaleUpLoadThreshold        float64 `json:"scale_up_load_threshold" yaml:"scale_up_load_threshold" toml:"scale_up_load_threshold"`
	ScaleDownLoadThreshold      float64 `json:"scale_down_load_threshold" yaml:"scale_down_load_threshold" toml:"scale_down_load_threshold"`
	ScaleUpRps                  float64 `json:"scale_up_rps" yaml:"scale_up_rps" toml:"scale_up_rps"`
	PredictiveRpsWindow         int     `json:"predictive_rps_window" yaml:"predictive_rps_window" toml:"predictive_rps_window"`
	PredictiveRpsTrendThreshold float64 `json:"predictive_rps_trend_threshold" yaml:"predictive_rps_trend_threshold" toml:"predictive_rps_trend_threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:                       "llama3",
		MinInstances:                1,
		MaxInstances:                4,
		MaxConcurrency:              4,
		IdleTimeoutSeconds:          300,
		ScaleUpLoadThreshold:        0.7,
		ScaleDownLoadThreshold:      0.2,
		ScaleUpRps:                  50,
		PredictiveRpsWindow:         10,
		PredictiveRpsTrendThreshold: 5,
	}
}

// Normalize replaces unset or invalid fields with defaults so a partial file
// still yields an operable configuration.
func Normalize(cfg Config) Config {
	def := Default()
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = def.Model
	}
	if cfg.MinInstances <= 0 {
		cfg.MinInstances = def.MinInstances
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = def.MaxInstances
	}
	if cfg.MaxInstances < cfg.MinInstances {
		cfg.MaxInstances = cfg.MinInstances
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.IdleTimeoutSeconds <= 0 {
		cfg.IdleTimeoutSeconds = def.IdleTimeoutSeconds
	}
	if cfg.ScaleUpLoadThreshold <= 0 || cfg.ScaleUpLoadThreshold > 1 {
		cfg.ScaleUpLoadThreshold = def.ScaleUpLoadThreshold
	}
	if cfg.ScaleDownLoadThreshold <= 0 || cfg.ScaleDownLoadThreshold > 1 {
		cfg.ScaleDownLoadThreshold = def.ScaleDownLoadThreshold
	}
	if cfg.ScaleDownLoadThreshold >= cfg.ScaleUpLoadThreshold {
		cfg.ScaleUpLoadThreshold = def.ScaleUpLoadThreshold
		cfg.ScaleDownLoadThreshold = def.ScaleDownLoadThreshold
	}
	if cfg.ScaleUpRps <= 0 {
		cfg.ScaleUpRps = def.ScaleUpRps
	}
	if cfg.PredictiveRpsWindow <= 0 {
		cfg.PredictiveRpsWindow = def.PredictiveRpsWindow
	}
	if cfg.PredictiveRpsTrendThreshold <= 0 {
		cfg.PredictiveRpsTrendThreshold = def.PredictiveRpsTrendThreshold
	}
	return cfg
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

// LoadOrCreate loads path, creating it with defaults if it does not exist.
// Only the JSON form is written; yaml/toml files are the operator's to manage.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		def := Default()
		b, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return Config{}, err
		}
		if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
			return Config{}, err
		}
		return def, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return Normalize(cfg), nil
}
