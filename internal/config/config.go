package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// #region types

// Config is the full engine configuration. Zero values are replaced by
// defaults at load time, so a partial YAML file is fine.
type Config struct {
	DBPath        string  `yaml:"db_path"`
	RetentionDays int     `yaml:"retention_days"`
	Epsilon       float64 `yaml:"epsilon"`
	LearningRate  float64 `yaml:"learning_rate"`
	Discount      float64 `yaml:"discount"`

	Embed EmbedConfig `yaml:"embed"`
	Gates GateConfig  `yaml:"gates"`
}

// EmbedConfig points at the embedding provider.
type EmbedConfig struct {
	Addr    string        `yaml:"addr"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// GateConfig holds the per-strategy confidence gates.
type GateConfig struct {
	RL       float64 `yaml:"rl"`
	FewShot  float64 `yaml:"few_shot"`
	Meta     float64 `yaml:"meta"`
	KNN      float64 `yaml:"knn"`
	AskBelow float64 `yaml:"ask_below"`
}

// #endregion types

// #region defaults

// Default returns the standard configuration.
func Default() Config {
	return Config{
		DBPath:        "brain.db",
		RetentionDays: 90,
		Epsilon:       0.2,
		LearningRate:  0.1,
		Discount:      0.9,
		Embed: EmbedConfig{
			Addr:    "http://localhost:11434",
			Model:   "nomic-embed-text",
			Timeout: 10 * time.Second,
		},
		Gates: GateConfig{
			RL:       0.8,
			FewShot:  0.75,
			Meta:     0.7,
			KNN:      0.7,
			AskBelow: 0.6,
		},
	}
}

// #endregion defaults

// #region load

// Load reads a YAML file over the defaults and then applies environment
// overrides. path may be empty to skip the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv layers environment variables over the file. Variables win.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BRAIN_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BRAIN_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionDays = n
		}
	}
	if v := os.Getenv("BRAIN_EPSILON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Epsilon = f
		}
	}
	if v := os.Getenv("EMBED_ADDR"); v != "" {
		cfg.Embed.Addr = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.Embed.Model = v
	}
	if v := os.Getenv("EMBED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Embed.Timeout = d
		}
	}
}

// #endregion load
