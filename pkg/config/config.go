package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StrategyMemory = "memory"
	StrategySpill  = "spill"
	StrategySQLite = "sqlite"
)

type Config struct {
	Build BuildConfig `yaml:"build"`
	Log   LogConfig   `yaml:"log"`
}

type BuildConfig struct {
	Strategy       string `yaml:"strategy"`         // memory, spill or sqlite
	TempDir        string `yaml:"temp_dir"`         // "" = next to the index file
	SpillBatchSize int    `yaml:"spill_batch_size"` // rows per sqlite transaction
	BTreeDegree    int    `yaml:"btree_degree"`
	ReadBufferSize int    `yaml:"read_buffer_size"` // data file read buffer, bytes
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func Default() *Config {
	return &Config{
		Build: BuildConfig{
			Strategy:       StrategyMemory,
			SpillBatchSize: 1000,
			BTreeDegree:    32,
			ReadBufferSize: 64 * 1024,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads configPath over the defaults. With an empty path it tries
// configs/lineidx.yaml and lineidx.yaml and falls back to the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/lineidx.yaml", "lineidx.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func ValidStrategy(s string) bool {
	switch s {
	case StrategyMemory, StrategySpill, StrategySQLite:
		return true
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := Default()
	if !ValidStrategy(cfg.Build.Strategy) {
		cfg.Build.Strategy = def.Build.Strategy
	}
	if cfg.Build.SpillBatchSize <= 0 {
		cfg.Build.SpillBatchSize = def.Build.SpillBatchSize
	}
	if cfg.Build.BTreeDegree < 2 {
		cfg.Build.BTreeDegree = def.Build.BTreeDegree
	}
	if cfg.Build.ReadBufferSize < 16 {
		cfg.Build.ReadBufferSize = def.Build.ReadBufferSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		cfg.Log.Format = def.Log.Format
	}
}
