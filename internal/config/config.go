package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dayboard/internal/model"
	"dayboard/internal/recur"
)

type Config struct {
	Server    Server    `yaml:"server" json:"server"`
	Store     Store     `yaml:"store" json:"store"`
	Recurring Recurring `yaml:"recurring" json:"recurring"`
}

type Server struct {
	Addr string `yaml:"addr" json:"addr"`
}

type Store struct {
	// Backend: "memory" | "sqlite"
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

type Recurring struct {
	// TopUpHorizonDays: how far ahead every active template's generated
	// instances should reach before a top-up is triggered.
	TopUpHorizonDays int `yaml:"top_up_horizon_days" json:"top_up_horizon_days"`

	// GenerationLimits: per-frequency cap on instances emitted by one
	// expansion. Omitted frequencies keep their defaults.
	GenerationLimits map[string]int `yaml:"generation_limits" json:"generation_limits"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr: ":8080",
		},
		Store: Store{
			Backend: "sqlite",
			Path:    "data/dayboard.db",
		},
		Recurring: Recurring{
			TopUpHorizonDays: 14,
		},
	}
}

// Load reads the YAML config at path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("config: sqlite backend needs store.path")
	}
	if c.Recurring.TopUpHorizonDays <= 0 {
		c.Recurring.TopUpHorizonDays = Default().Recurring.TopUpHorizonDays
	}
	return nil
}

// Limits materializes the configured generation table over the defaults.
func (c *Config) Limits() recur.Limits {
	limits := recur.DefaultLimits()
	for freq, n := range c.Recurring.GenerationLimits {
		if n > 0 {
			limits[model.Frequency(freq)] = n
		}
	}
	return limits
}
