package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WORLDSYNC_"

//go:embed config.schema.json
var configSchema string

var compiledConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config.schema.json", configSchema)
})

// Config is the server configuration. Sources apply in order: defaults, YAML file,
// WORLDSYNC_* environment variables, then command-line flags in main.
type Config struct {
	Addr       string `yaml:"addr" json:"addr" env:"ADDR"`
	PublicURL  string `yaml:"public_url" json:"public_url" env:"PUBLIC_URL"`
	DBPath     string `yaml:"db_path" json:"db_path" env:"DB_PATH"`
	ArchiveDir string `yaml:"archive_dir" json:"archive_dir" env:"ARCHIVE_DIR"`
	Password   string `yaml:"password" json:"password" env:"PASSWORD"`

	TickRate           int `yaml:"tick_rate" json:"tick_rate" env:"TICK_RATE"`
	MovementIntervalMS int `yaml:"movement_interval_ms" json:"movement_interval_ms" env:"MOVEMENT_INTERVAL_MS"`
	FactionsIntervalMS int `yaml:"factions_interval_ms" json:"factions_interval_ms" env:"FACTIONS_INTERVAL_MS"`

	DefaultWorld string   `yaml:"default_world" json:"default_world" env:"DEFAULT_WORLD"`
	Worlds       []string `yaml:"worlds" json:"worlds" env:"WORLDS" envSeparator:","`
	MaxWorlds    int      `yaml:"max_worlds" json:"max_worlds" env:"MAX_WORLDS"`

	MaxConnsPerIP int `yaml:"max_conns_per_ip" json:"max_conns_per_ip" env:"MAX_CONNS_PER_IP"`
	MaxTotalConns int `yaml:"max_total_conns" json:"max_total_conns" env:"MAX_TOTAL_CONNS"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		DBPath:             "worldsync.db",
		TickRate:           DefaultTickRate,
		MovementIntervalMS: int(MovementInterval / time.Millisecond),
		FactionsIntervalMS: int(FactionsInterval / time.Millisecond),
		DefaultWorld:       "default",
		MaxWorlds:          16,
		MaxConnsPerIP:      5,
		MaxTotalConns:      1000,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file and the environment
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration against the embedded schema
func (c Config) Validate() error {
	schema, err := compiledConfigSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// WorldOptions returns the world tuning derived from c
func (c Config) WorldOptions() WorldOptions {
	return WorldOptions{
		TickRate:         c.TickRate,
		MovementInterval: time.Duration(c.MovementIntervalMS) * time.Millisecond,
		FactionsInterval: time.Duration(c.FactionsIntervalMS) * time.Millisecond,
	}
}
