// Package federation bootstraps a Time Warp process: it loads the
// component/address/logging configuration surface spec.md §6 calls for,
// wires up a Messenger, a transport.Server, and one engine.Loop per locally
// hosted component, and runs them until shutdown. Config loading follows
// the teacher's internal/config.LoadConfig shape: spf13/viper with
// environment-variable overrides, mapstructure tags, and a Validate step —
// here backed by go-playground/validator struct tags instead of the
// teacher's hand-written Validate method, since this module's config shape
// is flat enough for tags alone.
package federation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

// ComponentConfig describes one locally hosted component's static
// configuration, per spec.md §6's "set of local component configurations"
// surface.
type ComponentConfig struct {
	ID                model.ComponentId `mapstructure:"id" validate:"required"`
	CheckpointEveryN  int               `mapstructure:"checkpoint_every_n" validate:"omitempty,min=1"`
	CheckpointRatePS  float64           `mapstructure:"checkpoint_rate_per_second" validate:"omitempty,gt=0"`
}

// Config is the full process-level configuration surface.
type Config struct {
	// BindAddr is the local TCP address transport.Server listens on.
	BindAddr string `mapstructure:"bind_addr" validate:"required,hostname_port"`

	// Peers maps every remote ComponentId this process sends to, to its
	// host:port.
	Peers map[string]string `mapstructure:"peers"`

	// Components lists every component hosted by this process.
	Components []ComponentConfig `mapstructure:"components" validate:"required,min=1,dive"`

	// UseDependencyVector enables the supplemental dependency-vector
	// piggyback described in SPEC_FULL.md §5.
	UseDependencyVector bool `mapstructure:"use_dependency_vector"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig mirrors the teacher's internal/config.LogConfig shape: level,
// format, and an optional rotating file sink.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind_addr", "0.0.0.0:7000")
	v.SetDefault("use_dependency_vector", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// Load reads configuration from configPath (if non-empty), layering
// environment variable overrides (TIMEWARP_BIND_ADDR, TIMEWARP_LOG_LEVEL,
// ...) on top, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TIMEWARP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("federation: reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("federation: unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("federation: config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate runs struct-tag validation and the cross-field checks tags
// cannot express (peer address table keys must parse as ComponentId,
// component ids must be unique).
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	seen := make(map[model.ComponentId]bool, len(c.Components))
	for _, comp := range c.Components {
		if seen[comp.ID] {
			return fmt.Errorf("duplicate component id %s", comp.ID)
		}
		seen[comp.ID] = true
	}

	for key := range c.Peers {
		var id uint32
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			return fmt.Errorf("peer key %q is not a valid component id: %w", key, err)
		}
	}

	return nil
}

// AddressTable converts the string-keyed Peers map loaded from YAML/env
// into a model.ComponentId-keyed table for transport.Client.
func (c *Config) AddressTable() (map[model.ComponentId]string, error) {
	out := make(map[model.ComponentId]string, len(c.Peers))
	for key, addr := range c.Peers {
		var id uint32
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			return nil, fmt.Errorf("peer key %q is not a valid component id: %w", key, err)
		}
		out[model.ComponentId(id)] = addr
	}
	return out, nil
}
