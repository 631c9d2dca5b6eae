// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/filter"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/protocols"
	"firestige.xyz/strix/internal/render"
)

// Config is the top-level configuration.
// Maps to the `strix:` root key in YAML.
type Config struct {
	Log       log.Config      `mapstructure:"log"`
	Dissect   DissectConfig   `mapstructure:"dissect"`
	Protocols ProtocolsConfig `mapstructure:"protocols"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Output    OutputConfig    `mapstructure:"output"`
}

// ─── Dissection ───

// DissectConfig controls the worker pool and tree construction.
type DissectConfig struct {
	Workers  int  `mapstructure:"workers"` // 0 = GOMAXPROCS
	Ordered  bool `mapstructure:"ordered"`
	Tree     bool `mapstructure:"tree"`
	MaxDepth int  `mapstructure:"max_depth"`
	// Filter is a classic BPF program in tcpdump -ddd form; frames it
	// rejects are skipped.
	Filter string `mapstructure:"filter"`
}

// ProtocolsConfig holds per-protocol preferences and the disabled list.
type ProtocolsConfig struct {
	Preferences map[string]map[string]any `mapstructure:"preferences"`
	Disabled    []string                  `mapstructure:"disabled"`
}

// Options converts the section into registration options.
func (p ProtocolsConfig) Options() protocols.Options {
	return protocols.Options{
		Preferences: p.Preferences,
		Disabled:    p.Disabled,
	}
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Output ───

type OutputConfig struct {
	Format string `mapstructure:"format"` // text / json / yaml / summary / protobuf
	Hidden bool   `mapstructure:"hidden"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `strix: ...`.
type configRoot struct {
	Strix Config `mapstructure:"strix"`
}

// Load loads configuration from file.
// The YAML file uses `strix:` as root key; env vars use the STRIX_ prefix (e.g., STRIX_LOG_LEVEL).
// An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `strix.` key prefix maps to `STRIX_` through the key replacer
	// (key "strix.log.level" → env "STRIX_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Strix

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "strix." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("strix.log.level", "info")
	v.SetDefault("strix.log.pattern", log.DefaultPattern)
	v.SetDefault("strix.log.time", log.DefaultTimeLayout)

	// Dissect defaults
	v.SetDefault("strix.dissect.workers", 0)
	v.SetDefault("strix.dissect.ordered", true)
	v.SetDefault("strix.dissect.tree", true)
	v.SetDefault("strix.dissect.max_depth", core.DefaultMaxDepth)
	v.SetDefault("strix.dissect.filter", "")

	// Metrics defaults
	v.SetDefault("strix.metrics.enabled", false)
	v.SetDefault("strix.metrics.listen", ":9091")
	v.SetDefault("strix.metrics.path", "/metrics")

	// Output defaults
	v.SetDefault("strix.output.format", render.FormatText)
	v.SetDefault("strix.output.hidden", false)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	for i, a := range cfg.Log.Appenders {
		if a.Type != "console" && a.Type != "file" {
			return fmt.Errorf("%w: log.appenders[%d]: unsupported type %q (must be console/file)", core.ErrConfigInvalid, i, a.Type)
		}
	}

	// ── Dissect ──
	if cfg.Dissect.Workers < 0 {
		return fmt.Errorf("%w: dissect.workers must not be negative, got %d", core.ErrConfigInvalid, cfg.Dissect.Workers)
	}
	if cfg.Dissect.Workers == 0 {
		cfg.Dissect.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Dissect.MaxDepth <= 0 {
		cfg.Dissect.MaxDepth = core.DefaultMaxDepth
	}
	if cfg.Dissect.Filter != "" {
		if _, err := filter.Compile(cfg.Dissect.Filter); err != nil {
			return fmt.Errorf("%w: dissect.filter: %v", core.ErrConfigInvalid, err)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("%w: metrics.path must start with '/', got %q", core.ErrConfigInvalid, cfg.Metrics.Path)
		}
	}

	// ── Output ──
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	if !slices.Contains(render.Formats, cfg.Output.Format) {
		return fmt.Errorf("%w: invalid output format: %s (must be %s)",
			core.ErrConfigInvalid, cfg.Output.Format, strings.Join(render.Formats, "/"))
	}

	return nil
}
