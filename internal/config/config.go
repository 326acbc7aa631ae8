// Package config loads the geococo configuration from defaults, an optional
// YAML file, GEOCOCO_ environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/menta2k/geococo/pkg/processing"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// use a double underscore: GEOCOCO_CHIP__SIZE sets chip.size.
const EnvPrefix = "GEOCOCO_"

// Config holds the application configuration
type Config struct {
	Chip        ChipConfig   `koanf:"chip"`
	Repair      RepairConfig `koanf:"repair"`
	Log         LogConfig    `koanf:"log"`
	Workers     int          `koanf:"workers"`
	Overwrite   bool         `koanf:"overwrite"`
	MetricsFile string       `koanf:"metrics_file"`
}

// ChipConfig holds configuration for chipping
type ChipConfig struct {
	Size              int    `koanf:"size"`
	Format            string `koanf:"format"`
	Quality           int    `koanf:"quality"`
	Lossless          bool   `koanf:"lossless"`
	RGB               bool   `koanf:"rgb"`
	FirstImageID      int64  `koanf:"first_image_id"`
	FirstAnnotationID int64  `koanf:"first_annotation_id"`
	SwapOrigin        bool   `koanf:"swap_origin"`
}

// RepairConfig holds configuration for boundary repair
type RepairConfig struct {
	Legacy bool `koanf:"legacy"`
	Strict bool `koanf:"strict"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Chip: ChipConfig{
			Size:              512,
			Format:            processing.FormatPNG,
			Quality:           90,
			FirstImageID:      1,
			FirstAnnotationID: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Workers: 4,
	}
}

func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"chip.size":                d.Chip.Size,
		"chip.format":              d.Chip.Format,
		"chip.quality":             d.Chip.Quality,
		"chip.lossless":            d.Chip.Lossless,
		"chip.rgb":                 d.Chip.RGB,
		"chip.first_image_id":      d.Chip.FirstImageID,
		"chip.first_annotation_id": d.Chip.FirstAnnotationID,
		"chip.swap_origin":         d.Chip.SwapOrigin,
		"repair.legacy":            d.Repair.Legacy,
		"repair.strict":            d.Repair.Strict,
		"log.level":                d.Log.Level,
		"log.format":               d.Log.Format,
		"workers":                  d.Workers,
		"overwrite":                d.Overwrite,
		"metrics_file":             d.MetricsFile,
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"size":                "chip.size",
	"format":              "chip.format",
	"quality":             "chip.quality",
	"lossless":            "chip.lossless",
	"rgb":                 "chip.rgb",
	"first-image-id":      "chip.first_image_id",
	"first-annotation-id": "chip.first_annotation_id",
	"swap-origin":         "chip.swap_origin",
	"legacy":              "repair.legacy",
	"strict":              "repair.strict",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"workers":             "workers",
	"overwrite":           "overwrite",
	"metrics-file":        "metrics_file",
}

// Load builds the configuration. Precedence (highest to lowest):
// flags > env vars > config file > defaults. cfgFile may be empty; flags may
// be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Chip.Size < 1 {
		return fmt.Errorf("chip.size must be positive")
	}
	if _, err := processing.NormalizeFormat(c.Chip.Format); err != nil {
		return fmt.Errorf("chip.format: %w", err)
	}
	if c.Chip.Quality < 1 || c.Chip.Quality > 100 {
		return fmt.Errorf("chip.quality must be between 1 and 100")
	}
	if c.Chip.FirstImageID < 0 || c.Chip.FirstAnnotationID < 0 {
		return fmt.Errorf("chip.first_image_id and chip.first_annotation_id must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// GetConfigPath returns the default configuration file path if one exists:
// ./geococo.yaml, then ~/.config/geococo/config.yaml.
func GetConfigPath() string {
	for _, name := range []string{"geococo.yaml", "geococo.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".config", "geococo", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
