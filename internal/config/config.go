// Package config loads the snapcache command configuration.
//
// Layers, lowest precedence first:
//
//  1. Built-in defaults (Default).
//  2. Optional `.env` file in the working directory (dotenv values become
//     environment variables; existing variables win).
//  3. Optional YAML file passed to Load.
//  4. Environment variables prefixed `SNAPCACHE_`, where `__` maps to "."
//     (e.g. `SNAPCACHE_CACHE__MAX_SIZE` → cache.max_size).
//
// The merged tree is unmarshalled into Config and validated; any failure
// aborts startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "SNAPCACHE_"

// Cache holds the cache tunables.
type Cache struct {
	MaxSize      int           `koanf:"max_size"      validate:"min=1"`
	DefaultTTL   time.Duration `koanf:"default_ttl"   validate:"gte=0"`
	SnapshotPath string        `koanf:"snapshot_path" validate:"required"`
}

// Log holds logger settings.
type Log struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
	File   string `koanf:"file"`
}

// HTTP holds the serve command's listener settings.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

// Config is the aggregate returned by Load.
type Config struct {
	Cache Cache `koanf:"cache"`
	Log   Log   `koanf:"log"`
	HTTP  HTTP  `koanf:"http"`
}

// Default returns the built-in configuration. The snapshot lives in the
// working directory unless configured otherwise.
func Default() Config {
	return Config{
		Cache: Cache{
			MaxSize:      1024,
			SnapshotPath: "snapcache.json",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		HTTP: HTTP{
			ListenAddr: "127.0.0.1:8080",
		},
	}
}

var v = validator.New()

// Load merges defaults, .env, the YAML file at path (skipped when empty)
// and SNAPCACHE_ environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	// .env (optional, no error if missing)
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg, e.g. after command-line overrides were applied.
func Validate(cfg *Config) error {
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
