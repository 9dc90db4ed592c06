// Package config loads pg-lineage settings from defaults, a YAML file,
// PG_LINEAGE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/nnaka2992/pg-lineage/internal/lineage"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

const (
	// EnvPrefix prefixes every environment variable. Nested keys use a
	// double underscore: PG_LINEAGE_SERVER__ADDR sets server.addr.
	EnvPrefix = "PG_LINEAGE_"

	// DefaultFile is looked up in the working directory when no file is given.
	DefaultFile = "pg-lineage.yaml"

	DefaultAddr           = ":8080"
	DefaultCacheSize      = 256
	DefaultMaxBodyBytes   = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds every setting of the CLI and the HTTP server.
type Config struct {
	Output      string       `koanf:"output"`
	IDScheme    string       `koanf:"id_scheme"`
	FactMarkers []string     `koanf:"fact_markers"`
	MaxDepth    int          `koanf:"max_depth"`
	LogLevel    string       `koanf:"log_level"`
	Server      ServerConfig `koanf:"server"`

	// File is the config file that was read, empty if none.
	File string `koanf:"-"`
}

// ServerConfig configures `pg-lineage serve`.
type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	CacheSize      int           `koanf:"cache_size"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// flagKeys maps flag names whose config key is not the snake_case form of
// the flag name.
var flagKeys = map[string]string{
	"fact-marker": "fact_markers",
	"addr":        "server.addr",
	"cache-size":  "server.cache_size",
}

func defaults() map[string]any {
	return map[string]any{
		"output":                 OutputText,
		"id_scheme":              string(lineage.IDSequential),
		"fact_markers":           lineage.DefaultFactMarkers,
		"max_depth":              lineage.DefaultMaxDepth,
		"log_level":              "warn",
		"server.addr":            DefaultAddr,
		"server.cache_size":      DefaultCacheSize,
		"server.max_body_bytes":  DefaultMaxBodyBytes,
		"server.request_timeout": DefaultRequestTimeout.String(),
	}
}

// LoadDotEnv exports the variables of a .env file that are not already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration. Precedence, highest first: flags that were
// explicitly set, environment variables, the config file, defaults.
// cfgFile may be empty, in which case DefaultFile is used if it exists.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
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
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envValue turns PG_LINEAGE_SERVER__ADDR into server.addr. Fact markers
// are given comma separated.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "fact_markers" {
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile
	}
	return ""
}

// Validate checks values that the loaders cannot type-check.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output format %q (want text, json or yaml)", c.Output)
	}
	if _, err := lineage.ParseIDScheme(c.IDScheme); err != nil {
		return err
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("server.cache_size must not be negative, got %d", c.Server.CacheSize)
	}
	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ExtractorOptions converts the lineage settings into extractor options.
func (c *Config) ExtractorOptions(logger *slog.Logger) []lineage.Option {
	scheme, _ := lineage.ParseIDScheme(c.IDScheme)
	return []lineage.Option{
		lineage.WithLogger(logger),
		lineage.WithIDScheme(scheme),
		lineage.WithFactMarkers(c.FactMarkers...),
		lineage.WithMaxDepth(c.MaxDepth),
	}
}
