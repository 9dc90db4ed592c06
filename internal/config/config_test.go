package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("output", "o", OutputText, "")
	fs.String("id-scheme", "sequential", "")
	fs.StringSlice("fact-marker", nil, "")
	fs.Int("max-depth", 64, "")
	fs.String("log-level", "warn", "")
	fs.String("addr", DefaultAddr, "")
	fs.Int("cache-size", DefaultCacheSize, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, OutputText, cfg.Output)
	assert.Equal(t, "sequential", cfg.IDScheme)
	assert.Equal(t, []string{"app", "dm", "dwd", "dws"}, cfg.FactMarkers)
	assert.Equal(t, 64, cfg.MaxDepth)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultCacheSize, cfg.Server.CacheSize)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.Server.MaxBodyBytes)
	assert.Equal(t, DefaultRequestTimeout, cfg.Server.RequestTimeout)
	assert.Empty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, DefaultFile, `output: yaml
id_scheme: random
fact_markers: [fct_, agg_]
max_depth: 10
server:
  addr: ":9000"
  request_timeout: 5s
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultFile, cfg.File)
		assert.Equal(t, OutputYAML, cfg.Output)
		assert.Equal(t, "random", cfg.IDScheme)
		assert.Equal(t, []string{"fct_", "agg_"}, cfg.FactMarkers)
		assert.Equal(t, 10, cfg.MaxDepth)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
		assert.Equal(t, DefaultCacheSize, cfg.Server.CacheSize)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("PG_LINEAGE_OUTPUT", "json")
		t.Setenv("PG_LINEAGE_MAX_DEPTH", "20")
		t.Setenv("PG_LINEAGE_FACT_MARKERS", "ods_, dwd_")
		t.Setenv("PG_LINEAGE_SERVER__ADDR", ":7000")

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, OutputJSON, cfg.Output)
		assert.Equal(t, 20, cfg.MaxDepth)
		assert.Equal(t, []string{"ods_", "dwd_"}, cfg.FactMarkers)
		assert.Equal(t, ":7000", cfg.Server.Addr)
	})

	t.Run("changed flags over env", func(t *testing.T) {
		t.Setenv("PG_LINEAGE_OUTPUT", "json")
		t.Setenv("PG_LINEAGE_SERVER__ADDR", ":7000")

		flags := testFlags(t, "-o", "text", "--fact-marker", "x_", "--fact-marker", "y_", "--addr", ":6000")
		cfg, err := Load("", flags)
		require.NoError(t, err)
		assert.Equal(t, OutputText, cfg.Output)
		assert.Equal(t, []string{"x_", "y_"}, cfg.FactMarkers)
		assert.Equal(t, ":6000", cfg.Server.Addr)
		// unchanged flags keep the file value
		assert.Equal(t, "random", cfg.IDScheme)
		assert.Equal(t, 10, cfg.MaxDepth)
	})
}

func TestLoadExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "custom.yaml", "log_level: debug\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"output", "output: xml\n", "invalid output format"},
		{"id scheme", "id_scheme: uuid\n", "unknown id scheme"},
		{"max depth", "max_depth: 0\n", "max_depth must be positive"},
		{"log level", "log_level: loud\n", "invalid log level"},
		{"cache size", "server:\n  cache_size: -1\n", "cache_size"},
		{"body size", "server:\n  max_body_bytes: 0\n", "max_body_bytes"},
		{"yaml", "output: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			path := writeFile(t, t.TempDir(), "cfg.yaml", tt.content)
			_, err := Load(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "PG_LINEAGE_TEST_DOTENV=from-file\n")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("PG_LINEAGE_TEST_DOTENV") })
	assert.Equal(t, "from-file", os.Getenv("PG_LINEAGE_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestExtractorOptions(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Len(t, cfg.ExtractorOptions(nil), 4)
}
