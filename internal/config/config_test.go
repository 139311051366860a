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

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.QueryMaxConcurrency)
	assert.Equal(t, 5*time.Second, cfg.QueryDefaultDeadline)
	assert.True(t, cfg.WarmstartEnabled)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastfind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
query:
  max_concurrency: 16
volumes:
  include: ["C:", "D:"]
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.QueryMaxConcurrency)
	assert.Equal(t, []string{"C:", "D:"}, cfg.VolumesInclude)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestLoadFallsBackToDefaultsWhenNoFileFound(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Defaults().QueryMaxConcurrency, cfg.QueryMaxConcurrency)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastfind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  max_concurrency: 4\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("query.max_concurrency", 32, "")
	require.NoError(t, flags.Parse([]string{"--query.max_concurrency=32"}))

	cfg, err := Load(Options{ConfigFile: path, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.QueryMaxConcurrency)
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := Defaults()
	cfg.QueryMaxConcurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestLogFormatSetRejectsUnknown(t *testing.T) {
	var f LogFormat
	assert.Error(t, f.Set("potato"))
	assert.NoError(t, f.Set("json"))
	assert.Equal(t, LogFormatJSON, f)
	assert.Equal(t, "json", f.String())
}
