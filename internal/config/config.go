// Package config loads the service's configuration from a file, the
// environment, and command-line flags, in that increasing order of
// precedence, per SPEC_FULL.md §6's recognized key list. There is no
// dynamic reload: the Supervisor reads a Config once at startup.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogFormat selects the logrus formatter, following the same
// pflag.Value/json.Unmarshaler enum idiom as the reference codebase's own
// VFS cache-mode setting.
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

var logFormatNames = map[LogFormat]string{
	LogFormatText: "text",
	LogFormatJSON: "json",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(f))
}

// Set implements pflag.Value.
func (f *LogFormat) Set(s string) error {
	for mode, name := range logFormatNames {
		if name == s {
			*f = mode
			return nil
		}
	}
	return fmt.Errorf("unknown log format %q", s)
}

// Type implements pflag.Value.
func (f LogFormat) Type() string { return "LogFormat" }

var _ pflag.Value = (*LogFormat)(nil)

// Config is the fully resolved set of options the Supervisor and its
// components need at startup.
type Config struct {
	MemoryBudgetBytes   uint64
	MemoryEnableTrigrams bool

	VolumesInclude []string
	VolumesExclude []string

	QueryDefaultDeadline time.Duration
	QueryMaxConcurrency  int

	IPCAllowedPrincipals []string

	RebuildParallelism int

	WarmstartEnabled bool

	LogLevel  string
	LogFormat LogFormat

	DataDir string
}

// Defaults returns the spec's documented defaults, before any file, env,
// or flag overrides are layered on.
func Defaults() Config {
	return Config{
		MemoryBudgetBytes:    defaultMemoryBudget(),
		MemoryEnableTrigrams: true,
		QueryDefaultDeadline: 5 * time.Second,
		QueryMaxConcurrency:  8,
		RebuildParallelism:   minInt(8, runtime.NumCPU()),
		WarmstartEnabled:     true,
		LogLevel:             "info",
		LogFormat:            LogFormatText,
		DataDir:              `C:\ProgramData\fastfind`,
	}
}

// defaultMemoryBudget returns min(25% of physical RAM, 1 GiB), per
// SPEC_FULL.md §6. physicalRAMBytes is a Win32 GlobalMemoryStatusEx call
// on Windows (ramquery_windows.go); on any other OS, or if the query
// fails, the 1 GiB ceiling is used outright.
func defaultMemoryBudget() uint64 {
	const oneGiB = 1 << 30
	total, err := physicalRAMBytes()
	if err != nil || total == 0 {
		return oneGiB
	}
	if quarter := total / 4; quarter < oneGiB {
		return quarter
	}
	return oneGiB
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Options controls where Load reads configuration from.
type Options struct {
	// ConfigFile is an explicit path to a config file (TOML/YAML/JSON,
	// detected by extension). Empty means "search the default locations".
	ConfigFile string
	// Flags, if non-nil, is consulted after the file and environment
	// layers, giving command-line overrides the highest precedence.
	Flags *pflag.FlagSet
}

// Load builds a Config starting from Defaults, layering in a config file
// (if found), then environment variables prefixed FASTFIND_, then flags.
func Load(opts Options) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("fastfind")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("fastfind")
		v.AddConfigPath(".")
		v.AddConfigPath(`C:\ProgramData\fastfind`)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	return decode(v, cfg)
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("memory.budget_bytes", cfg.MemoryBudgetBytes)
	v.SetDefault("memory.enable_trigrams", cfg.MemoryEnableTrigrams)
	v.SetDefault("volumes.include", cfg.VolumesInclude)
	v.SetDefault("volumes.exclude", cfg.VolumesExclude)
	v.SetDefault("query.default_deadline_ms", cfg.QueryDefaultDeadline.Milliseconds())
	v.SetDefault("query.max_concurrency", cfg.QueryMaxConcurrency)
	v.SetDefault("ipc.allowed_principals", cfg.IPCAllowedPrincipals)
	v.SetDefault("rebuild.parallelism", cfg.RebuildParallelism)
	v.SetDefault("warmstart.enabled", cfg.WarmstartEnabled)
	v.SetDefault("log.level", cfg.LogLevel)
	v.SetDefault("log.format", cfg.LogFormat.String())
	v.SetDefault("data_dir", cfg.DataDir)
}

func decode(v *viper.Viper, cfg Config) (Config, error) {
	cfg.MemoryBudgetBytes = v.GetUint64("memory.budget_bytes")
	cfg.MemoryEnableTrigrams = v.GetBool("memory.enable_trigrams")
	cfg.VolumesInclude = v.GetStringSlice("volumes.include")
	cfg.VolumesExclude = v.GetStringSlice("volumes.exclude")
	cfg.QueryDefaultDeadline = time.Duration(v.GetInt64("query.default_deadline_ms")) * time.Millisecond
	cfg.QueryMaxConcurrency = v.GetInt("query.max_concurrency")
	cfg.IPCAllowedPrincipals = v.GetStringSlice("ipc.allowed_principals")
	cfg.RebuildParallelism = v.GetInt("rebuild.parallelism")
	cfg.WarmstartEnabled = v.GetBool("warmstart.enabled")
	cfg.LogLevel = v.GetString("log.level")
	cfg.DataDir = v.GetString("data_dir")

	if err := cfg.LogFormat.Set(v.GetString("log.format")); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with; a
// rejection here maps to the service's exit code 3 (configuration invalid).
func (c Config) Validate() error {
	if c.QueryMaxConcurrency <= 0 {
		return fmt.Errorf("config: query.max_concurrency must be positive, got %d", c.QueryMaxConcurrency)
	}
	if c.RebuildParallelism <= 0 {
		return fmt.Errorf("config: rebuild.parallelism must be positive, got %d", c.RebuildParallelism)
	}
	if c.QueryDefaultDeadline <= 0 {
		return fmt.Errorf("config: query.default_deadline_ms must be positive, got %s", c.QueryDefaultDeadline)
	}
	for _, drive := range c.VolumesInclude {
		if len(drive) < 1 {
			return fmt.Errorf("config: volumes.include entries must not be empty")
		}
	}
	return nil
}
