// Package config loads buildlink's configuration.
//
// Values come from, in increasing precedence: built-in defaults, the TOML
// config file ($XDG_CONFIG_HOME/buildlink/config.toml unless a path is
// given) and BUILDLINK_* environment variables, where the key path is
// upper-cased with dots replaced by underscores
// (BUILDLINK_CANCELLATION_THRESHOLD, BUILDLINK_BACKEND_OFFLINE).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task/cancel"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "BUILDLINK"

// ErrConfigExists is returned by WriteDefault when the file already exists.
var ErrConfigExists = errors.New("config file already exists")

// Config is the complete buildlink configuration.
type Config struct {
	Backend      backend.Settings   `mapstructure:"backend" toml:"backend"`
	Cancellation CancellationConfig `mapstructure:"cancellation" toml:"cancellation"`
	InitScripts  InitScriptConfig   `mapstructure:"init_scripts" toml:"init_scripts"`
	Plugins      PluginConfig       `mapstructure:"plugins" toml:"plugins"`
	Hooks        HookConfig         `mapstructure:"hooks" toml:"hooks"`
	Logging      LoggingConfig      `mapstructure:"logging" toml:"logging"`
}

// CancellationConfig controls cancellation support and shutdown timing.
type CancellationConfig struct {
	// Threshold is the minimum backend version that supports cancellation.
	Threshold string `mapstructure:"threshold" toml:"threshold"`
	// GraceSeconds is how long a cancelled build may take to stop before
	// it is killed.
	GraceSeconds int `mapstructure:"grace_seconds" toml:"grace_seconds"`
	// VersionTimeoutSeconds bounds the backend version probe.
	VersionTimeoutSeconds int `mapstructure:"version_timeout_seconds" toml:"version_timeout_seconds"`
}

// InitScriptConfig controls the generated init script.
type InitScriptConfig struct {
	// TempDir is where init scripts are written. Empty means the system
	// temp directory.
	TempDir string `mapstructure:"temp_dir" toml:"temp_dir"`
	// Keep leaves init scripts on disk after the launch, for debugging.
	Keep bool `mapstructure:"keep" toml:"keep"`
	// TestLogging adds console test event logging to test launches.
	TestLogging bool `mapstructure:"test_logging" toml:"test_logging"`
}

// PluginConfig controls Lua contributor scripts.
type PluginConfig struct {
	// Dir holds the *.lua contributor scripts.
	Dir string `mapstructure:"dir" toml:"dir"`
	// Watch reloads the scripts when they change.
	Watch bool `mapstructure:"watch" toml:"watch"`
	// TimeoutMs bounds a single script call.
	TimeoutMs int `mapstructure:"timeout_ms" toml:"timeout_ms"`
}

// HookConfig configures the built-in execution hooks.
type HookConfig struct {
	// Skip lists task name patterns (':'-separated glob). A request naming
	// a matching task is reported as done without launching a build.
	Skip []string `mapstructure:"skip" toml:"skip"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend: backend.Settings{
			DaemonVMOptions: []string{},
			Arguments:       []string{},
			Env:             map[string]string{},
		},
		Cancellation: CancellationConfig{
			Threshold:             cancel.DefaultThreshold,
			GraceSeconds:          10,
			VersionTimeoutSeconds: 30,
		},
		InitScripts: InitScriptConfig{
			TestLogging: true,
		},
		Plugins: PluginConfig{
			Dir:       filepath.Join(ConfigDir(), "plugins"),
			Watch:     true,
			TimeoutMs: 5000,
		},
		Hooks: HookConfig{
			Skip: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// CancelGrace returns the cancellation grace period.
func (c *CancellationConfig) CancelGrace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// VersionTimeout returns the version probe timeout.
func (c *CancellationConfig) VersionTimeout() time.Duration {
	return time.Duration(c.VersionTimeoutSeconds) * time.Second
}

// ThresholdVersion returns the parsed cancellation threshold.
func (c *CancellationConfig) ThresholdVersion() (backend.Version, error) {
	return backend.ParseVersion(c.Threshold)
}

// Timeout returns the per-call script timeout.
func (c *PluginConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LoggerConfig converts the logging section to a logger configuration
// writing to out.
func (c *LoggingConfig) LoggerConfig(out io.Writer) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Level)
	cfg.Format = logging.Format(strings.ToLower(c.Format))
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// SetDefaults registers every default value with v, so that environment
// overrides apply to keys missing from the config file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Backend
	v.SetDefault("backend.tool_path", defaults.Backend.ToolPath)
	v.SetDefault("backend.java_home", defaults.Backend.JavaHome)
	v.SetDefault("backend.service_dir", defaults.Backend.ServiceDir)
	v.SetDefault("backend.offline", defaults.Backend.Offline)
	v.SetDefault("backend.daemon_vm_options", defaults.Backend.DaemonVMOptions)
	v.SetDefault("backend.arguments", defaults.Backend.Arguments)
	v.SetDefault("backend.env", defaults.Backend.Env)

	// Cancellation
	v.SetDefault("cancellation.threshold", defaults.Cancellation.Threshold)
	v.SetDefault("cancellation.grace_seconds", defaults.Cancellation.GraceSeconds)
	v.SetDefault("cancellation.version_timeout_seconds", defaults.Cancellation.VersionTimeoutSeconds)

	// Init scripts
	v.SetDefault("init_scripts.temp_dir", defaults.InitScripts.TempDir)
	v.SetDefault("init_scripts.keep", defaults.InitScripts.Keep)
	v.SetDefault("init_scripts.test_logging", defaults.InitScripts.TestLogging)

	// Plugins
	v.SetDefault("plugins.dir", defaults.Plugins.Dir)
	v.SetDefault("plugins.watch", defaults.Plugins.Watch)
	v.SetDefault("plugins.timeout_ms", defaults.Plugins.TimeoutMs)

	// Hooks
	v.SetDefault("hooks.skip", defaults.Hooks.Skip)

	// Logging
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// NewViper returns a viper instance with defaults, environment overrides
// and the config file read in. An explicit path must exist; the default
// config file is optional.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(ConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// viper lower-cases map keys; environment variable names are case
	// sensitive, so take them verbatim from the file.
	if file := v.ConfigFileUsed(); file != "" && len(cfg.Backend.Env) > 0 {
		env, err := readEnvTable(file)
		if err != nil {
			return nil, err
		}
		cfg.Backend.Env = env
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// readEnvTable decodes the [backend.env] table of a TOML config file.
func readEnvTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc struct {
		Backend struct {
			Env map[string]string `toml:"env"`
		} `toml:"backend"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return doc.Backend.Env, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "buildlink")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buildlink"
	}
	return filepath.Join(home, ".config", "buildlink")
}

// ConfigFile returns the path to the default config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Encode writes cfg to w as TOML.
func Encode(w io.Writer, cfg *Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(cfg)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if err := Encode(f, Default()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}
