package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/smbc/internal/bytesize"
	"github.com/marmos91/smbc/pkg/auth"
)

// Backend names accepted in ClientConfig.Backend.
const (
	BackendSMB2   = "smb2"
	BackendMemory = "memory"
)

// Config represents the smbc client configuration.
//
// It covers the ambient concerns of a client process (logging, tracing,
// metrics), the connection defaults handed to every smbc.Context, the async
// worker, the offline memory backend and the static credential table.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SMBC_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Client holds the connection defaults
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// Async configures the worker behind the Async operations
	Async AsyncConfig `mapstructure:"async" yaml:"async"`

	// Memory describes the servers of the in-process backend
	Memory MemoryConfig `mapstructure:"memory" yaml:"memory"`

	// Credentials is the static credential table. Entries are matched by
	// (server, share); "*" is a wildcard.
	Credentials []CredentialConfig `mapstructure:"credentials" validate:"dive" yaml:"credentials,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, every client operation becomes a span exported to an
// OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling controls Pyroscope continuous profiling
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether profiles are pushed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	// Default: cpu, inuse_space
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint. Zero disables the
	// endpoint while still collecting.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ClientConfig holds the defaults applied to every connection.
type ClientConfig struct {
	// Backend selects the connection backend: smb2 or memory
	// Default: smb2
	Backend string `mapstructure:"backend" validate:"required,oneof=smb2 memory" yaml:"backend"`

	// Workgroup, Username and Password are the fallback credentials used
	// for fields no credential entry and no URL supply.
	// Default: WORKGROUP / guest / ""
	Workgroup string `mapstructure:"workgroup" validate:"max=255" yaml:"workgroup"`
	Username  string `mapstructure:"username" validate:"max=255" yaml:"username"`
	Password  string `mapstructure:"password" validate:"max=255" yaml:"password,omitempty"`

	// NetbiosName is the workstation name sent during authentication
	NetbiosName string `mapstructure:"netbios_name" validate:"max=15" yaml:"netbios_name,omitempty"`

	// Port overrides the SMB port for URLs without one
	// Default: 445
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Timeout bounds connection establishment
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0" yaml:"timeout"`

	// RequireSigning refuses servers that do not sign messages
	RequireSigning bool `mapstructure:"require_signing" yaml:"require_signing"`

	// ReadChunk is the growth step when reading a file of unknown size
	// Default: 4KiB
	ReadChunk bytesize.ByteSize `mapstructure:"read_chunk" yaml:"read_chunk"`
}

// Defaults returns the fallback credential triple.
func (c ClientConfig) Defaults() auth.Credentials {
	return auth.Credentials{Workgroup: c.Workgroup, Username: c.Username, Password: c.Password}
}

// AsyncConfig configures the async worker.
type AsyncConfig struct {
	// Enabled starts the worker when the context is created
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// QueueSize bounds the number of queued jobs
	// Default: 64
	QueueSize int `mapstructure:"queue_size" validate:"gte=0" yaml:"queue_size"`

	// StopTimeout bounds how long Close waits for a running job
	// Default: 5s
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gte=0" yaml:"stop_timeout"`
}

// MemoryConfig describes the in-process backend.
type MemoryConfig struct {
	// Workgroup is the workgroup all memory servers belong to
	// Default: WORKGROUP
	Workgroup string `mapstructure:"workgroup" yaml:"workgroup"`

	// Shares lists the exported shares
	Shares []MemoryShareConfig `mapstructure:"shares" validate:"dive" yaml:"shares,omitempty"`
}

// MemoryShareConfig is one share of the memory backend.
type MemoryShareConfig struct {
	Server  string `mapstructure:"server" validate:"required" yaml:"server"`
	Name    string `mapstructure:"name" validate:"required" yaml:"name"`
	Comment string `mapstructure:"comment" yaml:"comment,omitempty"`

	// Path backs the share with a local directory instead of memory
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	ReadOnly bool `mapstructure:"read_only" yaml:"read_only,omitempty"`

	// Capacity is the size reported by statvfs
	// Default: 1GiB
	Capacity bytesize.ByteSize `mapstructure:"capacity" yaml:"capacity,omitempty"`

	// Workgroup, Username and Password, when Username is set, are the only
	// identity the share accepts.
	Workgroup string `mapstructure:"workgroup" yaml:"workgroup,omitempty"`
	Username  string `mapstructure:"username" yaml:"username,omitempty"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
}

// CredentialConfig is one credential table entry. Absent fields fall back
// to less specific entries and then to the client defaults.
type CredentialConfig struct {
	Server    string  `mapstructure:"server" validate:"required" yaml:"server"`
	Share     string  `mapstructure:"share" yaml:"share,omitempty"`
	Workgroup *string `mapstructure:"workgroup" yaml:"workgroup,omitempty"`
	Username  *string `mapstructure:"username" yaml:"username,omitempty"`
	Password  *string `mapstructure:"password" yaml:"password,omitempty"`
}

// Entry converts c to a credential table entry.
func (c CredentialConfig) Entry() auth.Entry {
	return auth.Entry{
		Server: c.Server,
		Share:  c.Share,
		Override: auth.Override{
			Workgroup: c.Workgroup,
			Username:  c.Username,
			Password:  c.Password,
		},
	}
}

// CredentialEntries returns the credential table of cfg.
func (cfg *Config) CredentialEntries() []auth.Entry {
	entries := make([]auth.Entry, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		entries = append(entries, c.Entry())
	}
	return entries
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SMBC_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file is not an
// error; defaults (plus environment overrides) are returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals v, applies defaults and validates.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load for an explicitly requested file: a missing file is
// reported with instructions instead of falling back to defaults.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  smbc config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// configHeader is written at the top of files created by InitConfig.
const configHeader = `# smbc configuration file
#
# Every key can be overridden with an environment variable:
#   SMBC_<SECTION>_<KEY>, e.g. SMBC_CLIENT_BACKEND=memory
#
# Credential entries are matched most specific first:
#   (server, share) > (server, "*") > ("*", "*")

`

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	return writeConfig(cfg, path, "")
}

func writeConfig(cfg *Config, path, header string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold passwords.
	if err := os.WriteFile(path, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitConfig writes a default configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}
	return writeConfig(GetDefaultConfig(), path, configHeader)
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SMBC_CLIENT_BACKEND=memory
	v.SetEnvPrefix("SMBC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/smbc/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every leaf key so AutomaticEnv also applies when the
// key is absent from the file. Slices are skipped; they cannot be expressed
// as a single variable.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch {
		case f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)):
			bindEnvKeys(v, f.Type, key)
		case f.Type.Kind() == reflect.Slice:
		default:
			_ = v.BindEnv(key)
		}
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings like "4Ki" or "1GB" and plain numbers
// to bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/smbc, ~/.config/smbc, or "." when
// no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "smbc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "smbc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
