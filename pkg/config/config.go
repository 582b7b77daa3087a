// Package config loads and validates the fabric daemon's static
// configuration: logging, the IPC transport listener, the file-transfer
// HTTP server, provider dispatch defaults, and the crypto seal key source.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FABRIC_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/parasvc/fabric/internal/bytesize"
)

// Config is the top-level configuration for paramfabricd.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// IPC configures the object-management transport listener.
	IPC IPCConfig `mapstructure:"ipc" yaml:"ipc"`

	// FileTransfer configures the HTTP file-transfer server.
	FileTransfer FileTransferConfig `mapstructure:"file_transfer" yaml:"file_transfer"`

	// Provider configures default call-mode and dispatch-queue behavior.
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`

	// Crypto configures the sealed-envelope key source.
	Crypto CryptoConfig `mapstructure:"crypto" yaml:"crypto"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// IPCConfig configures the managed-object transport listener.
type IPCConfig struct {
	// ListenAddress is the TCP address the backend listens on for incoming
	// stream connections, e.g. "127.0.0.1:9110".
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`

	// MaxSendData bounds the size of a single framed message.
	MaxSendData bytesize.ByteSize `mapstructure:"max_send_data" yaml:"max_send_data"`

	// CallTimeout is loaded and defaulted but not read by the daemon; proxy
	// calls are not bounded by it.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// FileTransferConfig configures the HTTP file-transfer server.
type FileTransferConfig struct {
	// ListenAddress is the address the chi router listens on.
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`

	// ChunkSize is loaded and defaulted but not read by the daemon; the
	// file-transfer engine uses its own fixed 1 MiB chunk size.
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxUploadSize bounds the Content-Length accepted by a single PUT. It
	// can only lower the engine's fixed 16 MiB ceiling, never raise it;
	// PATCH bodies are not checked against it.
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size"`

	// ReadTimeout and WriteTimeout bound the HTTP server's per-request
	// deadlines.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// CORSAllowedOrigins lists origins permitted to issue cross-origin
	// requests against the file-transfer API.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// ProviderConfig configures the default dispatcher behavior for registered
// providers.
type ProviderConfig struct {
	// SerializedQueueSize bounds the backlog of a serialized (FIFO) provider
	// dispatcher; once it is full, Dispatch blocks until there is room or
	// its context ends.
	SerializedQueueSize int `mapstructure:"serialized_queue_size" yaml:"serialized_queue_size"`

	// ConcurrentWorkers bounds the number of calls a concurrent-mode
	// provider dispatcher runs at once.
	ConcurrentWorkers int `mapstructure:"concurrent_workers" yaml:"concurrent_workers"`
}

// CryptoConfig configures the AES-256-GCM sealed-envelope primitive.
type CryptoConfig struct {
	// KeyFile names a file holding a 32-byte key, base64 encoded. The
	// daemon does not read this field: no key is loaded from it and none
	// is generated at startup.
	KeyFile string `mapstructure:"key_file" yaml:"key_file"`
}

// MetricsConfig contains Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error when no
// config file is found at the requested location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  paramfabricd init\n\n"+
				"Or specify a custom config file:\n"+
				"  paramfabricd start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	return Load(configPath)
}

// SaveConfig writes cfg to path in YAML format with restrictive permissions,
// since the crypto key file path may be sensitive.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FABRIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom decode hooks mapstructure needs for
// ByteSize and time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

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

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
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

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "paramfabricd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "paramfabricd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// InitConfig writes a sample configuration file to the default location,
// failing if one already exists unless force is set.
func InitConfig(force bool) (string, error) {
	return GetDefaultConfigPath(), InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}
	cfg := GetDefaultConfig()
	return SaveConfig(cfg, path)
}
