package config

import (
	"strings"
	"time"

	"github.com/parasvc/fabric/internal/bytesize"
)

// GetDefaultConfig returns a Config populated entirely with defaults, used
// when no configuration file is present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any unspecified fields with sensible defaults.
// Zero-valued (0 or "") fields that have a default are replaced; explicit
// values are preserved. Boolean and slice fields get no default.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyIPCDefaults(&cfg.IPC)
	applyFileTransferDefaults(&cfg.FileTransfer)
	applyProviderDefaults(&cfg.Provider)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyIPCDefaults(cfg *IPCConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:9110"
	}
	if cfg.MaxSendData == 0 {
		cfg.MaxSendData = 16 * bytesize.MiB
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
}

func applyFileTransferDefaults(cfg *FileTransferConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:9180"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1 * bytesize.MiB
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 4 * bytesize.GiB
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
}

func applyProviderDefaults(cfg *ProviderConfig) {
	if cfg.SerializedQueueSize <= 0 {
		cfg.SerializedQueueSize = 1000
	}
	if cfg.ConcurrentWorkers <= 0 {
		cfg.ConcurrentWorkers = 8
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:9190"
	}
}
