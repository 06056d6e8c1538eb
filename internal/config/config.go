package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// History database path
	HistoryDBPath string `mapstructure:"history-db-path"`

	// S3 image catalog
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Working directory for staging and downloads
	WorkDir string `mapstructure:"work-dir"`

	// Native tool execution
	ToolTimeout time.Duration `mapstructure:"tool-timeout"`

	// Raw write chunking
	WriteChunkSize int `mapstructure:"write-chunk-size"`

	// Staging security limits
	MaxFileSize         int64   `mapstructure:"max-file-size"`
	MaxTotalSize        int64   `mapstructure:"max-total-size"`
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`

	// Mount resolution polling
	MountPollAttempts int           `mapstructure:"mount-poll-attempts"`
	MountPollInterval time.Duration `mapstructure:"mount-poll-interval"`

	// History retention for the cleanup command
	HistoryKeep int `mapstructure:"history-keep"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("history-db-path", ".artifacts/history.db")
	viper.SetDefault("s3-bucket", "smartboot-images")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("work-dir", "/tmp/smartboot")
	viper.SetDefault("tool-timeout", 30*time.Second)
	viper.SetDefault("write-chunk-size", 4*1024*1024)
	viper.SetDefault("max-file-size", 8*1024*1024*1024)
	viper.SetDefault("max-total-size", 32*1024*1024*1024)
	viper.SetDefault("max-compression-ratio", 100.0)
	viper.SetDefault("mount-poll-attempts", 10)
	viper.SetDefault("mount-poll-interval", 500*time.Millisecond)
	viper.SetDefault("history-keep", 100)

	// Environment variables (SMARTBOOT_WORK_DIR, etc.)
	viper.SetEnvPrefix("SMARTBOOT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.smartboot")

	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.HistoryDBPath == "" {
		return fmt.Errorf("history-db-path cannot be empty")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool-timeout must be positive")
	}
	if c.WriteChunkSize < 1024*1024 {
		return fmt.Errorf("write-chunk-size must be at least 1MiB")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	if c.MaxCompressionRatio <= 0 {
		return fmt.Errorf("max-compression-ratio must be positive")
	}
	if c.MountPollAttempts <= 0 {
		return fmt.Errorf("mount-poll-attempts must be positive")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history-keep must be non-negative")
	}
	return nil
}
