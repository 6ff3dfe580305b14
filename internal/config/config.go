// Package config resolves the server's configuration from, in
// ascending precedence: compiled-in defaults, an optional YAML file,
// environment variables, then CLI flags applied by the caller.
//
// The file layer is grounded on vovakirdan-wirechat-server's
// internal/config/loader.go (viper.New, SetDefault, AutomaticEnv,
// write-default-file-if-absent). The environment layer is grounded on
// krisfromhbk-ata's cmd/server/main.go (github.com/caarlos0/env/v6).
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the specification plus the
// ambient server settings (port, log level, persistence directory).
type Config struct {
	Port                     int    `yaml:"port" mapstructure:"port" env:"CHAT_PORT"`
	MaxConnectionsPerSecond  int    `yaml:"max_connections_per_second" mapstructure:"max_connections_per_second" env:"CHAT_MAX_CONNECTIONS_PER_SECOND"`
	MaxMessagesPerMinute     int    `yaml:"max_messages_per_minute" mapstructure:"max_messages_per_minute" env:"CHAT_MAX_MESSAGES_PER_MINUTE"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds" mapstructure:"heartbeat_interval_seconds" env:"CHAT_HEARTBEAT_INTERVAL_SECONDS"`
	ConnectionTimeoutSeconds int    `yaml:"connection_timeout_seconds" mapstructure:"connection_timeout_seconds" env:"CHAT_CONNECTION_TIMEOUT_SECONDS"`
	MaxTotalConnections      int    `yaml:"max_total_connections" mapstructure:"max_total_connections" env:"CHAT_MAX_TOTAL_CONNECTIONS"`
	MaxMessagesPerRoom       int    `yaml:"max_messages_per_room" mapstructure:"max_messages_per_room" env:"CHAT_MAX_MESSAGES_PER_ROOM"`
	MaxFileSizeMB            int    `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" env:"CHAT_MAX_FILE_SIZE_MB"`
	LogDirectory             string `yaml:"log_directory" mapstructure:"log_directory" env:"CHAT_LOG_DIRECTORY"`
	EnablePersistence        bool   `yaml:"enable_persistence" mapstructure:"enable_persistence" env:"CHAT_ENABLE_PERSISTENCE"`
	Env                      string `yaml:"env" mapstructure:"env" env:"CHAT_ENV"`
	LogLevel                 string `yaml:"log_level" mapstructure:"log_level" env:"CHAT_LOG_LEVEL"`
}

// Default returns the compiled-in defaults named in spec.md §6, plus
// ambient defaults for the settings the spec leaves to "the source".
func Default() Config {
	return Config{
		Port:                     8080,
		MaxConnectionsPerSecond:  50,
		MaxMessagesPerMinute:     60,
		HeartbeatIntervalSeconds: 30,
		ConnectionTimeoutSeconds: 300,
		MaxTotalConnections:      1000,
		MaxMessagesPerRoom:       100,
		MaxFileSizeMB:            10,
		LogDirectory:             "./chat_logs",
		EnablePersistence:        true,
		Env:                      "development",
		LogLevel:                 "info",
	}
}

// Load builds a Config starting from Default, layering in an optional
// YAML file and then environment variables. explicitPath may be empty,
// in which case "./chatserver.yaml" is used and written out with
// defaults if it does not yet exist.
func Load(logger *zap.Logger, explicitPath string) (Config, error) {
	cfg := Default()

	if explicitPath == "" {
		explicitPath = "chatserver.yaml"
	}

	v := viper.New()
	v.SetConfigFile(explicitPath)
	v.SetConfigType("yaml")
	setDefaults(v, cfg)
	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if writeErr := writeDefault(explicitPath, cfg); writeErr != nil && logger != nil {
				logger.Warn("failed to write default config", zap.Error(writeErr), zap.String("path", explicitPath))
			}
		} else {
			return cfg, fmt.Errorf("read config %s: %w", explicitPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("port", cfg.Port)
	v.SetDefault("max_connections_per_second", cfg.MaxConnectionsPerSecond)
	v.SetDefault("max_messages_per_minute", cfg.MaxMessagesPerMinute)
	v.SetDefault("heartbeat_interval_seconds", cfg.HeartbeatIntervalSeconds)
	v.SetDefault("connection_timeout_seconds", cfg.ConnectionTimeoutSeconds)
	v.SetDefault("max_total_connections", cfg.MaxTotalConnections)
	v.SetDefault("max_messages_per_room", cfg.MaxMessagesPerRoom)
	v.SetDefault("max_file_size_mb", cfg.MaxFileSizeMB)
	v.SetDefault("log_directory", cfg.LogDirectory)
	v.SetDefault("enable_persistence", cfg.EnablePersistence)
	v.SetDefault("env", cfg.Env)
	v.SetDefault("log_level", cfg.LogLevel)
}

func writeDefault(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
