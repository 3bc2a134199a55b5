// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads cobotlink settings from YAML.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ConnectionConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

type ProtocolConfig struct {
	FirmwareVersion uint32        `yaml:"firmware_version"`
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	DoneTimeout     time.Duration `yaml:"done_timeout"`
	Retention       time.Duration `yaml:"retention"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	ListKey  string `yaml:"list_key"`
	ListSize int64  `yaml:"list_size"`
}

// LoadConfig reads path over the defaults; keys missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// GetDefaultConfig returns the built-in configuration
func GetDefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Baud: 115200,
		},
		Protocol: ProtocolConfig{
			FirmwareVersion: 1,
			AckTimeout:      time.Second,
			DoneTimeout:     60 * time.Second,
			Retention:       30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			Channel:  "cobot_joints",
			ListKey:  "cobot:joints",
			ListSize: 1000,
		},
	}
}

// Validate rejects values the protocol engine cannot use
func (c *Config) Validate() error {
	if c.Connection.Baud <= 0 {
		return fmt.Errorf("connection.baud must be positive, got %d", c.Connection.Baud)
	}
	if c.Protocol.AckTimeout <= 0 {
		return fmt.Errorf("protocol.ack_timeout must be positive, got %v", c.Protocol.AckTimeout)
	}
	if c.Protocol.DoneTimeout < c.Protocol.AckTimeout {
		return fmt.Errorf("protocol.done_timeout (%v) must not be shorter than ack_timeout (%v)",
			c.Protocol.DoneTimeout, c.Protocol.AckTimeout)
	}
	if c.Protocol.Retention <= 0 {
		return fmt.Errorf("protocol.retention must be positive, got %v", c.Protocol.Retention)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Redis.ListSize < 0 {
		return fmt.Errorf("redis.list_size must not be negative, got %d", c.Redis.ListSize)
	}
	return nil
}

// NewLogger builds a logger from the log section. An unknown level falls
// back to info; an unwritable file falls back to stderr with a warning.
func NewLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	var out io.Writer = os.Stderr
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "file":
		if cfg.FilePath != "" {
			file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				out = file
			} else {
				log.Warnf("failed to open log file %s: %v, using stderr", cfg.FilePath, err)
			}
		}
	}
	log.SetOutput(out)

	return log
}
