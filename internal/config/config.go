// Package config loads and validates the syncd YAML configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Audit       AuditConfig       `yaml:"audit"`
	Status      StatusConfig      `yaml:"status"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig points at the realtime backend.
type ServerConfig struct {
	URL              string        `yaml:"url"`               // e.g. wss://api.example.com/realtime
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // dial timeout
}

// ReconnectConfig shapes the retry policy.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // cap before the channel terminates
	BaseDelay   time.Duration `yaml:"base_delay"`   // first retry delay
	MaxDelay    time.Duration `yaml:"max_delay"`    // retry delay ceiling
	SettleDelay time.Duration `yaml:"settle_delay"` // wait before subscription activation
}

// CredentialsConfig locates the local credential store.
type CredentialsConfig struct {
	Path string `yaml:"path"` // SQLite file; empty = in-memory
}

// AuditConfig configures the optional event archive.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// DBConfig is a Postgres connection configuration.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString builds a key/value Postgres connection string.
func (d DBConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// StatusConfig configures status reporting.
type StatusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // status log cadence
	HealthPort   int           `yaml:"health_port"`   // HTTP health endpoint
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
