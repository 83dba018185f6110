package config

import (
	"path/filepath"
	"time"

	"github.com/vietddude/relay/internal/delivery/breaker"
	"github.com/vietddude/relay/internal/delivery/recovery"
	"github.com/vietddude/relay/internal/delivery/target"
	"github.com/vietddude/relay/internal/delivery/worker"
	"github.com/vietddude/relay/internal/infra/storage/postgres"
	"github.com/vietddude/relay/internal/infra/storage/redisq"
	"github.com/vietddude/relay/internal/infra/storage/sqlite"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	StateDir   string           `yaml:"state_dir"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Target     target.Config    `yaml:"target"`
	Breaker    breaker.Config   `yaml:"breaker"`
	Recovery   recovery.Config  `yaml:"recovery"`
	Retry      map[string]Retry `yaml:"retry"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Worker     worker.Config    `yaml:"worker"`
	Outage     OutageConfig     `yaml:"outage"`
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StorageConfig selects and configures the queue backend.
type StorageConfig struct {
	Backend  string          `yaml:"backend"` // sqlite (default), postgres, redis
	SQLite   sqlite.Config   `yaml:"sqlite"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redisq.Config   `yaml:"redis"`
}

// Retry overrides the budget for one error class.
type Retry struct {
	Base       time.Duration `yaml:"base"`
	Cap        time.Duration `yaml:"cap"`
	MaxRetries int           `yaml:"max_retries"`
}

// DeadLetterConfig holds archive retention settings.
type DeadLetterConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// OutageConfig holds outage ledger settings.
type OutageConfig struct {
	HistorySize int `yaml:"history_size"`
}

// BreakerStatePath returns the breaker state file location.
func (c *AppConfig) BreakerStatePath() string {
	return filepath.Join(c.StateDir, "breaker_state.json")
}

// RecoveryStatePath returns the recovery state file location.
func (c *AppConfig) RecoveryStatePath() string {
	return filepath.Join(c.StateDir, "recovery_state.json")
}

// OutageHistoryPath returns the outage ledger file location.
func (c *AppConfig) OutageHistoryPath() string {
	return filepath.Join(c.StateDir, "outage_history.json")
}
