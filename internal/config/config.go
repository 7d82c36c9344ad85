package config

import (
	"time"

	"github.com/quern-dev/quern/pkg/adapters/redis"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis" validate:"required"`
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker" validate:"required"`
	Server ServerConfig `mapstructure:"server" yaml:"server" validate:"required"`

	// DefaultJobExpires is how long an unclaimed job stays runnable.
	DefaultJobExpires time.Duration `mapstructure:"default_job_expires" yaml:"default_job_expires" validate:"gt=0"`
	// KeepResult is the default result retention window.
	KeepResult time.Duration `mapstructure:"keep_result" yaml:"keep_result" validate:"gte=0"`
}

// RedisConfig contains the Redis connection settings.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	Password       string        `mapstructure:"password" yaml:"password"`
	DB             int           `mapstructure:"db" yaml:"db" validate:"gte=0"`
	ConnTimeout    time.Duration `mapstructure:"conn_timeout" yaml:"conn_timeout" validate:"gt=0"`
	ConnRetries    int           `mapstructure:"conn_retries" yaml:"conn_retries" validate:"gte=0"`
	ConnRetryDelay time.Duration `mapstructure:"conn_retry_delay" yaml:"conn_retry_delay" validate:"gt=0"`

	SentinelAddrs  []string `mapstructure:"sentinel_addrs" yaml:"sentinel_addrs"`
	SentinelMaster string   `mapstructure:"sentinel_master" yaml:"sentinel_master"`
}

// WorkerConfig contains the worker pool settings.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency" validate:"gt=0"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	Queues            []string      `mapstructure:"queues" yaml:"queues"`
	MaxTries          int           `mapstructure:"max_tries" yaml:"max_tries" validate:"gt=0"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" validate:"gt=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval" validate:"gt=0"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" yaml:"port" validate:"gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// RedisSettings converts the config group to adapter settings.
func (c *Config) RedisSettings() redis.Settings {
	return redis.Settings{
		Addr:           c.Redis.Addr,
		Password:       c.Redis.Password,
		DB:             c.Redis.DB,
		ConnTimeout:    c.Redis.ConnTimeout,
		ConnRetries:    c.Redis.ConnRetries,
		ConnRetryDelay: c.Redis.ConnRetryDelay,
		SentinelAddrs:  c.Redis.SentinelAddrs,
		SentinelMaster: c.Redis.SentinelMaster,
	}
}
