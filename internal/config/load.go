package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from an optional YAML file and QUERN_* environment
// variables, with env taking precedence. An empty path searches the working
// directory and $HOME/.quern for quern.yaml; a missing file just means
// defaults plus env.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("quern")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quern")
	}

	v.SetEnvPrefix("QUERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	// Keys without a meaningful default still need registering, or
	// AutomaticEnv never surfaces their QUERN_* variables to Unmarshal.
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.conn_timeout", "1s")
	v.SetDefault("redis.conn_retries", 5)
	v.SetDefault("redis.conn_retry_delay", "1s")
	v.SetDefault("redis.sentinel_addrs", []string{})
	v.SetDefault("redis.sentinel_master", "mymaster")

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.poll_interval", "500ms")
	v.SetDefault("worker.queues", []string{})
	v.SetDefault("worker.max_tries", 5)
	v.SetDefault("worker.retry_backoff", "1s")
	v.SetDefault("worker.heartbeat_interval", "10s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("default_job_expires", "24h")
	v.SetDefault("keep_result", "1h")
}

// DumpYAML renders the effective configuration, for `quern config`.
func DumpYAML(cfg *Config) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}
