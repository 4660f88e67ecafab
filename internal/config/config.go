// Package config loads service configuration from an optional YAML
// file with environment-variable overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Worker  WorkerConfig  `yaml:"worker"`
	Submit  SubmitConfig  `yaml:"submit"`
	Logging LoggingConfig `yaml:"logging"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	QueueKey     string `yaml:"queue_key"`
	StatusPrefix string `yaml:"status_prefix"`
	// TTLs guard against unbounded key growth; retention itself is an
	// external policy.
	StatusTTLSec int `yaml:"status_ttl_sec"`
}

type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	ResultPrefix string `yaml:"result_prefix"`
}

type WorkerConfig struct {
	Count              int `yaml:"count"`
	MaxAttempts        int `yaml:"max_attempts"`
	PollTimeoutSec     int `yaml:"poll_timeout_sec"`
	SweepIntervalSec   int `yaml:"sweep_interval_sec"`
	StaleThresholdSec  int `yaml:"stale_threshold_sec"`
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type SubmitConfig struct {
	MaxFilesPerTask int      `yaml:"max_files_per_task"`
	TemplateTypes   []string `yaml:"template_types"`
	TaskTypes       []string `yaml:"task_types"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration. The retry limit (3) and
// staleness threshold (5m) are conservative operational defaults.
func Default() Config {
	return Config{
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			QueueKey:     "document_parsing_queue",
			StatusPrefix: "task_status",
			StatusTTLSec: int((7 * 24 * time.Hour).Seconds()),
		},
		Storage: StorageConfig{
			Bucket:       "documents",
			ResultPrefix: "results",
		},
		Worker: WorkerConfig{
			Count:              4,
			MaxAttempts:        3,
			PollTimeoutSec:     2,
			SweepIntervalSec:   30,
			StaleThresholdSec:  300,
			ShutdownTimeoutSec: 30,
		},
		Submit: SubmitConfig{
			MaxFilesPerTask: 20,
			TemplateTypes:   []string{"chemistry", "mechanical", "electrical"},
			TaskTypes:       []string{"document_analysis", "template_extraction"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (if path is non-empty), layered on
// top of Default, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("TASK_QUEUE"); v != "" {
		cfg.Redis.QueueKey = v
	}
	if v := os.Getenv("TASK_STATUS_PREFIX"); v != "" {
		cfg.Redis.StatusPrefix = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Count = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c Config) validate() error {
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be positive, got %d", c.Worker.Count)
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.StaleThresholdSec <= 0 {
		return fmt.Errorf("worker.stale_threshold_sec must be positive, got %d", c.Worker.StaleThresholdSec)
	}
	if c.Submit.MaxFilesPerTask <= 0 {
		return fmt.Errorf("submit.max_files_per_task must be positive, got %d", c.Submit.MaxFilesPerTask)
	}
	return nil
}

func (w WorkerConfig) PollTimeout() time.Duration {
	return time.Duration(w.PollTimeoutSec) * time.Second
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.SweepIntervalSec) * time.Second
}

func (w WorkerConfig) StaleThreshold() time.Duration {
	return time.Duration(w.StaleThresholdSec) * time.Second
}

func (w WorkerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(w.ShutdownTimeoutSec) * time.Second
}

func (r RedisConfig) StatusTTL() time.Duration {
	return time.Duration(r.StatusTTLSec) * time.Second
}
