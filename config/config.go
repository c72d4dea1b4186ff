package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config mirrors tickrun.yaml. Durations stay strings until Resolve so that
// errors can name the offending field.
type Config struct {
	Tick       TickConfig      `yaml:"tick"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Schedulers []string        `yaml:"schedulers"`
	Logging    LoggingConfig   `yaml:"logging"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Jobs       []JobConfig     `yaml:"jobs"`
}

type TickConfig struct {
	Interval string `yaml:"interval"`
}

// SchedulerConfig holds defaults applied to every scheduler.
type SchedulerConfig struct {
	TimeLimit       string `yaml:"time_limit"`
	AbortOnTimeout  bool   `yaml:"abort_on_timeout"`
	TimeoutSilently bool   `yaml:"timeout_silently"`
	HistorySize     int    `yaml:"history_size"`
}

type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Console       bool              `yaml:"console"`
	File          LoggingFileConfig `yaml:"file"`
	WarnPerSecond int               `yaml:"warn_per_second"`
}

type LoggingFileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Listen       string `yaml:"listen"`
	Namespace    string `yaml:"namespace"`
	PollInterval string `yaml:"poll_interval"`
}

// JobConfig describes a cron-fed task.
type JobConfig struct {
	Name      string `yaml:"name"`
	Schedule  string `yaml:"schedule"`
	Scheduler string `yaml:"scheduler"`
	Hold      string `yaml:"hold"`
	Immediate bool   `yaml:"immediate"`
	TimeLimit string `yaml:"time_limit"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields and trailing documents.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// empty document
			return &cfg, nil
		}
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing document")
		}
		return nil, err
	}
	return &cfg, nil
}
