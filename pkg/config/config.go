// Package config loads service configuration from a YAML file with
// environment-variable overrides for credentials. The loaded Config is
// constructed once at process start and passed into each component's
// constructor; nothing reads it through package-level state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ansible   AnsibleConfig   `yaml:"ansible"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	EventLog  EventLogConfig  `yaml:"eventlog"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"`
	Mode    string `yaml:"mode"`    // debug, release
	APIKey  string `yaml:"api_key"` // bearer API key (optional, if empty, auth is disabled)
}

// AnsibleConfig automation tool configuration
type AnsibleConfig struct {
	PlaybooksDir       string `yaml:"playbooks_dir"`
	InventoryDir       string `yaml:"inventory_dir"`
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	TaskTimeout        int    `yaml:"task_timeout"` // seconds, per playbook run
	InventoryTTL       int    `yaml:"inventory_ttl"` // seconds before generated inventories are pruned

	SSHUser        string `yaml:"ssh_user"`
	SSHPassword    string `yaml:"ssh_password"`
	Become         bool   `yaml:"become"`
	BecomeUser     string `yaml:"become_user"`
	BecomePassword string `yaml:"become_password"`

	WinRMUser                 string `yaml:"winrm_user"`
	WinRMPassword             string `yaml:"winrm_password"`
	WinRMTransport            string `yaml:"winrm_transport"`
	WinRMServerCertValidation string `yaml:"winrm_server_cert_validation"`
}

// RetryConfig server-side retry policy for remediation runs. Independent
// from whatever policy alert senders use on their side.
type RetryConfig struct {
	MaxRetries    int     `yaml:"max_retries"`
	BaseDelay     float64 `yaml:"base_delay"` // seconds
	MaxDelay      float64 `yaml:"max_delay"`  // seconds
	BackoffFactor float64 `yaml:"backoff_factor"`
	Jitter        bool    `yaml:"jitter"`
	Timeout       float64 `yaml:"timeout"` // seconds, 0 = no overall budget
}

// BreakerConfig per-host circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	RecoveryTimeout  int `yaml:"recovery_timeout"` // seconds
}

// RateLimitConfig per-IP request rate limits (requests per minute)
type RateLimitConfig struct {
	Submit int `yaml:"submit"`
	List   int `yaml:"list"`
	Get    int `yaml:"get"`
	Delete int `yaml:"delete"`
}

// EventLogConfig append-only log file locations
type EventLogConfig struct {
	Dir string `yaml:"dir"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration with rotation limits
type LoggerFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from CONFIG_PATH (default config/config.yaml),
// applies environment overrides and defaults for missing or invalid
// values.
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
		// Missing file is fine: run on defaults + env.
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets credentials come from the environment so they can
// stay out of the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UFMEDIC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ANSIBLE_SSH_PASSWORD"); v != "" {
		cfg.Ansible.SSHPassword = v
	}
	if v := os.Getenv("ANSIBLE_WINRM_PASSWORD"); v != "" {
		cfg.Ansible.WinRMPassword = v
	}
	if v := os.Getenv("ANSIBLE_BECOME_PASSWORD"); v != "" {
		cfg.Ansible.BecomePassword = v
	}
}

// applyDefaults fills in defaults for zero or invalid values so a partial
// config file still yields a working service.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "ufmedic"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 7000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	if cfg.Ansible.PlaybooksDir == "" {
		cfg.Ansible.PlaybooksDir = "/home/ansible/ansible/playbooks"
	}
	if cfg.Ansible.InventoryDir == "" {
		cfg.Ansible.InventoryDir = "/home/ansible/ansible/inventory"
	}
	if cfg.Ansible.MaxConcurrentTasks <= 0 {
		cfg.Ansible.MaxConcurrentTasks = 5
	}
	if cfg.Ansible.TaskTimeout <= 0 {
		cfg.Ansible.TaskTimeout = 600
	}
	if cfg.Ansible.InventoryTTL <= 0 {
		cfg.Ansible.InventoryTTL = 3600
	}
	if cfg.Ansible.SSHUser == "" {
		cfg.Ansible.SSHUser = "ansible"
	}
	if cfg.Ansible.BecomeUser == "" {
		cfg.Ansible.BecomeUser = "ansible"
	}
	if cfg.Ansible.WinRMUser == "" {
		cfg.Ansible.WinRMUser = "administrator"
	}
	if cfg.Ansible.WinRMTransport == "" {
		cfg.Ansible.WinRMTransport = "ntlm"
	}
	if cfg.Ansible.WinRMServerCertValidation == "" {
		cfg.Ansible.WinRMServerCertValidation = "ignore"
	}

	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 1.0
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 60.0
	}
	if cfg.Retry.BackoffFactor <= 0 {
		cfg.Retry.BackoffFactor = 2.0
	}
	if cfg.Retry.Timeout < 0 {
		cfg.Retry.Timeout = 0
	}

	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.RecoveryTimeout <= 0 {
		cfg.Breaker.RecoveryTimeout = 60
	}

	if cfg.RateLimit.Submit <= 0 {
		cfg.RateLimit.Submit = 10
	}
	if cfg.RateLimit.List <= 0 {
		cfg.RateLimit.List = 30
	}
	if cfg.RateLimit.Get <= 0 {
		cfg.RateLimit.Get = 60
	}
	if cfg.RateLimit.Delete <= 0 {
		cfg.RateLimit.Delete = 10
	}

	if cfg.EventLog.Dir == "" {
		cfg.EventLog.Dir = "/home/ansible/server-logs/ufmedic"
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
	if cfg.Logger.File.Path == "" {
		cfg.Logger.File.Path = "/home/ansible/server-logs/ufmedic/ufmedic.log"
	}
	if cfg.Logger.File.MaxSizeMB <= 0 {
		cfg.Logger.File.MaxSizeMB = 10
	}
	if cfg.Logger.File.MaxBackups <= 0 {
		cfg.Logger.File.MaxBackups = 5
	}
	if cfg.Logger.File.MaxAgeDays <= 0 {
		cfg.Logger.File.MaxAgeDays = 30
	}
}

// RetryBaseDelay returns the configured base delay as a duration.
func (c *RetryConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.BaseDelay * float64(time.Second))
}

// RetryMaxDelay returns the configured max delay as a duration.
func (c *RetryConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay * float64(time.Second))
}

// RetryTimeout returns the configured overall budget as a duration.
func (c *RetryConfig) RetryTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}
