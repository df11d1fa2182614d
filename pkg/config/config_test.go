package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, yaml string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_ParsesYAML(t *testing.T) {
	cfg := loadFrom(t, `
server:
  port: 8080
  mode: debug
  api_key: secret
ansible:
  playbooks_dir: /opt/playbooks
  max_concurrent_tasks: 3
retry:
  max_retries: 2
  base_delay: 0.5
breaker:
  failure_threshold: 4
  recovery_timeout: 120
`)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, "/opt/playbooks", cfg.Ansible.PlaybooksDir)
	assert.Equal(t, 3, cfg.Ansible.MaxConcurrentTasks)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 0.5, cfg.Retry.BaseDelay)
	assert.Equal(t, 4, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 120, cfg.Breaker.RecoveryTimeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ansible.MaxConcurrentTasks)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10, cfg.RateLimit.Submit)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	cfg := loadFrom(t, `
server:
  port: -1
ansible:
  max_concurrent_tasks: -5
retry:
  base_delay: -2
  backoff_factor: 0
`)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ansible.MaxConcurrentTasks)
	assert.Equal(t, 1.0, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("UFMEDIC_API_KEY", "env-key")
	t.Setenv("ANSIBLE_SSH_PASSWORD", "env-ssh")

	cfg := loadFrom(t, `
server:
  api_key: file-key
`)

	assert.Equal(t, "env-key", cfg.Server.APIKey)
	assert.Equal(t, "env-ssh", cfg.Ansible.SSHPassword)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}
