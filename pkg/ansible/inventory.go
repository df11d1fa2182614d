// Package ansible runs remediation playbooks against a single target host.
// Each run gets a generated one-host inventory file so concurrent tasks
// never share ansible state, and inventories are removed after the run
// (plus a time-based prune for files orphaned by crashes).
package ansible

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ufmedic/internal/model"
	"ufmedic/pkg/config"
	"ufmedic/pkg/errs"
	"ufmedic/pkg/logger"
)

const inventoryPrefix = "inventory_"

// InventoryWriter generates per-task single-host inventory files.
type InventoryWriter struct {
	cfg config.AnsibleConfig
}

// NewInventoryWriter returns a writer over cfg.InventoryDir.
func NewInventoryWriter(cfg config.AnsibleConfig) *InventoryWriter {
	return &InventoryWriter{cfg: cfg}
}

// Render produces the YAML inventory document for one task's host.
// Windows hosts get winrm connection variables, everything else gets
// ssh plus become.
func (w *InventoryWriter) Render(task *model.Task) ([]byte, error) {
	hostVars := map[string]any{
		"ansible_host": task.IP,
	}

	if task.OSType == "windows" {
		hostVars["ansible_user"] = w.cfg.WinRMUser
		hostVars["ansible_password"] = w.cfg.WinRMPassword
		hostVars["ansible_connection"] = "winrm"
		hostVars["ansible_port"] = 5985
		hostVars["ansible_winrm_transport"] = w.cfg.WinRMTransport
		hostVars["ansible_winrm_server_cert_validation"] = w.cfg.WinRMServerCertValidation
	} else {
		hostVars["ansible_user"] = w.cfg.SSHUser
		hostVars["ansible_ssh_pass"] = w.cfg.SSHPassword
		if w.cfg.Become {
			hostVars["ansible_become"] = true
			hostVars["ansible_become_user"] = w.cfg.BecomeUser
			hostVars["ansible_become_pass"] = w.cfg.BecomePassword
		}
	}

	doc := map[string]any{
		"all": map[string]any{
			"hosts": map[string]any{
				task.Host: hostVars,
			},
		},
	}
	return yaml.Marshal(doc)
}

// Write renders the inventory to inventory_<taskID>.yml and returns its
// path. Mode 0600 because the file carries credentials.
func (w *InventoryWriter) Write(task *model.Task) (string, error) {
	if err := os.MkdirAll(w.cfg.InventoryDir, 0755); err != nil {
		return "", &errs.StorageError{Op: "mkdir", Path: w.cfg.InventoryDir, Err: err}
	}

	data, err := w.Render(task)
	if err != nil {
		return "", fmt.Errorf("failed to render inventory for %s: %w", task.Host, err)
	}

	path := filepath.Join(w.cfg.InventoryDir, inventoryPrefix+task.ID+".yml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", &errs.StorageError{Op: "write", Path: path, Err: err}
	}
	return path, nil
}

// Remove deletes a generated inventory file, tolerating an already
// missing one.
func (w *InventoryWriter) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove inventory %s: %v", path, err)
	}
}

// PruneStale removes generated inventories older than ttl. Catches files
// left behind when a run crashed before its cleanup.
func (w *InventoryWriter) PruneStale(ttl time.Duration) int {
	entries, err := os.ReadDir(w.cfg.InventoryDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("failed to read inventory dir %s: %v", w.cfg.InventoryDir, err)
		}
		return 0
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) <= len(inventoryPrefix) || name[:len(inventoryPrefix)] != inventoryPrefix {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(w.cfg.InventoryDir, name)
		if err := os.Remove(path); err != nil {
			logger.Warnf("failed to prune inventory %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}
