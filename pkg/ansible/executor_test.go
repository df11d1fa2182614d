package ansible

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufmedic/internal/model"
	"ufmedic/pkg/config"
	"ufmedic/pkg/errs"
)

func testAnsibleConfig(t *testing.T) config.AnsibleConfig {
	t.Helper()
	return config.AnsibleConfig{
		PlaybooksDir:              t.TempDir(),
		InventoryDir:              t.TempDir(),
		MaxConcurrentTasks:        5,
		TaskTimeout:               10,
		InventoryTTL:              3600,
		SSHUser:                   "ansible",
		SSHPassword:               "ssh-secret",
		Become:                    true,
		BecomeUser:                "root",
		BecomePassword:            "become-secret",
		WinRMUser:                 "administrator",
		WinRMPassword:             "winrm-secret",
		WinRMTransport:            "ntlm",
		WinRMServerCertValidation: "ignore",
	}
}

func writePlaybook(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("---\n- hosts: all\n"), 0644))
}

// fakePlaybookBin writes an executable shell script standing in for
// ansible-playbook.
func fakePlaybookBin(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ansible-playbook")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func testTask() *model.Task {
	return &model.Task{
		ID:     "db01_20250601_120000",
		Host:   "db01",
		IP:     "10.0.0.5",
		OSType: "linux",
		Action: "restart_uf",
	}
}

func TestResolvePlaybook_PrefersOSSpecific(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_generic.yml")
	e := NewExecutor(cfg)

	path, err := e.resolvePlaybook("linux")
	require.NoError(t, err)
	assert.Equal(t, "restart_uf_linux.yml", filepath.Base(path))
}

func TestResolvePlaybook_FallsBackToGeneric(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_generic.yml")
	e := NewExecutor(cfg)

	path, err := e.resolvePlaybook("windows")
	require.NoError(t, err)
	assert.Equal(t, "restart_uf_generic.yml", filepath.Base(path))
}

func TestResolvePlaybook_NoneFound(t *testing.T) {
	e := NewExecutor(testAnsibleConfig(t))

	_, err := e.resolvePlaybook("linux")
	assert.Error(t, err)
}

func TestRestartForwarder_Success(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	e := NewExecutor(cfg)
	e.binary = fakePlaybookBin(t, `echo "PLAY RECAP: ok=3"`+"\nexit 0\n")

	result, err := e.RestartForwarder(context.Background(), testTask())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Contains(t, result.Stdout, "PLAY RECAP")
	assert.GreaterOrEqual(t, result.Duration, 0.0)

	// Per-run inventory is cleaned up after the run.
	entries, err := os.ReadDir(cfg.InventoryDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestartForwarder_NonZeroExit(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	e := NewExecutor(cfg)
	e.binary = fakePlaybookBin(t, `echo "unreachable" >&2`+"\nexit 2\n")

	result, err := e.RestartForwarder(context.Background(), testTask())
	var execErr *errs.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.ReturnCode)
	assert.Equal(t, "db01", execErr.Host)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ReturnCode)
	assert.Contains(t, result.Stderr, "unreachable")
}

func TestRestartForwarder_Timeout(t *testing.T) {
	cfg := testAnsibleConfig(t)
	cfg.TaskTimeout = 1
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	e := NewExecutor(cfg)
	e.binary = fakePlaybookBin(t, "sleep 30\n")

	result, err := e.RestartForwarder(context.Background(), testTask())
	var timeoutErr *errs.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.False(t, result.Success)
}

func TestRestartForwarder_MissingBinary(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	e := NewExecutor(cfg)
	e.binary = filepath.Join(t.TempDir(), "does-not-exist")

	_, err := e.RestartForwarder(context.Background(), testTask())
	assert.Error(t, err)
}

func TestInventory_RenderLinux(t *testing.T) {
	w := NewInventoryWriter(testAnsibleConfig(t))

	data, err := w.Render(testTask())
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "db01:")
	assert.Contains(t, out, "ansible_host: 10.0.0.5")
	assert.Contains(t, out, "ansible_user: ansible")
	assert.Contains(t, out, "ansible_ssh_pass: ssh-secret")
	assert.Contains(t, out, "ansible_become: true")
	assert.Contains(t, out, "ansible_become_user: root")
	assert.NotContains(t, out, "winrm")
}

func TestInventory_RenderWindows(t *testing.T) {
	w := NewInventoryWriter(testAnsibleConfig(t))
	task := testTask()
	task.OSType = "windows"

	data, err := w.Render(task)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "ansible_connection: winrm")
	assert.Contains(t, out, "ansible_user: administrator")
	assert.Contains(t, out, "ansible_password: winrm-secret")
	assert.Contains(t, out, "ansible_winrm_transport: ntlm")
	assert.Contains(t, out, "ansible_port: 5985")
	assert.NotContains(t, out, "ansible_become")
}

func TestInventory_WritePermissionsAndPrune(t *testing.T) {
	cfg := testAnsibleConfig(t)
	w := NewInventoryWriter(cfg)

	path, err := w.Write(testTask())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Fresh file survives the prune, stale file does not.
	assert.Equal(t, 0, w.PruneStale(time.Hour))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	assert.Equal(t, 1, w.PruneStale(time.Hour))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPlaybooks_ListsYAMLFiles(t *testing.T) {
	cfg := testAnsibleConfig(t)
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_linux.yml")
	writePlaybook(t, cfg.PlaybooksDir, "restart_uf_windows.yml")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PlaybooksDir, "README.md"), []byte("x"), 0644))
	e := NewExecutor(cfg)

	names := e.Playbooks()
	assert.ElementsMatch(t, []string{"restart_uf_linux.yml", "restart_uf_windows.yml"}, names)
}
