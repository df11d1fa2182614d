package ansible

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"ufmedic/internal/model"
	"ufmedic/pkg/config"
	"ufmedic/pkg/errs"
	"ufmedic/pkg/logger"
)

// Output captured per stream is capped so one chatty playbook run cannot
// blow up the event log.
const maxCapturedOutput = 10000

// Executor runs restart playbooks via ansible-playbook. One invocation per
// task, each with its own inventory and a hard wall-clock timeout.
type Executor struct {
	cfg    config.AnsibleConfig
	inv    *InventoryWriter
	binary string
}

// NewExecutor returns an executor using the ansible-playbook binary from
// PATH.
func NewExecutor(cfg config.AnsibleConfig) *Executor {
	return &Executor{
		cfg:    cfg,
		inv:    NewInventoryWriter(cfg),
		binary: "ansible-playbook",
	}
}

// RestartForwarder runs the restart playbook for the task's host and
// returns the structured outcome. A non-zero playbook exit produces both
// a populated result and an ExecError so callers can decide retryability.
func (e *Executor) RestartForwarder(ctx context.Context, task *model.Task) (*model.ActionResult, error) {
	playbook, err := e.resolvePlaybook(task.OSType)
	if err != nil {
		return nil, err
	}

	invPath, err := e.inv.Write(task)
	if err != nil {
		return nil, err
	}
	defer e.inv.Remove(invPath)

	extraVars, err := json.Marshal(map[string]string{
		"target_host": task.Host,
		"target_ip":   task.IP,
		"os_type":     task.OSType,
		"task_id":     task.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra vars: %w", err)
	}

	args := []string{
		"-i", invPath,
		playbook,
		"--limit", task.Host,
		"-e", string(extraVars),
		"-vvv",
	}
	if task.OSType != "windows" {
		args = append(args, "--ssh-common-args=-o StrictHostKeyChecking=no")
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TaskTimeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binary, args...)
	cmd.Env = append(os.Environ(), "ANSIBLE_HOST_KEY_CHECKING=False")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.InfoCtx(ctx, "running playbook %s for host %s (task %s)", filepath.Base(playbook), task.Host, task.ID)
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &model.ActionResult{
		Success:  runErr == nil,
		Stdout:   truncateOutput(stdout.String()),
		Stderr:   truncateOutput(stderr.String()),
		Duration: elapsed.Seconds(),
	}

	if runErr == nil {
		logger.InfoCtx(ctx, "playbook succeeded for host %s in %.1fs", task.Host, result.Duration)
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.ReturnCode = -1
		return result, &errs.TimeoutError{
			Operation: "ansible-playbook " + filepath.Base(playbook),
			Elapsed:   elapsed,
			Limit:     time.Duration(e.cfg.TaskTimeout) * time.Second,
		}
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ReturnCode = exitErr.ExitCode()
		return result, &errs.ExecError{
			Host:       task.Host,
			Action:     task.Action,
			ReturnCode: result.ReturnCode,
			Stderr:     result.Stderr,
		}
	}

	// Binary missing, not executable, or similar launch failure.
	result.ReturnCode = -1
	return result, fmt.Errorf("failed to start ansible-playbook: %w", runErr)
}

// Playbooks lists the playbook files available in the configured
// directory. Used by the health endpoint.
func (e *Executor) Playbooks() []string {
	entries, err := os.ReadDir(e.cfg.PlaybooksDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yml" || ext == ".yaml" {
			names = append(names, entry.Name())
		}
	}
	return names
}

// PruneInventories removes stale generated inventories. Exposed for the
// background cleanup job.
func (e *Executor) PruneInventories() int {
	return e.inv.PruneStale(time.Duration(e.cfg.InventoryTTL) * time.Second)
}

// resolvePlaybook picks the OS-specific restart playbook, falling back to
// the generic one when no per-OS file exists.
func (e *Executor) resolvePlaybook(osType string) (string, error) {
	candidates := []string{
		fmt.Sprintf("restart_uf_%s.yml", osType),
		"restart_uf_generic.yml",
	}
	for _, name := range candidates {
		path := filepath.Join(e.cfg.PlaybooksDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no restart playbook for os_type %q in %s", osType, e.cfg.PlaybooksDir)
}

func truncateOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "... (truncated)"
}
