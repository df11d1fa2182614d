package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ufmedic/internal/model"
	"ufmedic/internal/validate"
	"ufmedic/pkg/breaker"
	"ufmedic/pkg/config"
	"ufmedic/pkg/eventlog"
	"ufmedic/pkg/logger"
	"ufmedic/pkg/retry"
)

// ActionExecutor runs one remediation action against a host.
type ActionExecutor interface {
	RestartForwarder(ctx context.Context, task *model.Task) (*model.ActionResult, error)
}

// Orchestrator accepts alert submissions, admits them into a bounded pool
// of concurrent remediation runs and drives each run through the per-host
// circuit breaker and the retry policy. Every state change lands in the
// event log before the caller sees it.
type Orchestrator struct {
	cfg      *config.Config
	store    *eventlog.Store
	sysLog   *eventlog.SystemLog
	executor ActionExecutor
	retryCfg retry.Config

	// slots bounds concurrent playbook runs.
	slots chan struct{}

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker

	wg sync.WaitGroup
}

// NewOrchestrator wires the orchestrator from explicit dependencies.
func NewOrchestrator(cfg *config.Config, store *eventlog.Store, sysLog *eventlog.SystemLog, executor ActionExecutor) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		sysLog:   sysLog,
		executor: executor,
		retryCfg: retry.Config{
			MaxRetries:    cfg.Retry.MaxRetries,
			BaseDelay:     cfg.Retry.RetryBaseDelay(),
			MaxDelay:      cfg.Retry.RetryMaxDelay(),
			BackoffFactor: cfg.Retry.BackoffFactor,
			Jitter:        cfg.Retry.Jitter,
			Timeout:       cfg.Retry.RetryTimeout(),
		},
		slots:    make(chan struct{}, cfg.Ansible.MaxConcurrentTasks),
		breakers: make(map[string]*breaker.Breaker),
	}
}

// Submit validates the alert, records a pending task and starts processing
// in the background. Returns as soon as the task is durably created; the
// restart itself runs detached from the request. Repeated alerts for the
// same host each get their own task.
func (o *Orchestrator) Submit(ctx context.Context, req *model.RestartRequest) (*model.Task, error) {
	if err := validate.AlertData(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	taskID := fmt.Sprintf("%s_%s_%s", req.Host, now.Format("20060102_150405"), uuid.New().String()[:8])

	task := &model.Task{
		ID:            taskID,
		Status:        model.TaskStatusPending,
		Host:          req.Host,
		IP:            req.IP,
		OSType:        req.OSType,
		OSName:        req.OSName,
		MinutesSilent: req.MinutesSilent,
		LastSeen:      req.LastSeen,
		AlertTime:     req.AlertTime,
		Action:        req.Action,
		StartedAt:     now,
		MaxRetries:    o.cfg.Retry.MaxRetries,
	}

	if _, err := o.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	// Detach from the request context so the run survives the HTTP
	// response, keeping the correlation id for log continuity.
	runCtx := logger.WithCorrelationID(context.Background(), logger.CorrelationID(ctx))
	o.wg.Add(1)
	go o.process(runCtx, task)

	return task, nil
}

// process runs one task to a terminal state. Never lets a panic escape the
// goroutine; a panicking run is recorded as failed.
func (o *Orchestrator) process(ctx context.Context, task *model.Task) {
	defer o.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "panic while processing task %s: %v", task.ID, r)
			o.markFailed(ctx, task, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	o.slots <- struct{}{}
	defer func() { <-o.slots }()

	running := model.TaskStatusRunning
	if _, err := o.store.UpdateTask(ctx, task.ID, model.TaskUpdate{Status: &running}); err != nil {
		logger.ErrorCtx(ctx, "failed to mark task %s running: %v", task.ID, err)
		return
	}

	var lastResult *model.ActionResult
	attempts := 0

	br := o.breakerFor(task.Host)
	err := br.Guard(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, o.retryCfg, "restart_uf "+task.Host, func(ctx context.Context) error {
			attempts++
			if attempts > 1 {
				retries := attempts - 1
				if _, err := o.store.UpdateTask(ctx, task.ID, model.TaskUpdate{RetryCount: &retries}); err != nil {
					logger.WarnCtx(ctx, "failed to record retry count for task %s: %v", task.ID, err)
				}
				logger.InfoCtx(ctx, "retrying restart for host %s (attempt %d)", task.Host, attempts)
			}

			result, err := o.executor.RestartForwarder(ctx, task)
			if result != nil {
				lastResult = result
			}
			return err
		})
	})

	if err == nil {
		completed := model.TaskStatusCompleted
		if _, uerr := o.store.UpdateTask(ctx, task.ID, model.TaskUpdate{
			Status: &completed,
			Result: lastResult,
		}); uerr != nil {
			logger.ErrorCtx(ctx, "failed to mark task %s completed: %v", task.ID, uerr)
		}
		return
	}

	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		logger.WarnCtx(ctx, "circuit breaker open for host %s, task %s rejected without attempt", task.Host, task.ID)
		o.logSystemEvent(ctx, "warning", "breaker", "restart rejected by open circuit breaker", task)
	}

	o.markFailed(ctx, task, err.Error(), lastResult)
}

// markFailed records a failed terminal state, tolerating the case where
// the task never left pending.
func (o *Orchestrator) markFailed(ctx context.Context, task *model.Task, msg string, result *model.ActionResult) {
	failed := model.TaskStatusFailed
	if _, err := o.store.UpdateTask(ctx, task.ID, model.TaskUpdate{
		Status: &failed,
		Error:  &msg,
		Result: result,
	}); err != nil {
		logger.ErrorCtx(ctx, "failed to mark task %s failed: %v", task.ID, err)
	}
	logger.WarnCtx(ctx, "task %s failed for host %s: %s", task.ID, task.Host, msg)
}

// breakerFor returns the circuit breaker for a host, creating it on first
// use. Breakers are per host so one broken target cannot block others.
func (o *Orchestrator) breakerFor(host string) *breaker.Breaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	if br, ok := o.breakers[host]; ok {
		return br
	}
	br := breaker.New(breaker.Config{
		FailureThreshold: o.cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(o.cfg.Breaker.RecoveryTimeout) * time.Second,
		IsFailure: func(err error) bool {
			// A run aborted by shutdown says nothing about the host.
			return !errors.Is(err, context.Canceled)
		},
	})
	o.breakers[host] = br
	return br
}

// BreakerStates reports the current breaker state per host. Used by the
// health endpoint.
func (o *Orchestrator) BreakerStates() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	states := make(map[string]string, len(o.breakers))
	for host, br := range o.breakers {
		states[host] = br.State().String()
	}
	return states
}

// GetTask returns the current task state, or nil when unknown.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return o.store.GetTask(ctx, taskID)
}

// ListTasks returns current tasks, newest first.
func (o *Orchestrator) ListTasks(ctx context.Context, limit int, status model.TaskStatus, host string) ([]*model.Task, error) {
	return o.store.ListTasks(ctx, limit, status, host)
}

// DeleteTask removes a task from listings. History stays in the log.
func (o *Orchestrator) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	return o.store.DeleteTask(ctx, taskID)
}

// Stats recomputes aggregate statistics from the event log.
func (o *Orchestrator) Stats(ctx context.Context) *model.Statistics {
	return o.store.ComputeStats(ctx)
}

// Wait blocks until all in-flight task runs finish. Called during
// graceful shutdown after the HTTP listener stops.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) logSystemEvent(ctx context.Context, level, component, msg string, task *model.Task) {
	if o.sysLog == nil {
		return
	}
	event := &eventlog.SystemEvent{
		Level:     level,
		Component: component,
		Message:   msg,
		Host:      task.Host,
		TaskID:    task.ID,
	}
	if err := o.sysLog.LogEvent(ctx, event); err != nil {
		logger.WarnCtx(ctx, "failed to record system event: %v", err)
	}
}
