// Package eventlog persists task lifecycle events to an append-only
// newline-delimited JSON file and derives current task state and aggregate
// statistics from it. Appends are sequential and never rewritten; the
// current value of a task is the most recent snapshot for its id, so a
// torn trailing write can lose at most the last line and never corrupts
// history. Reads are full scans, acceptable because task volume is bounded
// by remediation alert rates.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ufmedic/internal/model"
	"ufmedic/pkg/errs"
	"ufmedic/pkg/logger"
)

// EventType identifies a task lifecycle event.
type EventType string

const (
	EventTaskCreated EventType = "task_created"
	EventTaskUpdated EventType = "task_updated"
	EventTaskDeleted EventType = "task_deleted"
)

// Event is one immutable append to the task log. Created and updated
// events carry a full snapshot of the task in Data.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType EventType         `json:"event_type"`
	TaskID    string            `json:"task_id"`
	Host      string            `json:"host,omitempty"`
	IP        string            `json:"ip,omitempty"`
	OSType    string            `json:"os_type,omitempty"`
	Status    model.TaskStatus  `json:"status,omitempty"`
	Action    string            `json:"action,omitempty"`
	AlertTime string            `json:"alert_time,omitempty"`
	Updates   *model.TaskUpdate `json:"updates,omitempty"`
	Data      *model.Task       `json:"data,omitempty"`
}

// Store is the task event log. Writes are serialized by a mutex so each
// event lands as one intact line even with many in-flight tasks appending
// concurrently.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore creates the log directory if needed and opens a store over
// tasks.jsonl inside it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	return &Store{
		path: filepath.Join(dir, "tasks.jsonl"),
		now:  time.Now,
	}, nil
}

// Append durably writes one event as a single JSON line.
func (s *Store) Append(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return &errs.StorageError{Op: "marshal", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &errs.StorageError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &errs.StorageError{Op: "append", Path: s.path, Err: err}
	}
	return nil
}

// CreateTask stamps created_at/updated_at on the task, appends a
// task_created event with a full snapshot and returns the task.
func (s *Store) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	now := s.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt

	snapshot := *task
	event := &Event{
		Timestamp: now,
		EventType: EventTaskCreated,
		TaskID:    task.ID,
		Host:      task.Host,
		IP:        task.IP,
		OSType:    task.OSType,
		Status:    task.Status,
		Action:    task.Action,
		AlertTime: task.AlertTime,
		Data:      &snapshot,
	}
	if err := s.Append(ctx, event); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "created task %s for host %s", task.ID, task.Host)
	return task, nil
}

// GetTask returns the task built from its most recent snapshot, or nil
// when no snapshot exists or the most recent relevant event is a deletion.
// "Does not exist" is an expected case, not an error.
func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var current *model.Task
	s.scan(ctx, func(e *Event) {
		if e.TaskID != taskID {
			return
		}
		switch e.EventType {
		case EventTaskDeleted:
			current = nil
		default:
			if e.Data != nil {
				snapshot := *e.Data
				current = &snapshot
			}
		}
	})
	return current, nil
}

// UpdateTask loads the current task, applies the typed partial update,
// refreshes updated_at and appends a task_updated event carrying both the
// delta and the full new snapshot. Returns nil when the task does not
// exist. Status transitions out of a terminal state, or back to pending,
// are rejected.
func (s *Store) UpdateTask(ctx context.Context, taskID string, update model.TaskUpdate) (*model.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	if update.Status != nil {
		if err := checkTransition(task.Status, *update.Status); err != nil {
			return nil, err
		}
		task.Status = *update.Status
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	if update.Result != nil {
		task.Result = update.Result
	}
	if update.Error != nil {
		task.Error = *update.Error
	}
	if update.RetryCount != nil {
		task.RetryCount = *update.RetryCount
	}

	now := s.now().UTC()
	// completed_at is set exactly when the task reaches a terminal status.
	if task.Status.Terminal() && task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	task.UpdatedAt = now

	snapshot := *task
	event := &Event{
		Timestamp: now,
		EventType: EventTaskUpdated,
		TaskID:    task.ID,
		Host:      task.Host,
		IP:        task.IP,
		OSType:    task.OSType,
		Status:    task.Status,
		Action:    task.Action,
		AlertTime: task.AlertTime,
		Updates:   &update,
		Data:      &snapshot,
	}
	if err := s.Append(ctx, event); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "updated task %s, status: %s", task.ID, task.Status)
	return task, nil
}

// ListTasks returns current tasks, newest event first, optionally filtered
// by status and host, truncated to limit. A task appears at most once.
func (s *Store) ListTasks(ctx context.Context, limit int, status model.TaskStatus, host string) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 100
	}

	type entry struct {
		task     *model.Task
		lastSeen time.Time
	}
	entries := make(map[string]*entry)

	s.scan(ctx, func(e *Event) {
		switch e.EventType {
		case EventTaskDeleted:
			delete(entries, e.TaskID)
		default:
			if e.Data == nil {
				return
			}
			snapshot := *e.Data
			entries[e.TaskID] = &entry{task: &snapshot, lastSeen: e.Timestamp}
		}
	})

	tasks := make([]*entry, 0, len(entries))
	for _, ent := range entries {
		if status != "" && ent.task.Status != status {
			continue
		}
		if host != "" && ent.task.Host != host {
			continue
		}
		tasks = append(tasks, ent)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].lastSeen.After(tasks[j].lastSeen)
	})

	if len(tasks) > limit {
		tasks = tasks[:limit]
	}

	result := make([]*model.Task, 0, len(tasks))
	for _, ent := range tasks {
		result = append(result, ent.task)
	}
	return result, nil
}

// DeleteTask appends a task_deleted event, excluding the task from future
// reads while retaining its history. Returns false when the task does not
// exist.
func (s *Store) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	event := &Event{
		Timestamp: s.now().UTC(),
		EventType: EventTaskDeleted,
		TaskID:    task.ID,
		Host:      task.Host,
		IP:        task.IP,
		OSType:    task.OSType,
		Status:    task.Status,
	}
	if err := s.Append(ctx, event); err != nil {
		return false, err
	}

	logger.InfoCtx(ctx, "deleted task %s", taskID)
	return true, nil
}

// ComputeStats recomputes aggregate statistics from the full event
// history. Not incrementally maintained, so it is always consistent with
// the log at the moment of the call.
func (s *Store) ComputeStats(ctx context.Context) *model.Statistics {
	tasks, _ := s.ListTasks(ctx, math.MaxInt32, "", "")

	stats := &model.Statistics{
		TotalTasks:  len(tasks),
		LastUpdated: s.now().UTC(),
	}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskStatusPending:
			stats.PendingTasks++
		case model.TaskStatusRunning:
			stats.RunningTasks++
		case model.TaskStatusCompleted:
			stats.CompletedTasks++
		case model.TaskStatusFailed:
			stats.FailedTasks++
		}
	}

	if stats.TotalTasks > 0 {
		rate := float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats
}

// checkTransition enforces pending -> running -> {completed, failed}. A
// terminal task never changes status again and nothing goes back to
// pending.
func checkTransition(from, to model.TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown task status %q", to)
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("task is already %s, cannot transition to %s", from, to)
	}
	if to == model.TaskStatusPending {
		return fmt.Errorf("cannot transition %s back to pending", from)
	}
	return nil
}

// scan reads all events in append order, invoking fn per event. Read
// failures and unparseable lines (a torn trailing write) are logged and
// skipped; readers never fail the caller.
func (s *Store) scan(ctx context.Context, fn func(*Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.ErrorCtx(ctx, "failed to read event log %s: %v", s.path, err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			logger.WarnCtx(ctx, "skipping malformed event log line: %v", err)
			continue
		}
		fn(&event)
	}
	if err := scanner.Err(); err != nil {
		logger.ErrorCtx(ctx, "failed to scan event log %s: %v", s.path, err)
	}
}
