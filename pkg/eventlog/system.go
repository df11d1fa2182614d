package eventlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ufmedic/internal/model"
	"ufmedic/pkg/errs"
)

// SystemEvent is one operational event (startup, shutdown, breaker trips,
// job runs) appended to system_events.jsonl.
type SystemEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Host      string         `json:"host,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// SystemLog appends operational events next to the task log and maintains
// an advisory statistics snapshot file for external consumers that read
// the directory directly.
type SystemLog struct {
	mu        sync.Mutex
	eventPath string
	statsPath string
	now       func() time.Time
}

// NewSystemLog opens a system log over system_events.jsonl and
// system_stats.json in dir. The directory is created if needed.
func NewSystemLog(dir string) (*SystemLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &errs.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	return &SystemLog{
		eventPath: filepath.Join(dir, "system_events.jsonl"),
		statsPath: filepath.Join(dir, "system_stats.json"),
		now:       time.Now,
	}, nil
}

// LogEvent appends one system event. Errors are returned but callers
// normally just log them; a failed operational append never blocks task
// processing.
func (l *SystemLog) LogEvent(ctx context.Context, event *SystemEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return &errs.StorageError{Op: "marshal", Path: l.eventPath, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.eventPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &errs.StorageError{Op: "open", Path: l.eventPath, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &errs.StorageError{Op: "append", Path: l.eventPath, Err: err}
	}
	return nil
}

// WriteStatsSnapshot replaces system_stats.json with the given statistics.
// The snapshot is advisory; the event log remains the source of truth.
func (l *SystemLog) WriteStatsSnapshot(stats *model.Statistics) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return &errs.StorageError{Op: "marshal", Path: l.statsPath, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tmp := l.statsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &errs.StorageError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, l.statsPath); err != nil {
		return &errs.StorageError{Op: "rename", Path: l.statsPath, Err: err}
	}
	return nil
}
