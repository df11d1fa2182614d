package model

import "time"

// TaskStatus task status
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal one.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether the status is a known one.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// ActionResult is the structured outcome of one remediation action run.
type ActionResult struct {
	Success    bool    `json:"success"`
	ReturnCode int     `json:"return_code"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	Duration   float64 `json:"duration"` // seconds
}

// Task is one tracked remediation attempt for a specific host.
type Task struct {
	ID            string        `json:"id"`
	Status        TaskStatus    `json:"status"`
	Host          string        `json:"host"`
	IP            string        `json:"ip"`
	OSType        string        `json:"os_type"`
	OSName        string        `json:"os_name,omitempty"`
	MinutesSilent string        `json:"minutes_silent,omitempty"`
	LastSeen      string        `json:"last_seen,omitempty"`
	AlertTime     string        `json:"alert_time"`
	Action        string        `json:"action"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Result        *ActionResult `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	RetryCount    int           `json:"retry_count"`
	MaxRetries    int           `json:"max_retries"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TaskUpdate is a typed partial update applied to a task. Only non-nil
// fields are applied; unknown fields cannot be expressed at all.
type TaskUpdate struct {
	Status      *TaskStatus   `json:"status,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      *ActionResult `json:"result,omitempty"`
	Error       *string       `json:"error,omitempty"`
	RetryCount  *int          `json:"retry_count,omitempty"`
}

// RestartRequest is the alert payload submitted for remediation.
type RestartRequest struct {
	AlertType     string `json:"alert_type"`
	Host          string `json:"host" binding:"required"`
	IP            string `json:"ip" binding:"required"`
	OSType        string `json:"os_type" binding:"required"`
	OSName        string `json:"os_name,omitempty"`
	MinutesSilent string `json:"minutes_silent,omitempty"`
	LastSeen      string `json:"last_seen,omitempty"`
	AlertTime     string `json:"alert_time" binding:"required"`
	Action        string `json:"action,omitempty"`
}

// Statistics is a derived aggregate over the full task history. Always
// recomputable from the event log; never authoritative.
type Statistics struct {
	TotalTasks     int       `json:"total_tasks"`
	PendingTasks   int       `json:"pending_tasks"`
	RunningTasks   int       `json:"running_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
	SuccessRate    float64   `json:"success_rate"`
	LastUpdated    time.Time `json:"last_updated"`
}
