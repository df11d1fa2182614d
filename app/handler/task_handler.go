package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ufmedic/internal/model"
	"ufmedic/internal/service"
	"ufmedic/pkg/errs"
	"ufmedic/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TaskHandler handles remediation task operations
type TaskHandler struct {
	orch *service.Orchestrator
}

// NewTaskHandler creates task handler
func NewTaskHandler(orch *service.Orchestrator) *TaskHandler {
	return &TaskHandler{orch: orch}
}

// Submit accepts a silent-forwarder alert and starts a restart task
// @Summary Submit restart task
// @Description Accept an alert payload and start a forwarder restart in the background
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body model.RestartRequest true "Alert payload"
// @Success 202 {object} model.Task
// @Router /restart-uf [post]
func (h *TaskHandler) Submit(c *gin.Context) {
	var req model.RestartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.orch.Submit(c.Request.Context(), &req)
	if err != nil {
		var verr *errs.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to submit task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}

	c.JSON(http.StatusAccepted, task)
}

// Get returns one task
// @Summary Get task
// @Description Get current task state by task ID
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.Task
// @Router /tasks/{task_id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	task, err := h.orch.GetTask(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get task, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read task"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// List returns tasks, newest first
// @Summary List tasks
// @Description List current tasks with optional status and host filters
// @Tags tasks
// @Produce json
// @Param limit query int false "Maximum entries (default 100)"
// @Param status query string false "Filter by status"
// @Param host query string false "Filter by host"
// @Success 200 {object} map[string]any
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	status := model.TaskStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	tasks, err := h.orch.ListTasks(c.Request.Context(), limit, status, c.Query("host"))
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// Delete removes a task from listings
// @Summary Delete task
// @Description Remove a task from listings; its event history is retained
// @Tags tasks
// @Param task_id path string true "Task ID"
// @Success 200 {object} map[string]string
// @Router /tasks/{task_id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	deleted, err := h.orch.DeleteTask(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to delete task, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task deleted", "task_id": taskID})
}
