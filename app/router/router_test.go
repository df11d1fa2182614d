package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufmedic/app/handler"
	"ufmedic/internal/model"
	"ufmedic/internal/service"
	"ufmedic/pkg/config"
	"ufmedic/pkg/eventlog"
)

type stubExecutor struct{}

func (stubExecutor) RestartForwarder(ctx context.Context, task *model.Task) (*model.ActionResult, error) {
	return &model.ActionResult{Success: true, ReturnCode: 0}, nil
}

func (stubExecutor) Playbooks() []string {
	return []string{"restart_uf_linux.yml"}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *service.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:  config.ServerConfig{Name: "ufmedic", Version: "1.0.0"},
		Ansible: config.AnsibleConfig{MaxConcurrentTasks: 5},
		Retry: config.RetryConfig{
			MaxRetries:    1,
			BaseDelay:     0.001,
			MaxDelay:      0.01,
			BackoffFactor: 2.0,
		},
		Breaker:   config.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60},
		RateLimit: config.RateLimitConfig{Submit: 100, List: 100, Get: 100, Delete: 100},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store, err := eventlog.NewStore(t.TempDir())
	require.NoError(t, err)
	sysLog, err := eventlog.NewSystemLog(t.TempDir())
	require.NoError(t, err)

	exec := stubExecutor{}
	orch := service.NewOrchestrator(cfg, store, sysLog, exec)

	engine := gin.New()
	r := NewRouter(cfg, handler.NewTaskHandler(orch), handler.NewHealthHandler(cfg, orch, exec))
	r.Setup(engine)
	return engine, orch
}

func doJSON(engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func alertBody() map[string]string {
	return map[string]string{
		"host":       "db01",
		"ip":         "10.0.0.5",
		"os_type":    "linux",
		"alert_time": "2025-06-01T12:00:00Z",
	}
}

func TestSubmitReturnsAcceptedTask(t *testing.T) {
	engine, orch := newTestServer(t, nil)

	w := doJSON(engine, http.MethodPost, "/restart-uf", alertBody(), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, "db01", task.Host)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	orch.Wait()
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	engine, _ := newTestServer(t, nil)

	body := alertBody()
	body["ip"] = "not-an-ip"
	w := doJSON(engine, http.MethodPost, "/restart-uf", body, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"ip"`)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	engine, _ := newTestServer(t, nil)

	w := doJSON(engine, http.MethodPost, "/restart-uf", map[string]string{"host": "db01"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTaskLifecycle(t *testing.T) {
	engine, orch := newTestServer(t, nil)

	w := doJSON(engine, http.MethodPost, "/restart-uf", alertBody(), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	orch.Wait()

	w = doJSON(engine, http.MethodGet, "/tasks/"+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.TaskStatusCompleted, got.Status)

	w = doJSON(engine, http.MethodGet, "/tasks/unknown-id", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasksFilters(t *testing.T) {
	engine, orch := newTestServer(t, nil)

	for _, host := range []string{"db01", "web01"} {
		body := alertBody()
		body["host"] = host
		w := doJSON(engine, http.MethodPost, "/restart-uf", body, nil)
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	orch.Wait()

	w := doJSON(engine, http.MethodGet, "/tasks?host=db01", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tasks []model.Task `json:"tasks"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "db01", resp.Tasks[0].Host)

	w = doJSON(engine, http.MethodGet, "/tasks?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(engine, http.MethodGet, "/tasks?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTask(t *testing.T) {
	engine, orch := newTestServer(t, nil)

	w := doJSON(engine, http.MethodPost, "/restart-uf", alertBody(), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	orch.Wait()

	w = doJSON(engine, http.MethodDelete, "/tasks/"+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(engine, http.MethodGet, "/tasks/"+task.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(engine, http.MethodDelete, "/tasks/"+task.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRequiredWhenKeyConfigured(t *testing.T) {
	engine, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.APIKey = "secret"
	})

	w := doJSON(engine, http.MethodGet, "/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(engine, http.MethodGet, "/tasks", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(engine, http.MethodGet, "/tasks", nil, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open for probes.
	w = doJSON(engine, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitReturns429(t *testing.T) {
	engine, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.List = 2
	})

	for i := 0; i < 2; i++ {
		w := doJSON(engine, http.MethodGet, "/tasks", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doJSON(engine, http.MethodGet, "/tasks", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthReportsStatsAndPlaybooks(t *testing.T) {
	engine, _ := newTestServer(t, nil)

	w := doJSON(engine, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(1), resp["playbooks_found"])
	assert.Contains(t, resp, "statistics")
	assert.Contains(t, resp, "circuit_breakers")
}

func TestCORSPreflight(t *testing.T) {
	engine, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/restart-uf", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
