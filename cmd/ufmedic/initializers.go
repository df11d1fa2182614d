package main

import (
	"fmt"
	"net/http"
	"time"

	"ufmedic/app/handler"
	"ufmedic/app/router"
	"ufmedic/internal/jobs"
	"ufmedic/internal/service"
	"ufmedic/pkg/ansible"
	"ufmedic/pkg/config"
	"ufmedic/pkg/eventlog"
	"ufmedic/pkg/logger"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initEventLog initializes the append-only task and system event logs
func (app *Application) initEventLog() error {
	store, err := eventlog.NewStore(app.config.EventLog.Dir)
	if err != nil {
		return err
	}
	sysLog, err := eventlog.NewSystemLog(app.config.EventLog.Dir)
	if err != nil {
		return err
	}

	app.store = store
	app.sysLog = sysLog
	app.registerCleanup(func() {
		event := &eventlog.SystemEvent{Component: "server", Message: "service stopped"}
		if err := sysLog.LogEvent(app.ctx, event); err != nil {
			logger.WarnCtx(app.ctx, "failed to record shutdown event: %v", err)
		}
	})
	return nil
}

// initExecutor initializes the ansible playbook executor
func (app *Application) initExecutor() error {
	app.executor = ansible.NewExecutor(app.config.Ansible)

	playbooks := app.executor.Playbooks()
	if len(playbooks) == 0 {
		logger.WarnCtx(app.ctx, "no playbooks found in %s, restarts will fail until they are deployed", app.config.Ansible.PlaybooksDir)
	} else {
		logger.InfoCtx(app.ctx, "found %d playbooks in %s", len(playbooks), app.config.Ansible.PlaybooksDir)
	}
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.orchestrator = service.NewOrchestrator(app.config, app.store, app.sysLog, app.executor)
	return nil
}

// initJobs registers background jobs
func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	manager.Register(service.NewStatsSnapshotJob(app.orchestrator, app.sysLog, time.Minute))
	manager.Register(service.NewInventoryPruneJob(app.executor, 10*time.Minute))

	app.jobsManager = manager
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.orchestrator)
	app.healthHandler = handler.NewHealthHandler(app.config, app.orchestrator, app.executor)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	// Initialize router
	r := router.NewRouter(app.config, app.taskHandler, app.healthHandler)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server
	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
