package router

import (
	"ufmedic/app/handler"
	"ufmedic/app/middleware"
	"ufmedic/pkg/config"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	cfg           *config.Config
	taskHandler   *handler.TaskHandler
	healthHandler *handler.HealthHandler
}

// NewRouter creates a new Router
func NewRouter(cfg *config.Config, taskHandler *handler.TaskHandler, healthHandler *handler.HealthHandler) *Router {
	return &Router{
		cfg:           cfg,
		taskHandler:   taskHandler,
		healthHandler: healthHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.Correlation())
	engine.Use(middleware.Logger())

	// Service info and health stay unauthenticated for probes.
	engine.GET("/", r.healthHandler.Root)
	engine.GET("/health", r.healthHandler.Health)

	// Each route class carries its own per-IP budget so list polling
	// cannot crowd out alert submissions.
	submitLimit := middleware.NewRateLimiter(r.cfg.RateLimit.Submit)
	listLimit := middleware.NewRateLimiter(r.cfg.RateLimit.List)
	getLimit := middleware.NewRateLimiter(r.cfg.RateLimit.Get)
	deleteLimit := middleware.NewRateLimiter(r.cfg.RateLimit.Delete)

	api := engine.Group("/")
	api.Use(middleware.Auth(r.cfg.Server.APIKey))
	{
		api.POST("/restart-uf", submitLimit.Handler(), r.taskHandler.Submit)
		api.GET("/tasks", listLimit.Handler(), r.taskHandler.List)
		api.GET("/tasks/:task_id", getLimit.Handler(), r.taskHandler.Get)
		api.DELETE("/tasks/:task_id", deleteLimit.Handler(), r.taskHandler.Delete)
	}
}
