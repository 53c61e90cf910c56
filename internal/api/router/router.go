package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careerhub/ai-pipeline/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
// metricsRegistry may be nil, which disables the /metrics endpoint.
func SetupRouter(deps *handler.Dependencies, metricsRegistry *prometheus.Registry) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	taskHandler := handler.NewTaskHandler(deps)

	// Operational endpoints
	r.GET("/health", taskHandler.Health)
	r.GET("/stats", taskHandler.Stats)
	if metricsRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			// POST /api/v1/tasks - Enqueue a new task
			tasks.POST("", taskHandler.CreateTask)

			// GET /api/v1/tasks - List tasks with filtering and pagination
			tasks.GET("", taskHandler.ListTasks)

			// GET /api/v1/tasks/:task_id - Get task state and result
			tasks.GET("/:task_id", taskHandler.GetTask)
		}

		// GET /api/v1/task-types - Accepted task types
		v1.GET("/task-types", taskHandler.TaskTypes)
	}

	return r
}
