package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/voicelog/internal/api/handler"
	"github.com/timmy/voicelog/internal/api/middleware"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/repository"
	"github.com/timmy/voicelog/internal/service"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Scheduler    *service.JobScheduler
	QueryService *service.QueryService
	Summarizer   service.Summarizer
	LogRepo      *repository.LogEntryRepository
	Logger       *logger.Logger
	CORS         middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(deps.Scheduler)
	queryHandler := handler.NewQueryHandler(deps.QueryService, deps.LogRepo)
	summaryHandler := handler.NewSummaryHandler(deps.Summarizer)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Audio upload + job lifecycle
		v1.POST("/logs", jobHandler.Upload)
		v1.GET("/jobs/:id", jobHandler.GetStatus)
		v1.DELETE("/jobs/:id", jobHandler.Cancel)
		v1.POST("/jobs/:id/ack", jobHandler.Acknowledge)

		// Stored logs
		v1.GET("/logs", queryHandler.List)
		v1.GET("/logs/latest", queryHandler.Latest)
		v1.GET("/query", queryHandler.Answer)

		// Standalone summarization
		v1.POST("/summary", summaryHandler.Summarize)
	}

	return r
}
