package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/handler"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
	WS      *handler.WSHandler

	// TelemetryLimiter is shared with the WebSocket handler.
	TelemetryLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the cleanup of a telemetry limiter created here when handlers
// carries none.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	owners middleware.OwnerVerifier,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. It steps aside for SSE and WebSocket.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	api := router.Group("/api/v1")
	// Attempt state changes every request; nothing may be cached.
	api.Use(middleware.NoStore())

	// ─── 1. Student Group ──────────────────────────────────────────────
	student := api.Group("")
	student.Use(middleware.RequireJWT(auth), middleware.RequireRole(service.RoleStudent))
	{
		student.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		student.GET("/attempts", handlers.Attempt.ListMine)

		telemetryLimiter := handlers.TelemetryLimiter
		if telemetryLimiter == nil {
			telemetryLimiter = middleware.NewRateLimiter(ctx, cfg.TelemetryRatePerMinute, time.Minute)
		}

		attempt := student.Group("/attempts/:attempt_id")
		attempt.Use(middleware.RequireAttemptOwner(owners))
		{
			attempt.GET("", handlers.Attempt.GetStatus)
			attempt.GET("/questions", handlers.Attempt.GetQuestions)
			attempt.PUT("/answers/:question_id", handlers.Attempt.SaveAnswer)
			attempt.POST("/flags/:question_id", handlers.Attempt.ToggleFlag)
			attempt.PUT("/position", handlers.Attempt.GoTo)
			attempt.POST("/telemetry", telemetryLimiter.Middleware(), handlers.Attempt.RecordTelemetry)
			attempt.POST("/pause", handlers.Attempt.Pause)
			attempt.POST("/resume", handlers.Attempt.Resume)
			attempt.POST("/abandon", handlers.Attempt.Abandon)
			attempt.POST("/submit", handlers.Attempt.Submit)
			attempt.GET("/result", handlers.Attempt.GetResult)
		}
	}

	// ─── 2. Admin Group ────────────────────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(middleware.RequireJWT(auth), middleware.RequireRole(service.RoleAdmin))
	{
		admin.GET("/attempts/:attempt_id", handlers.Admin.GetAttempt)
		admin.POST("/attempts/:attempt_id/submit", handlers.Admin.ForceSubmit)

		admin.GET("/exams/:exam_id/summary", handlers.Admin.GetExamSummary)
		admin.POST("/exams/:exam_id/refresh-cache", handlers.Admin.RefreshExamCache)
		admin.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		admin.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(
		middleware.RequireWSAuth(auth),
		middleware.RequireRole(service.RoleStudent),
		middleware.RequireAttemptOwner(owners),
	)
	{
		wsGroup.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
